package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// CheckpointLastRowID is the watch_state key holding the highest chat.db
// ROWID the watcher has handed to the dispatcher.
const CheckpointLastRowID = "last_row_id"

// SetCheckpoint upserts a watch checkpoint value.
func (db *DB) SetCheckpoint(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO watch_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Checkpoint returns a watch checkpoint value. ok is false when the key has
// never been written.
func (db *DB) Checkpoint(ctx context.Context, key string) (value string, ok bool, err error) {
	err = db.QueryRowContext(ctx, `SELECT value FROM watch_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// LastRowID returns the persisted watcher position.
func (db *DB) LastRowID(ctx context.Context) (int64, bool, error) {
	v, ok, err := db.Checkpoint(ctx, CheckpointLastRowID)
	if err != nil || !ok {
		return 0, false, err
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// SetLastRowID persists the watcher position.
func (db *DB) SetLastRowID(ctx context.Context, id int64) error {
	return db.SetCheckpoint(ctx, CheckpointLastRowID, strconv.FormatInt(id, 10))
}
