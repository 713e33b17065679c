package chatdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/matheus3301/imcoach/internal/imsg"
)

const selectRows = `
	SELECT
		m.ROWID,
		COALESCE(m.guid, ''),
		m.text,
		m.attributedBody,
		COALESCE(h.id, 'me'),
		COALESCE(c.guid, ''),
		COALESCE(m.is_from_me, 0),
		COALESCE(m.is_read, 0),
		m.date,
		COALESCE(m.service, '')
	FROM message m
	LEFT JOIN handle h ON m.handle_id = h.ROWID
	LEFT JOIN chat_message_join cmj ON cmj.message_id = m.ROWID
	LEFT JOIN chat c ON c.ROWID = cmj.chat_id`

// Recent returns the newest limit rows, newest first.
func (db *DB) Recent(ctx context.Context, limit int) ([]imsg.RawRow, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.QueryContext(ctx, selectRows+`
		WHERE m.date IS NOT NULL
		ORDER BY m.date DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	return scanRows(rows)
}

// After returns up to limit rows with ROWID greater than rowID, oldest first.
func (db *DB) After(ctx context.Context, rowID int64, limit int) ([]imsg.RawRow, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := db.QueryContext(ctx, selectRows+`
		WHERE m.ROWID > ? AND m.date IS NOT NULL
		ORDER BY m.ROWID ASC
		LIMIT ?`, rowID, limit)
	if err != nil {
		return nil, fmt.Errorf("query after %d: %w", rowID, err)
	}
	return scanRows(rows)
}

// MaxRowID returns the highest message ROWID, or 0 for an empty table.
func (db *DB) MaxRowID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(ROWID) FROM message`).Scan(&id); err != nil {
		return 0, fmt.Errorf("max rowid: %w", err)
	}
	return id.Int64, nil
}

func scanRows(rows *sql.Rows) ([]imsg.RawRow, error) {
	defer func() { _ = rows.Close() }()

	var out []imsg.RawRow
	for rows.Next() {
		var (
			r      imsg.RawRow
			text   sql.NullString
			fromMe int64
			isRead int64
		)
		if err := rows.Scan(&r.RowID, &r.GUID, &text, &r.AttributedBody, &r.HandleID, &r.ChatID, &fromMe, &isRead, &r.Date, &r.Service); err != nil {
			return nil, err
		}
		if text.Valid {
			r.Text = &text.String
		}
		r.IsFromMe = fromMe != 0
		r.IsRead = isRead != 0
		out = append(out, r)
	}
	return out, rows.Err()
}
