// Package store owns coach.db: the delivery log and the watcher checkpoint.
// Messages themselves stay in chat.db and are never copied here.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/imcoach/internal/store/migrations"
	_ "github.com/mattn/go-sqlite3"
)

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// DB is the coach.db handle. It is only handed out with the schema current.
type DB struct {
	*sql.DB
	schema MigrateResult
}

// Open opens coach.db in WAL mode and applies pending migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open coach.db: %w", err)
	}
	db := &DB{DB: conn}
	result, err := db.Migrate()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	db.schema = *result
	return db, nil
}

// Schema reports the migration run performed by Open.
func (db *DB) Schema() MigrateResult {
	return db.schema
}

// Migrate brings coach.db up to the embedded schema. A dirty database is
// reported as an error so the daemon refuses to start on a half-applied
// migration.
func (db *DB) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migration up: %w", err)
		}
		changed = false
	}

	version, dirty, err := m.Version()
	if err != nil {
		return nil, fmt.Errorf("migration version: %w", err)
	}
	if dirty {
		return nil, fmt.Errorf("coach.db is dirty at version %d", version)
	}
	return &MigrateResult{Version: version, Changed: changed}, nil
}
