// Package chatdb reads the Messages database (chat.db) owned by macOS.
// The database is always opened read-only; Messages keeps writing to it.
package chatdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// ErrStoreUnavailable is returned when chat.db cannot be opened or read.
// On macOS this almost always means the process lacks Full Disk Access.
var ErrStoreUnavailable = errors.New("message store unavailable")

// DefaultPath returns ~/Library/Messages/chat.db.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// DB is a read-only handle on chat.db.
type DB struct {
	*sql.DB
	path string
}

// Open opens chat.db read-only and verifies the message table is readable.
func Open(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, path, err)
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, path, err)
	}
	// A successful ping does not prove the file is readable; query it.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM message LIMIT 1`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: read %s: %v", ErrStoreUnavailable, path, err)
	}
	return &DB{DB: db, path: path}, nil
}

// Path returns the file this handle was opened on.
func (db *DB) Path() string {
	return db.path
}
