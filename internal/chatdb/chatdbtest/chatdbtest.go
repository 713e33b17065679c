// Package chatdbtest builds throwaway chat.db files with the subset of the
// Messages schema that chatdb queries.
package chatdbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE handle (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, id TEXT NOT NULL, service TEXT);
CREATE TABLE chat (ROWID INTEGER PRIMARY KEY AUTOINCREMENT, guid TEXT NOT NULL, chat_identifier TEXT);
CREATE TABLE message (
	ROWID INTEGER PRIMARY KEY AUTOINCREMENT,
	guid TEXT UNIQUE NOT NULL,
	text TEXT,
	attributedBody BLOB,
	handle_id INTEGER DEFAULT 0,
	service TEXT,
	date INTEGER,
	is_from_me INTEGER DEFAULT 0,
	is_read INTEGER DEFAULT 0
);
CREATE TABLE chat_message_join (chat_id INTEGER, message_id INTEGER, PRIMARY KEY (chat_id, message_id));
`

// Row is a message to insert.
type Row struct {
	GUID    string
	Text    *string
	Body    []byte
	Handle  string // empty for messages without a handle
	Chat    string // chat identifier, e.g. "+15551234567"
	FromMe  bool
	Read    bool
	Date    int64
	Service string
}

// Fixture is a writable chat.db on disk.
type Fixture struct {
	Path string
	db   *sql.DB
	t    testing.TB
}

// New creates an empty chat.db in t.TempDir().
func New(t testing.TB) *Fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &Fixture{Path: path, db: db, t: t}
}

// Insert adds a message and returns its ROWID.
func (f *Fixture) Insert(r Row) int64 {
	f.t.Helper()
	var handleID int64
	if r.Handle != "" {
		handleID = f.ensure(`SELECT ROWID FROM handle WHERE id = ?`, `INSERT INTO handle (id, service) VALUES (?, 'iMessage')`, r.Handle)
	}
	service := r.Service
	if service == "" {
		service = "iMessage"
	}
	res, err := f.db.Exec(`
		INSERT INTO message (guid, text, attributedBody, handle_id, service, date, is_from_me, is_read)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.GUID, r.Text, r.Body, handleID, service, r.Date, r.FromMe, r.Read)
	if err != nil {
		f.t.Fatal(err)
	}
	rowID, _ := res.LastInsertId()
	if r.Chat != "" {
		chatID := f.ensure(`SELECT ROWID FROM chat WHERE chat_identifier = ?`,
			`INSERT INTO chat (chat_identifier, guid) VALUES (?1, 'iMessage;-;' || ?1)`, r.Chat)
		if _, err := f.db.Exec(`INSERT INTO chat_message_join (chat_id, message_id) VALUES (?, ?)`, chatID, rowID); err != nil {
			f.t.Fatal(err)
		}
	}
	return rowID
}

func (f *Fixture) ensure(lookup, insert, key string) int64 {
	f.t.Helper()
	var id int64
	if err := f.db.QueryRow(lookup, key).Scan(&id); err == nil {
		return id
	}
	res, err := f.db.Exec(insert, key)
	if err != nil {
		f.t.Fatal(err)
	}
	id, _ = res.LastInsertId()
	return id
}

// Text returns a pointer to s for Row.Text.
func Text(s string) *string { return &s }
