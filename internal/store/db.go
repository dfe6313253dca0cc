package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/fault"
)

// DB wraps the profile's roomchat.db and the live-query registry fed by
// every write.
type DB struct {
	*sql.DB
	live   *registry
	logger *zap.Logger
}

// Open creates a new SQLite connection with WAL mode, foreign keys on, and a
// busy timeout so watchers re-querying during a write wait instead of failing.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fault.Wrap(fault.Storage, "open db", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fault.Wrap(fault.Storage, "ping db", err)
	}
	return &DB{DB: db, live: newRegistry(), logger: zap.NewNop()}, nil
}

// SetLogger attaches a logger used for live-query failures.
func (db *DB) SetLogger(l *zap.Logger) {
	if l != nil {
		db.logger = l
	}
}

// Reset wipes every chat and, through the cascade, every message. It backs
// the reset_on_start policy.
func (db *DB) Reset() error {
	if _, err := db.Exec(`DELETE FROM chats`); err != nil {
		return fault.Wrap(fault.Storage, "reset store", err)
	}
	db.live.notifyAll()
	return nil
}

// ChatCount returns the number of chats.
func (db *DB) ChatCount() (int, error) {
	return db.count(`SELECT COUNT(*) FROM chats`)
}

// MessageCount returns the number of messages across all chats.
func (db *DB) MessageCount() (int, error) {
	return db.count(`SELECT COUNT(*) FROM messages`)
}

func (db *DB) count(q string, args ...any) (int, error) {
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		return 0, fault.Wrap(fault.Storage, "count", fmt.Errorf("%s: %w", q, err))
	}
	return n, nil
}
