package hxcommunity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the local state database at path with WAL
// journaling and makes sure the kv and cache tables exist.
func OpenSQLite(path string) (*sql.DB, error) {
	// ensure parent directory exists to avoid SQLITE_CANTOPEN errors
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := EnsureSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSQLiteSchema creates the tables used by SQLiteBackend and
// SQLiteCacheStorage.
func EnsureSQLiteSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS caches (
            name TEXT PRIMARY KEY,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
            cache TEXT NOT NULL,
            url TEXT NOT NULL,
            status INTEGER NOT NULL,
            header TEXT NOT NULL,
            body BLOB,
            stored_at TIMESTAMP NOT NULL,
            PRIMARY KEY(cache, url)
        );`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SQLiteBackend is a Backend over the kv table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) GetItem(key string) (string, bool, error) {
	var v string
	err := b.db.QueryRowContext(context.Background(), `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b *SQLiteBackend) SetItem(key, value string) error {
	_, err := b.db.ExecContext(context.Background(),
		`INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

func (b *SQLiteBackend) RemoveItem(key string) error {
	_, err := b.db.ExecContext(context.Background(), `DELETE FROM kv WHERE key = ?`, key)
	return err
}

func (b *SQLiteBackend) Clear() error {
	_, err := b.db.ExecContext(context.Background(), `DELETE FROM kv`)
	return err
}
