package hxcommunity

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteCacheStorage stores caches in the caches and cache_entries tables
// created by EnsureSQLiteSchema.
type SQLiteCacheStorage struct {
	db *sql.DB
}

func NewSQLiteCacheStorage(db *sql.DB) *SQLiteCacheStorage {
	return &SQLiteCacheStorage{db: db}
}

func (s *SQLiteCacheStorage) Open(ctx context.Context, name string) (Cache, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO caches (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`, name, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("open cache %q: %w", name, err)
	}
	return &sqliteCache{db: s.db, name: name}, nil
}

func (s *SQLiteCacheStorage) Has(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM caches WHERE name = ?`, name).Scan(&n)
	return n > 0, err
}

func (s *SQLiteCacheStorage) Delete(ctx context.Context, name string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache = ?`, name); err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM caches WHERE name = ?`, name)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, tx.Commit()
}

func (s *SQLiteCacheStorage) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM caches ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type sqliteCache struct {
	db   *sql.DB
	name string
}

func (c *sqliteCache) Match(ctx context.Context, url string) (*CacheEntry, error) {
	var (
		status   int
		header   string
		body     []byte
		storedAt time.Time
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT status, header, body, stored_at FROM cache_entries WHERE cache = ? AND url = ?`, c.name, url).
		Scan(&status, &header, &body, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry := &CacheEntry{URL: url, Status: status, Body: body, StoredAt: storedAt}
	if err := json.Unmarshal([]byte(header), &entry.Header); err != nil {
		return nil, fmt.Errorf("decode cached header: %w", err)
	}
	return entry, nil
}

func (c *sqliteCache) Put(ctx context.Context, entry *CacheEntry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO cache_entries (cache, url, status, header, body, stored_at) VALUES (?,?,?,?,?,?)
        ON CONFLICT(cache, url) DO UPDATE SET status = excluded.status, header = excluded.header, body = excluded.body, stored_at = excluded.stored_at`,
		c.name, entry.URL, entry.Status, string(header), entry.Body, entry.StoredAt.UTC())
	return err
}

func (c *sqliteCache) Delete(ctx context.Context, url string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE cache = ? AND url = ?`, c.name, url)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (c *sqliteCache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT url FROM cache_entries WHERE cache = ? ORDER BY url`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
