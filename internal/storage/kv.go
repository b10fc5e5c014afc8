// Package storage is the local (guest) persistence layer: a SQLite key-value
// table holding JSON documents under the browser-era key layout.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("key not found")

// KV is a string key-value store backed by SQLite.
type KV struct {
	db  *sql.DB
	now func() time.Time
}

// OpenKV opens (creating if needed) the database at dbPath and migrates it.
func OpenKV(dbPath string) (*KV, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &KV{db: db, now: time.Now}, nil
}

func (kv *KV) Close() error {
	if kv.db != nil {
		return kv.db.Close()
	}
	return nil
}

// Ping checks the database is reachable.
func (kv *KV) Ping(ctx context.Context) error {
	return kv.db.PingContext(ctx)
}

// Get returns the value stored under key.
func (kv *KV) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := kv.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %s: %w", key, err)
	}
	return v, nil
}

// Set writes a single key.
func (kv *KV) Set(ctx context.Context, key, value string) error {
	return kv.Update(ctx, func(tx *KVTx) error {
		return tx.Set(key, value)
	})
}

// Keys lists every key with the given prefix, sorted.
func (kv *KV) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := kv.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// KVTx batches writes that commit together.
type KVTx struct {
	ctx context.Context
	tx  *sql.Tx
	now time.Time
}

func (t *KVTx) Set(key, value string) error {
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, t.now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (t *KVTx) Delete(key string) error {
	if _, err := t.tx.ExecContext(t.ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Update runs fn in one SQL transaction. Any error rolls everything back.
func (kv *KV) Update(ctx context.Context, fn func(tx *KVTx) error) error {
	tx, err := kv.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(&KVTx{ctx: ctx, tx: tx, now: kv.now()}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
