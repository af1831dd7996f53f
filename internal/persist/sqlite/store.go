// Package sqlite provides a single-file kv.Store on modernc SQLite, for
// deployments without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/kittyledger/server/internal/kv"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store persists kv buckets in one SQLite table. A single connection
// serialises every transaction.
type Store struct {
	db *sql.DB
}

// Open opens path, creating it if needed, and applies embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("kv commit: %w", err)
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(r kv.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv begin read: %w", err)
	}
	defer tx.Rollback()
	return fn(&sqlTx{ctx: ctx, tx: tx, readOnly: true})
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type sqlTx struct {
	ctx      context.Context
	tx       *sql.Tx
	readOnly bool
}

func (t *sqlTx) Get(b kv.Bucket, key []byte) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value FROM kv_entries WHERE bucket = ? AND key = ?`, string(b), nonNil(key),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", b, err)
	}
	return value, true, nil
}

func (t *sqlTx) Scan(b kv.Bucket, prefix []byte, fn func(key, value []byte) error) error {
	return t.scanRange(b, prefix, kv.PrefixEnd(prefix), fn)
}

func (t *sqlTx) ScanFrom(b kv.Bucket, start []byte, fn func(key, value []byte) error) error {
	return t.scanRange(b, start, nil, fn)
}

func (t *sqlTx) scanRange(b kv.Bucket, start, end []byte, fn func(key, value []byte) error) error {
	query := `SELECT key, value FROM kv_entries WHERE bucket = ? AND key >= ? ORDER BY key`
	args := []any{string(b), nonNil(start)}
	if end != nil {
		query = `SELECT key, value FROM kv_entries WHERE bucket = ? AND key >= ? AND key < ? ORDER BY key`
		args = append(args, end)
	}
	rows, err := t.tx.QueryContext(t.ctx, query, args...)
	if err != nil {
		return fmt.Errorf("kv scan %s: %w", b, err)
	}
	type entry struct{ key, value []byte }
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.value); err != nil {
			rows.Close()
			return fmt.Errorf("kv scan %s: %w", b, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("kv scan %s: %w", b, err)
	}
	rows.Close()

	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqlTx) Put(b kv.Bucket, key, value []byte) error {
	if t.readOnly {
		return errors.New("kv: write in read-only view")
	}
	_, err := t.tx.ExecContext(t.ctx,
		`INSERT INTO kv_entries (bucket, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = excluded.value`,
		string(b), nonNil(key), nonNil(value))
	if err != nil {
		return fmt.Errorf("kv put %s: %w", b, err)
	}
	return nil
}

func (t *sqlTx) Delete(b kv.Bucket, key []byte) error {
	if t.readOnly {
		return errors.New("kv: write in read-only view")
	}
	if _, err := t.tx.ExecContext(t.ctx,
		`DELETE FROM kv_entries WHERE bucket = ? AND key = ?`, string(b), nonNil(key)); err != nil {
		return fmt.Errorf("kv delete %s: %w", b, err)
	}
	return nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
