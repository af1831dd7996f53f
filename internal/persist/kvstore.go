package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kittyledger/server/internal/kv"
)

// KVStore implements kv.Store on the kv_entries table. Each Update runs in one
// serializable transaction; a failing fn rolls the whole transaction back.
type KVStore struct {
	db *DB
}

func NewKVStore(db *DB) *KVStore {
	return &KVStore{db: db}
}

func (s *KVStore) Update(ctx context.Context, fn func(tx kv.Tx) error) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("kv begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{ctx: ctx, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("kv commit: %w", err)
	}
	return nil
}

func (s *KVStore) View(ctx context.Context, fn func(r kv.Reader) error) error {
	tx, err := s.db.Pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("kv begin read: %w", err)
	}
	defer tx.Rollback(ctx)
	return fn(&pgTx{ctx: ctx, tx: tx, readOnly: true})
}

func (s *KVStore) Close() error {
	s.db.Close()
	return nil
}

type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	readOnly bool
}

func (t *pgTx) Get(b kv.Bucket, key []byte) ([]byte, bool, error) {
	var value []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT value FROM kv_entries WHERE bucket = $1 AND key = $2`,
		string(b), nonNil(key),
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", b, err)
	}
	return value, true, nil
}

func (t *pgTx) Scan(b kv.Bucket, prefix []byte, fn func(key, value []byte) error) error {
	return t.scanRange(b, prefix, kv.PrefixEnd(prefix), fn)
}

func (t *pgTx) ScanFrom(b kv.Bucket, start []byte, fn func(key, value []byte) error) error {
	return t.scanRange(b, start, nil, fn)
}

// scanRange reads [start, end) before calling fn, so fn may issue further
// queries on the same transaction. A nil end runs to the end of the bucket.
func (t *pgTx) scanRange(b kv.Bucket, start, end []byte, fn func(key, value []byte) error) error {
	var rows pgx.Rows
	var err error
	if end != nil {
		rows, err = t.tx.Query(t.ctx,
			`SELECT key, value FROM kv_entries
			 WHERE bucket = $1 AND key >= $2 AND key < $3
			 ORDER BY key`,
			string(b), nonNil(start), end)
	} else {
		rows, err = t.tx.Query(t.ctx,
			`SELECT key, value FROM kv_entries
			 WHERE bucket = $1 AND key >= $2
			 ORDER BY key`,
			string(b), nonNil(start))
	}
	if err != nil {
		return fmt.Errorf("kv scan %s: %w", b, err)
	}
	type entry struct{ key, value []byte }
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (entry, error) {
		var e entry
		err := row.Scan(&e.key, &e.value)
		return e, err
	})
	if err != nil {
		return fmt.Errorf("kv scan %s: %w", b, err)
	}
	for _, e := range entries {
		if err := fn(e.key, e.value); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) Put(b kv.Bucket, key, value []byte) error {
	if t.readOnly {
		return errors.New("kv: write in read-only view")
	}
	_, err := t.tx.Exec(t.ctx,
		`INSERT INTO kv_entries (bucket, key, value) VALUES ($1, $2, $3)
		 ON CONFLICT (bucket, key) DO UPDATE SET value = EXCLUDED.value`,
		string(b), nonNil(key), nonNil(value))
	if err != nil {
		return fmt.Errorf("kv put %s: %w", b, err)
	}
	return nil
}

func (t *pgTx) Delete(b kv.Bucket, key []byte) error {
	if t.readOnly {
		return errors.New("kv: write in read-only view")
	}
	if _, err := t.tx.Exec(t.ctx,
		`DELETE FROM kv_entries WHERE bucket = $1 AND key = $2`,
		string(b), nonNil(key)); err != nil {
		return fmt.Errorf("kv delete %s: %w", b, err)
	}
	return nil
}

// nonNil keeps empty keys and values from being sent as NULL.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
