// Package kv is the atomic key-value substrate the registry's stores and
// indices are built on. A Store groups writes into transactions that commit
// all-or-nothing; typed Value, Map and DoubleMap wrappers give single-key and
// compound-key views over raw byte buckets.
package kv

import (
	"bytes"
	"context"
	"errors"
)

// Bucket names an independent keyspace, the equivalent of a table.
type Bucket string

// ErrStop ends a Scan early without reporting an error.
var ErrStop = errors.New("kv: stop iteration")

// Reader is the read side shared by transactions and views.
type Reader interface {
	// Get returns the value stored under key. The returned slice is owned by
	// the caller.
	Get(b Bucket, key []byte) ([]byte, bool, error)
	// Scan calls fn for every key with the given prefix in ascending byte
	// order. Inside a transaction the scan observes the transaction's own
	// pending writes.
	Scan(b Bucket, prefix []byte, fn func(key, value []byte) error) error
	// ScanFrom is Scan over every key >= start, to the end of the bucket.
	ScanFrom(b Bucket, start []byte, fn func(key, value []byte) error) error
}

// Tx is a mutable unit of work.
type Tx interface {
	Reader
	Put(b Bucket, key, value []byte) error
	Delete(b Bucket, key []byte) error
}

// Store commits transactions atomically. Update applies every write made
// through tx if and only if fn returns nil. View runs fn against a read-only
// snapshot and must not call Update.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(r Reader) error) error
	Close() error
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when no such key exists (prefix empty or all 0xFF).
func PrefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
