package kv

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// MemoryStore keeps every bucket in process memory. Update buffers writes in
// an overlay and applies them in one step after fn succeeds; a failing fn
// leaves the committed state untouched.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[Bucket]map[string][]byte
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Bucket]map[string][]byte)}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx := &memTx{base: s.data, pending: make(map[Bucket]map[string]*[]byte)}
	defer func() { tx.done = true }()
	if err := fn(tx); err != nil {
		return err
	}
	for b, writes := range tx.pending {
		bucket := s.data[b]
		if bucket == nil {
			bucket = make(map[string][]byte, len(writes))
			s.data[b] = bucket
		}
		for k, v := range writes {
			if v == nil {
				delete(bucket, k)
				continue
			}
			bucket[k] = *v
		}
	}
	return nil
}

func (s *MemoryStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return fn(&memTx{base: s.data, readOnly: true})
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// memTx reads through its pending overlay to the committed maps. A nil
// pointer in pending marks a deletion.
type memTx struct {
	base     map[Bucket]map[string][]byte
	pending  map[Bucket]map[string]*[]byte
	readOnly bool
	done     bool
}

var errReadOnly = errors.New("kv: write in read-only view")
var errTxDone = errors.New("kv: transaction already finished")

func (t *memTx) Get(b Bucket, key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, errTxDone
	}
	if v, ok := t.pending[b][string(key)]; ok {
		if v == nil {
			return nil, false, nil
		}
		return bytes.Clone(*v), true, nil
	}
	v, ok := t.base[b][string(key)]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(v), true, nil
}

func (t *memTx) Scan(b Bucket, prefix []byte, fn func(key, value []byte) error) error {
	p := string(prefix)
	return t.scan(b, func(k string) bool { return strings.HasPrefix(k, p) }, fn)
}

func (t *memTx) ScanFrom(b Bucket, start []byte, fn func(key, value []byte) error) error {
	s := string(start)
	return t.scan(b, func(k string) bool { return k >= s }, fn)
}

func (t *memTx) scan(b Bucket, match func(string) bool, fn func(key, value []byte) error) error {
	if t.done {
		return errTxDone
	}
	merged := make(map[string][]byte)
	for k, v := range t.base[b] {
		if match(k) {
			merged[k] = v
		}
	}
	for k, v := range t.pending[b] {
		if !match(k) {
			continue
		}
		if v == nil {
			delete(merged, k)
			continue
		}
		merged[k] = *v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), bytes.Clone(merged[k])); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) Put(b Bucket, key, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	v := bytes.Clone(value)
	if v == nil {
		v = []byte{}
	}
	t.bucket(b)[string(key)] = &v
	return nil
}

func (t *memTx) Delete(b Bucket, key []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.bucket(b)[string(key)] = nil
	return nil
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	if t.done {
		return errTxDone
	}
	return nil
}

func (t *memTx) bucket(b Bucket) map[string]*[]byte {
	m := t.pending[b]
	if m == nil {
		m = make(map[string]*[]byte)
		t.pending[b] = m
	}
	return m
}
