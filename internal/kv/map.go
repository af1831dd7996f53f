package kv

import (
	"errors"
	"fmt"
)

// Value is a single typed slot, used for counters and markers.
type Value[V any] struct {
	bucket Bucket
	key    []byte
	codec  Codec[V]
}

func NewValue[V any](b Bucket, name string, c Codec[V]) Value[V] {
	return Value[V]{bucket: b, key: []byte(name), codec: c}
}

// Get returns the stored value, or the zero value and false when unset.
func (v Value[V]) Get(r Reader) (V, bool, error) {
	var zero V
	raw, ok, err := r.Get(v.bucket, v.key)
	if err != nil || !ok {
		return zero, false, err
	}
	out, err := decodeExact(v.codec, raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s/%s: %w", v.bucket, v.key, err)
	}
	return out, true, nil
}

func (v Value[V]) Put(tx Tx, val V) error {
	return tx.Put(v.bucket, v.key, v.codec.Append(nil, val))
}

// Map is a typed single-key map.
type Map[K, V any] struct {
	bucket Bucket
	keys   Codec[K]
	values Codec[V]
}

func NewMap[K, V any](b Bucket, keys Codec[K], values Codec[V]) Map[K, V] {
	return Map[K, V]{bucket: b, keys: keys, values: values}
}

func (m Map[K, V]) Get(r Reader, k K) (V, bool, error) {
	var zero V
	raw, ok, err := r.Get(m.bucket, m.keys.Append(nil, k))
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := decodeExact(m.values, raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s value: %w", m.bucket, err)
	}
	return v, true, nil
}

func (m Map[K, V]) Has(r Reader, k K) (bool, error) {
	_, ok, err := r.Get(m.bucket, m.keys.Append(nil, k))
	return ok, err
}

func (m Map[K, V]) Put(tx Tx, k K, v V) error {
	return tx.Put(m.bucket, m.keys.Append(nil, k), m.values.Append(nil, v))
}

func (m Map[K, V]) Delete(tx Tx, k K) error {
	return tx.Delete(m.bucket, m.keys.Append(nil, k))
}

// Iterate visits every entry in key order. Returning ErrStop from fn ends the
// iteration early.
func (m Map[K, V]) Iterate(r Reader, fn func(K, V) error) error {
	return scan(r, m.bucket, nil, func(key, raw []byte) error {
		k, err := decodeExact(m.keys, key)
		if err != nil {
			return fmt.Errorf("decode %s key: %w", m.bucket, err)
		}
		v, err := decodeExact(m.values, raw)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", m.bucket, err)
		}
		return fn(k, v)
	})
}

// IterateFrom is Iterate starting at the first key >= from.
func (m Map[K, V]) IterateFrom(r Reader, from K, fn func(K, V) error) error {
	err := r.ScanFrom(m.bucket, m.keys.Append(nil, from), func(key, raw []byte) error {
		k, err := decodeExact(m.keys, key)
		if err != nil {
			return fmt.Errorf("decode %s key: %w", m.bucket, err)
		}
		v, err := decodeExact(m.values, raw)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", m.bucket, err)
		}
		return fn(k, v)
	})
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}

// DoubleMap is a typed compound-key map (first, second) -> value. Entries
// sharing a first key are stored contiguously and can be enumerated.
type DoubleMap[K1, K2, V any] struct {
	bucket Bucket
	first  Codec[K1]
	second Codec[K2]
	values Codec[V]
}

func NewDoubleMap[K1, K2, V any](b Bucket, first Codec[K1], second Codec[K2], values Codec[V]) DoubleMap[K1, K2, V] {
	return DoubleMap[K1, K2, V]{bucket: b, first: first, second: second, values: values}
}

func (m DoubleMap[K1, K2, V]) key(k1 K1, k2 K2) []byte {
	return m.second.Append(m.first.Append(nil, k1), k2)
}

func (m DoubleMap[K1, K2, V]) Get(r Reader, k1 K1, k2 K2) (V, bool, error) {
	var zero V
	raw, ok, err := r.Get(m.bucket, m.key(k1, k2))
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := decodeExact(m.values, raw)
	if err != nil {
		return zero, false, fmt.Errorf("decode %s value: %w", m.bucket, err)
	}
	return v, true, nil
}

func (m DoubleMap[K1, K2, V]) Has(r Reader, k1 K1, k2 K2) (bool, error) {
	_, ok, err := r.Get(m.bucket, m.key(k1, k2))
	return ok, err
}

func (m DoubleMap[K1, K2, V]) Put(tx Tx, k1 K1, k2 K2, v V) error {
	return tx.Put(m.bucket, m.key(k1, k2), m.values.Append(nil, v))
}

func (m DoubleMap[K1, K2, V]) Delete(tx Tx, k1 K1, k2 K2) error {
	return tx.Delete(m.bucket, m.key(k1, k2))
}

// Iterate visits every (second, value) stored under k1 in key order.
func (m DoubleMap[K1, K2, V]) Iterate(r Reader, k1 K1, fn func(K2, V) error) error {
	prefix := m.first.Append(nil, k1)
	return scan(r, m.bucket, prefix, func(key, raw []byte) error {
		k2, err := decodeExact(m.second, key[len(prefix):])
		if err != nil {
			return fmt.Errorf("decode %s key: %w", m.bucket, err)
		}
		v, err := decodeExact(m.values, raw)
		if err != nil {
			return fmt.Errorf("decode %s value: %w", m.bucket, err)
		}
		return fn(k2, v)
	})
}

// Keys collects the second keys stored under k1.
func (m DoubleMap[K1, K2, V]) Keys(r Reader, k1 K1) ([]K2, error) {
	var out []K2
	err := m.Iterate(r, k1, func(k2 K2, _ V) error {
		out = append(out, k2)
		return nil
	})
	return out, err
}

func scan(r Reader, b Bucket, prefix []byte, fn func(key, value []byte) error) error {
	err := r.Scan(b, prefix, fn)
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
