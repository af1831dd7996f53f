package kv

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Codec encodes values into self-delimiting byte strings. Self-delimiting
// keys make a first-key prefix scan over a DoubleMap exact.
type Codec[T any] interface {
	Append(dst []byte, v T) []byte
	// Decode reads one value from the front of src and reports how many
	// bytes it consumed.
	Decode(src []byte) (T, int, error)
}

// Uint64 stores any uint64-backed type as 8 big-endian bytes, so keys sort
// numerically.
type Uint64[T ~uint64] struct{}

func (Uint64[T]) Append(dst []byte, v T) []byte {
	return binary.BigEndian.AppendUint64(dst, uint64(v))
}

func (Uint64[T]) Decode(src []byte) (T, int, error) {
	if len(src) < 8 {
		return 0, 0, fmt.Errorf("kv: uint64 needs 8 bytes, have %d", len(src))
	}
	return T(binary.BigEndian.Uint64(src)), 8, nil
}

// String stores any string-backed type with a 2-byte big-endian length prefix.
type String[T ~string] struct{}

func (String[T]) Append(dst []byte, v T) []byte {
	if len(v) > math.MaxUint16 {
		panic("kv: string key too long")
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(v)))
	return append(dst, v...)
}

func (String[T]) Decode(src []byte) (T, int, error) {
	if len(src) < 2 {
		return "", 0, fmt.Errorf("kv: string header needs 2 bytes, have %d", len(src))
	}
	n := int(binary.BigEndian.Uint16(src))
	if len(src) < 2+n {
		return "", 0, fmt.Errorf("kv: string needs %d bytes, have %d", n, len(src)-2)
	}
	return T(src[2 : 2+n]), 2 + n, nil
}

// Bytes16 stores any 16-byte array type verbatim.
type Bytes16[T ~[16]byte] struct{}

func (Bytes16[T]) Append(dst []byte, v T) []byte {
	return append(dst, v[:]...)
}

func (Bytes16[T]) Decode(src []byte) (T, int, error) {
	var v T
	if len(src) < 16 {
		return v, 0, fmt.Errorf("kv: need 16 bytes, have %d", len(src))
	}
	copy(v[:], src[:16])
	return v, 16, nil
}

// Unit encodes struct{} as zero bytes. Set-like DoubleMaps use it as their
// value type.
type Unit struct{}

func (Unit) Append(dst []byte, _ struct{}) []byte { return dst }

func (Unit) Decode(_ []byte) (struct{}, int, error) { return struct{}{}, 0, nil }

func decodeExact[T any](c Codec[T], src []byte) (T, error) {
	v, n, err := c.Decode(src)
	if err != nil {
		return v, err
	}
	if n != len(src) {
		var zero T
		return zero, fmt.Errorf("kv: %d trailing bytes after value", len(src)-n)
	}
	return v, nil
}

// Raw stores a byte slice verbatim. It consumes all remaining input, so it
// only works as a value codec.
type Raw struct{}

func (Raw) Append(dst []byte, v []byte) []byte { return append(dst, v...) }

func (Raw) Decode(src []byte) ([]byte, int, error) {
	out := make([]byte, len(src))
	copy(out, src)
	return out, len(src), nil
}
