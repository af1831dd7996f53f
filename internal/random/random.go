// Package random derives kitty genomes and breeding selectors from explicit
// entropy. Derivation is a pure function, so any replica holding the same
// seed and operation sequence produces the same bytes.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/kittyledger/server/internal/kitty"
)

// Subject is the per-operation context mixed into the entropy.
type Subject struct {
	Caller kitty.Account
	Nonce  uint64
}

// Source turns entropy plus a subject into 16 random bytes.
type Source interface {
	Random(entropy []byte, s Subject) kitty.Genome
}

// Entropy supplies the current seed.
type Entropy interface {
	Entropy() []byte
}

// Blake2 hashes entropy ‖ len(caller) ‖ caller ‖ nonce with BLAKE2b-128.
type Blake2 struct{}

func (Blake2) Random(entropy []byte, s Subject) kitty.Genome {
	h, err := blake2b.New(kitty.GenomeSize, nil)
	if err != nil {
		// Only reachable with an invalid size or key.
		panic(err)
	}
	var buf [8]byte
	h.Write(entropy)
	binary.BigEndian.PutUint16(buf[:2], uint16(len(s.Caller)))
	h.Write(buf[:2])
	h.Write([]byte(s.Caller))
	binary.BigEndian.PutUint64(buf[:], s.Nonce)
	h.Write(buf[:])

	var g kitty.Genome
	copy(g[:], h.Sum(nil))
	return g
}

// SeedSize is the byte length of an epoch seed.
const SeedSize = 32

// NewSeed draws a fresh seed from crypto/rand.
func NewSeed() ([SeedSize]byte, error) {
	var b [SeedSize]byte
	if _, err := crand.Read(b[:]); err != nil {
		return b, fmt.Errorf("read random seed: %w", err)
	}
	return b, nil
}

// Epoch holds the seed for the current loop tick. Rotate is called once per
// tick; every operation inside the tick sees the same seed.
type Epoch struct {
	mu    sync.RWMutex
	seed  [SeedSize]byte
	epoch uint64
}

func NewEpoch() (*Epoch, error) {
	e := &Epoch{}
	if err := e.Rotate(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Epoch) Rotate() error {
	seed, err := NewSeed()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.seed = seed
	e.epoch++
	e.mu.Unlock()
	return nil
}

func (e *Epoch) Entropy() []byte {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]byte, SeedSize)
	copy(out, e.seed[:])
	return out
}

// Number counts rotations since start.
func (e *Epoch) Number() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.epoch
}

// Fixed is a constant seed, used by tests and replays.
type Fixed []byte

func (f Fixed) Entropy() []byte { return f }
