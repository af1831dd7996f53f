// Package kitty holds the registry's domain vocabulary: ids, genomes,
// accounts, balances, events and the error taxonomy shared by every layer.
package kitty

import (
	"encoding/hex"
	"fmt"
)

// ID identifies a kitty. The usable range is bounded by the configured id
// width, see MaxID.
type ID uint64

// MaxID returns the largest id representable in an unsigned integer of the
// given bit width. The allocator refuses to hand out this value.
func MaxID(bits int) ID {
	if bits <= 0 || bits >= 64 {
		return ID(^uint64(0))
	}
	return ID(uint64(1)<<uint(bits) - 1)
}

// GenomeSize is the byte length of a genome and of a breeding selector.
const GenomeSize = 16

// Genome is the opaque, immutable DNA of a kitty.
type Genome [GenomeSize]byte

func (g Genome) String() string { return hex.EncodeToString(g[:]) }

// ParseGenome decodes the hex form produced by Genome.String.
func ParseGenome(s string) (Genome, error) {
	var g Genome
	raw, err := hex.DecodeString(s)
	if err != nil {
		return g, fmt.Errorf("decode genome: %w", err)
	}
	if len(raw) != GenomeSize {
		return g, fmt.Errorf("genome must be %d bytes, got %d", GenomeSize, len(raw))
	}
	copy(g[:], raw)
	return g, nil
}

// CombineByte takes each bit from a where the selector bit is set, else from b.
func CombineByte(a, b, selector byte) byte {
	return (selector & a) | (^selector & b)
}

// Combine recombines two parent genomes bit by bit under selector.
func Combine(first, second, selector Genome) Genome {
	var child Genome
	for i := range child {
		child[i] = CombineByte(first[i], second[i], selector[i])
	}
	return child
}

// Parents is the ordered pair a bred kitty was produced from.
type Parents struct {
	First  ID
	Second ID
}

// Balance is an amount of the ledger currency.
type Balance uint64

// Kitty is the read model assembled from the registry's stores and indices.
type Kitty struct {
	ID      ID
	Genome  Genome
	Owner   Account
	Parents *Parents
	Deposit Balance
}
