package registry

import (
	"encoding/binary"
	"fmt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// Storage layout. One bucket per relation; every relation has exactly one
// mutation path in this package.
const (
	bucketMeta     kv.Bucket = "meta"
	bucketKitties  kv.Bucket = "kitties"
	bucketOwners   kv.Bucket = "kitty_owners"
	bucketOwned    kv.Bucket = "owned_kitties"
	bucketParents  kv.Bucket = "kitty_parents"
	bucketChildren kv.Bucket = "kitty_children"
	bucketPartners kv.Bucket = "kitty_partners"
	bucketDeposits kv.Bucket = "kitty_deposits"
	bucketJournal  kv.Bucket = "escrow_journal"
)

var (
	idCodec      = kv.Uint64[kitty.ID]{}
	accountCodec = kv.String[kitty.Account]{}
	genomeCodec  = kv.Bytes16[kitty.Genome]{}
	balanceCodec = kv.Uint64[kitty.Balance]{}
)

type parentsCodec struct{}

func (parentsCodec) Append(dst []byte, p kitty.Parents) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.First))
	return binary.BigEndian.AppendUint64(dst, uint64(p.Second))
}

func (parentsCodec) Decode(src []byte) (kitty.Parents, int, error) {
	if len(src) < 16 {
		return kitty.Parents{}, 0, fmt.Errorf("parents need 16 bytes, have %d", len(src))
	}
	return kitty.Parents{
		First:  kitty.ID(binary.BigEndian.Uint64(src)),
		Second: kitty.ID(binary.BigEndian.Uint64(src[8:])),
	}, 16, nil
}

// journalCodec lays an entry out as [op][account][kitty Q][amount Q].
type journalCodec struct{}

func (journalCodec) Append(dst []byte, e JournalEntry) []byte {
	dst = append(dst, byte(e.Op))
	dst = accountCodec.Append(dst, e.Account)
	dst = idCodec.Append(dst, e.Kitty)
	return balanceCodec.Append(dst, e.Amount)
}

func (journalCodec) Decode(src []byte) (JournalEntry, int, error) {
	var e JournalEntry
	if len(src) < 1 {
		return e, 0, fmt.Errorf("journal entry is empty")
	}
	e.Op = EscrowOp(src[0])
	off := 1
	a, n, err := accountCodec.Decode(src[off:])
	if err != nil {
		return e, 0, err
	}
	e.Account = a
	off += n
	id, n, err := idCodec.Decode(src[off:])
	if err != nil {
		return e, 0, err
	}
	e.Kitty = id
	off += n
	amt, n, err := balanceCodec.Decode(src[off:])
	if err != nil {
		return e, 0, err
	}
	e.Amount = amt
	return e, off + n, nil
}
