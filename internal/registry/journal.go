package registry

import (
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// EscrowOp tags a journal line.
type EscrowOp byte

const (
	OpReserve EscrowOp = 1
	OpRelease EscrowOp = 2
)

func (o EscrowOp) String() string {
	switch o {
	case OpReserve:
		return "reserve"
	case OpRelease:
		return "release"
	default:
		return "unknown"
	}
}

// JournalEntry records one reservation movement made by the registry.
type JournalEntry struct {
	Seq     uint64
	Op      EscrowOp
	Account kitty.Account
	Kitty   kitty.ID
	Amount  kitty.Balance
}

// Journal is the append-only audit trail of escrow movements. Lines are
// written in the transaction that moved the funds, so the journal and the
// ledger never disagree.
type Journal struct {
	seq     kv.Value[uint64]
	entries kv.Map[uint64, JournalEntry]
}

func NewJournal() *Journal {
	return &Journal{
		seq:     kv.NewValue[uint64](bucketMeta, "journal_seq", kv.Uint64[uint64]{}),
		entries: kv.NewMap[uint64, JournalEntry](bucketJournal, kv.Uint64[uint64]{}, journalCodec{}),
	}
}

func (j *Journal) Append(tx kv.Tx, e JournalEntry) error {
	seq, _, err := j.seq.Get(tx)
	if err != nil {
		return err
	}
	if err := j.entries.Put(tx, seq, e); err != nil {
		return err
	}
	return j.seq.Put(tx, seq+1)
}

// Since returns up to limit entries with sequence >= from. limit <= 0 means
// no limit.
func (j *Journal) Since(r kv.Reader, from uint64, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	err := j.entries.IterateFrom(r, from, func(seq uint64, e JournalEntry) error {
		e.Seq = seq
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			return kv.ErrStop
		}
		return nil
	})
	return out, err
}
