package registry

import (
	"context"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
)

// Read-side queries. They run on a read-only view and do not take the
// operation lock.

// Kitty assembles the full read model of id.
func (r *Registry) Kitty(ctx context.Context, id kitty.ID) (kitty.Kitty, error) {
	var k kitty.Kitty
	err := r.store.View(ctx, func(rd kv.Reader) error {
		g, ok, err := r.entities.Get(rd, id)
		if err != nil {
			return err
		}
		if !ok {
			return kitty.ErrKittyNotFound
		}
		owner, _, err := r.ownership.OwnerOf(rd, id)
		if err != nil {
			return err
		}
		k = kitty.Kitty{ID: id, Genome: g, Owner: owner}
		if p, ok, err := r.lineage.ParentsOf(rd, id); err != nil {
			return err
		} else if ok {
			k.Parents = &p
		}
		k.Deposit, err = r.escrow.Deposit(rd, id)
		return err
	})
	return k, err
}

func (r *Registry) OwnerOf(ctx context.Context, id kitty.ID) (kitty.Account, error) {
	var owner kitty.Account
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var ok bool
		var err error
		owner, ok, err = r.ownership.OwnerOf(rd, id)
		if err == nil && !ok {
			err = kitty.ErrKittyNotFound
		}
		return err
	})
	return owner, err
}

func (r *Registry) OwnedBy(ctx context.Context, a kitty.Account) ([]kitty.ID, error) {
	var ids []kitty.ID
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		ids, err = r.ownership.OwnedBy(rd, a)
		return err
	})
	return ids, err
}

func (r *Registry) Children(ctx context.Context, id kitty.ID) ([]kitty.ID, error) {
	var ids []kitty.ID
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		ids, err = r.lineage.ChildrenOf(rd, id)
		return err
	})
	return ids, err
}

func (r *Registry) Partners(ctx context.Context, id kitty.ID) ([]kitty.ID, error) {
	var ids []kitty.ID
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		ids, err = r.lineage.PartnersOf(rd, id)
		return err
	})
	return ids, err
}

func (r *Registry) Balance(ctx context.Context, a kitty.Account) (ledger.AccountData, error) {
	var d ledger.AccountData
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		d, err = r.ledger.Account(rd, a)
		return err
	})
	return d, err
}

// Count is the number of kitties ever created.
func (r *Registry) Count(ctx context.Context) (kitty.ID, error) {
	var n kitty.ID
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		n, err = r.ids.Count(rd)
		return err
	})
	return n, err
}

func (r *Registry) Journal(ctx context.Context, from uint64, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	err := r.store.View(ctx, func(rd kv.Reader) error {
		var err error
		out, err = r.journal.Since(rd, from, limit)
		return err
	})
	return out, err
}

// ReserveAmount is the configured per-kitty collateral.
func (r *Registry) ReserveAmount() kitty.Balance { return r.escrow.Amount() }
