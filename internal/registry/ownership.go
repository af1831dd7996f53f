package registry

import (
	"fmt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// OwnershipIndex keeps id -> owner and owner -> {id} as mutual inverses.
// Both views change only through Assign and Reassign, and always in the same
// transaction.
type OwnershipIndex struct {
	owners kv.Map[kitty.ID, kitty.Account]
	owned  kv.DoubleMap[kitty.Account, kitty.ID, struct{}]
}

func NewOwnershipIndex() *OwnershipIndex {
	return &OwnershipIndex{
		owners: kv.NewMap[kitty.ID, kitty.Account](bucketOwners, idCodec, accountCodec),
		owned:  kv.NewDoubleMap[kitty.Account, kitty.ID, struct{}](bucketOwned, accountCodec, idCodec, kv.Unit{}),
	}
}

func (o *OwnershipIndex) OwnerOf(r kv.Reader, id kitty.ID) (kitty.Account, bool, error) {
	return o.owners.Get(r, id)
}

// OwnedBy lists a's kitties in ascending id order.
func (o *OwnershipIndex) OwnedBy(r kv.Reader, a kitty.Account) ([]kitty.ID, error) {
	return o.owned.Keys(r, a)
}

func (o *OwnershipIndex) Assign(tx kv.Tx, id kitty.ID, owner kitty.Account) error {
	if err := o.owners.Put(tx, id, owner); err != nil {
		return err
	}
	return o.owned.Put(tx, owner, id, struct{}{})
}

// Reassign moves id from one owner to another. from must be the current
// owner; the caller has checked this.
func (o *OwnershipIndex) Reassign(tx kv.Tx, id kitty.ID, from, to kitty.Account) error {
	if err := o.owned.Delete(tx, from, id); err != nil {
		return err
	}
	if err := o.owned.Put(tx, to, id, struct{}{}); err != nil {
		return err
	}
	return o.owners.Put(tx, id, to)
}

// Verify checks that both views agree.
func (o *OwnershipIndex) Verify(r kv.Reader) error {
	err := o.owners.Iterate(r, func(id kitty.ID, owner kitty.Account) error {
		ok, err := o.owned.Has(r, owner, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("kitty %d owned by %s but missing from owner set", id, owner)
		}
		return nil
	})
	if err != nil {
		return err
	}
	return r.Scan(bucketOwned, nil, func(key, _ []byte) error {
		owner, n, err := accountCodec.Decode(key)
		if err != nil {
			return err
		}
		id, _, err := idCodec.Decode(key[n:])
		if err != nil {
			return err
		}
		got, ok, err := o.owners.Get(r, id)
		if err != nil {
			return err
		}
		if !ok || got != owner {
			return fmt.Errorf("kitty %d listed under %s but owned by %q", id, owner, got)
		}
		return nil
	})
}
