package registry

import (
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// IDAllocator hands out strictly increasing kitty ids. Next only reads the
// counter; the increment is written by Commit inside the transaction that
// inserts the kitty, so a rejected operation never consumes an id.
type IDAllocator struct {
	count kv.Value[kitty.ID]
	max   kitty.ID
}

func NewIDAllocator(bits int) *IDAllocator {
	return &IDAllocator{
		count: kv.NewValue[kitty.ID](bucketMeta, "kitties_count", idCodec),
		max:   kitty.MaxID(bits),
	}
}

// Next returns the id the next kitty will get, or kitty.ErrCountOverflow once
// the counter has reached the largest representable id.
func (a *IDAllocator) Next(r kv.Reader) (kitty.ID, error) {
	id, err := a.Count(r)
	if err != nil {
		return 0, err
	}
	if id >= a.max {
		return 0, kitty.ErrCountOverflow
	}
	return id, nil
}

func (a *IDAllocator) Commit(tx kv.Tx, id kitty.ID) error {
	return a.count.Put(tx, id+1)
}

// Count is the number of kitties ever allocated.
func (a *IDAllocator) Count(r kv.Reader) (kitty.ID, error) {
	id, _, err := a.count.Get(r)
	return id, err
}

func (a *IDAllocator) Max() kitty.ID { return a.max }
