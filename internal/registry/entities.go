package registry

import (
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// EntityStore maps ids to immutable genomes. Uniqueness of ids is the
// allocator's job; Insert does not re-check it.
type EntityStore struct {
	genomes kv.Map[kitty.ID, kitty.Genome]
}

func NewEntityStore() *EntityStore {
	return &EntityStore{genomes: kv.NewMap[kitty.ID, kitty.Genome](bucketKitties, idCodec, genomeCodec)}
}

func (s *EntityStore) Get(r kv.Reader, id kitty.ID) (kitty.Genome, bool, error) {
	return s.genomes.Get(r, id)
}

func (s *EntityStore) Insert(tx kv.Tx, id kitty.ID, g kitty.Genome) error {
	return s.genomes.Put(tx, id, g)
}

func (s *EntityStore) Each(r kv.Reader, fn func(kitty.ID, kitty.Genome) error) error {
	return s.genomes.Iterate(r, fn)
}
