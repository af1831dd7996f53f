package registry

import (
	"fmt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// LineageIndex records parents, children and partners. Entries are never
// removed.
type LineageIndex struct {
	parents  kv.Map[kitty.ID, kitty.Parents]
	children kv.DoubleMap[kitty.ID, kitty.ID, struct{}]
	partners kv.DoubleMap[kitty.ID, kitty.ID, struct{}]
}

func NewLineageIndex() *LineageIndex {
	return &LineageIndex{
		parents:  kv.NewMap[kitty.ID, kitty.Parents](bucketParents, idCodec, parentsCodec{}),
		children: kv.NewDoubleMap[kitty.ID, kitty.ID, struct{}](bucketChildren, idCodec, idCodec, kv.Unit{}),
		partners: kv.NewDoubleMap[kitty.ID, kitty.ID, struct{}](bucketPartners, idCodec, idCodec, kv.Unit{}),
	}
}

// RecordBreeding stores the parent pair of child, adds child to both
// parents' children and makes the parents partners of each other.
func (l *LineageIndex) RecordBreeding(tx kv.Tx, child kitty.ID, p kitty.Parents) error {
	if err := l.parents.Put(tx, child, p); err != nil {
		return err
	}
	if err := l.children.Put(tx, p.First, child, struct{}{}); err != nil {
		return err
	}
	if err := l.children.Put(tx, p.Second, child, struct{}{}); err != nil {
		return err
	}
	if err := l.partners.Put(tx, p.First, p.Second, struct{}{}); err != nil {
		return err
	}
	return l.partners.Put(tx, p.Second, p.First, struct{}{})
}

func (l *LineageIndex) ParentsOf(r kv.Reader, id kitty.ID) (kitty.Parents, bool, error) {
	return l.parents.Get(r, id)
}

func (l *LineageIndex) ChildrenOf(r kv.Reader, id kitty.ID) ([]kitty.ID, error) {
	return l.children.Keys(r, id)
}

func (l *LineageIndex) PartnersOf(r kv.Reader, id kitty.ID) ([]kitty.ID, error) {
	return l.partners.Keys(r, id)
}

// Verify checks that every recorded parent pair is reflected in the
// children and partner relations.
func (l *LineageIndex) Verify(r kv.Reader) error {
	return l.parents.Iterate(r, func(child kitty.ID, p kitty.Parents) error {
		for _, parent := range []kitty.ID{p.First, p.Second} {
			ok, err := l.children.Has(r, parent, child)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("kitty %d missing from children of %d", child, parent)
			}
		}
		for _, pair := range [][2]kitty.ID{{p.First, p.Second}, {p.Second, p.First}} {
			ok, err := l.partners.Has(r, pair[0], pair[1])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("kitty %d missing from partners of %d", pair[1], pair[0])
			}
		}
		return nil
	})
}
