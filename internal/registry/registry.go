// Package registry is the kitty registry engine: id allocation, genomes,
// ownership, lineage and escrow, mutated only through Create, Transfer and
// Breed. Each operation validates every precondition and applies every write
// inside one kv transaction, so a rejected operation leaves no trace.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
	"github.com/kittyledger/server/internal/random"
)

// Options are the registry's tunables.
type Options struct {
	IDBits        int
	ReserveAmount kitty.Balance
	ReleasePolicy ReleasePolicy
}

// Observer is told the outcome of every operation.
type Observer interface {
	Observe(op string, err error)
}

// Deps are the registry's collaborators. Bus and Observer are optional.
type Deps struct {
	Store    kv.Store
	Ledger   *ledger.Ledger
	Source   random.Source
	Entropy  random.Entropy
	Bus      *event.Bus
	Observer Observer
	Log      *zap.Logger
}

// Registry is the aggregate owning every store and index. Operations are
// serialised by mu, giving them a total order.
type Registry struct {
	mu sync.Mutex

	store    kv.Store
	ledger   *ledger.Ledger
	source   random.Source
	entropy  random.Entropy
	bus      *event.Bus
	observer Observer
	log      *zap.Logger
	tracer   trace.Tracer

	ids       *IDAllocator
	entities  *EntityStore
	ownership *OwnershipIndex
	lineage   *LineageIndex
	escrow    *EscrowManager
	journal   *Journal
	nonce     kv.Value[uint64]
}

func New(opts Options, deps Deps) (*Registry, error) {
	if deps.Store == nil || deps.Ledger == nil || deps.Source == nil || deps.Entropy == nil {
		return nil, errors.New("registry: store, ledger, source and entropy are required")
	}
	policy, err := ParseReleasePolicy(string(opts.ReleasePolicy))
	if err != nil {
		return nil, err
	}
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	journal := NewJournal()
	return &Registry{
		store:     deps.Store,
		ledger:    deps.Ledger,
		source:    deps.Source,
		entropy:   deps.Entropy,
		bus:       deps.Bus,
		observer:  deps.Observer,
		log:       log,
		tracer:    otel.Tracer("github.com/kittyledger/server/internal/registry"),
		ids:       NewIDAllocator(opts.IDBits),
		entities:  NewEntityStore(),
		ownership: NewOwnershipIndex(),
		lineage:   NewLineageIndex(),
		escrow:    NewEscrowManager(deps.Ledger, opts.ReserveAmount, policy, journal),
		journal:   journal,
		nonce:     kv.NewValue[uint64](bucketMeta, "op_nonce", kv.Uint64[uint64]{}),
	}, nil
}

// Create mints a kitty with a random genome for caller.
func (r *Registry) Create(ctx context.Context, caller kitty.Account) (kitty.Created, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Create",
		trace.WithAttributes(attribute.String("caller", caller.String())))
	r.mu.Lock()
	defer r.mu.Unlock()

	var ev kitty.Created
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		id, err := r.ids.Next(tx)
		if err != nil {
			return err
		}
		genome, err := r.random(tx, caller)
		if err != nil {
			return err
		}
		if err := r.escrow.Reserve(tx, caller, id); err != nil {
			return err
		}
		if err := r.insert(tx, id, genome, caller, nil); err != nil {
			return err
		}
		ev = kitty.Created{Owner: caller, ID: id, Genome: genome}
		return nil
	})
	r.finish(span, "create", err)
	if err != nil {
		return kitty.Created{}, err
	}

	r.log.Debug("kitty created", zap.String("owner", caller.String()), zap.Uint64("kitty", uint64(ev.ID)))
	if r.bus != nil {
		event.Emit(r.bus, ev)
	}
	return ev, nil
}

// Transfer moves id from caller to to. The recipient's reservation is taken
// before the caller's is released and before ownership changes.
func (r *Registry) Transfer(ctx context.Context, caller, to kitty.Account, id kitty.ID) (kitty.Transferred, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Transfer", trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.String("to", to.String()),
		attribute.Int64("kitty", int64(id)),
	))
	r.mu.Lock()
	defer r.mu.Unlock()

	var ev kitty.Transferred
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		owner, ok, err := r.ownership.OwnerOf(tx, id)
		if err != nil {
			return err
		}
		if !ok {
			return kitty.ErrKittyNotFound
		}
		if owner != caller {
			return kitty.ErrNotOwner
		}
		if to == caller {
			return kitty.ErrTransferToSelf
		}

		recorded, err := r.escrow.Deposit(tx, id)
		if err != nil {
			return err
		}
		if err := r.escrow.Reserve(tx, to, id); err != nil {
			return err
		}
		if err := r.escrow.Release(tx, caller, id, recorded); err != nil {
			return err
		}
		if err := r.ownership.Reassign(tx, id, caller, to); err != nil {
			return err
		}
		if err := r.bumpNonce(tx); err != nil {
			return err
		}
		ev = kitty.Transferred{From: caller, To: to, ID: id}
		return nil
	})
	r.finish(span, "transfer", err)
	if err != nil {
		return kitty.Transferred{}, err
	}

	r.log.Debug("kitty transferred",
		zap.String("from", caller.String()),
		zap.String("to", to.String()),
		zap.Uint64("kitty", uint64(id)))
	if r.bus != nil {
		event.Emit(r.bus, ev)
	}
	return ev, nil
}

// Breed creates a child of two kitties owned by caller. Each child bit comes
// from the first parent where the random selector bit is set, else from the
// second.
func (r *Registry) Breed(ctx context.Context, caller kitty.Account, id1, id2 kitty.ID) (kitty.Created, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Breed", trace.WithAttributes(
		attribute.String("caller", caller.String()),
		attribute.Int64("parent1", int64(id1)),
		attribute.Int64("parent2", int64(id2)),
	))
	r.mu.Lock()
	defer r.mu.Unlock()

	var ev kitty.Created
	err := r.store.Update(ctx, func(tx kv.Tx) error {
		if id1 == id2 {
			return kitty.ErrSameParent
		}
		g1, err := r.ownedGenome(tx, caller, id1)
		if err != nil {
			return err
		}
		g2, err := r.ownedGenome(tx, caller, id2)
		if err != nil {
			return err
		}
		id, err := r.ids.Next(tx)
		if err != nil {
			return err
		}
		selector, err := r.random(tx, caller)
		if err != nil {
			return err
		}
		child := kitty.Combine(g1, g2, selector)
		if err := r.escrow.Reserve(tx, caller, id); err != nil {
			return err
		}
		if err := r.insert(tx, id, child, caller, &kitty.Parents{First: id1, Second: id2}); err != nil {
			return err
		}
		ev = kitty.Created{Owner: caller, ID: id, Genome: child}
		return nil
	})
	r.finish(span, "breed", err)
	if err != nil {
		return kitty.Created{}, err
	}

	r.log.Debug("kitty bred",
		zap.String("owner", caller.String()),
		zap.Uint64("kitty", uint64(ev.ID)),
		zap.Uint64("parent1", uint64(id1)),
		zap.Uint64("parent2", uint64(id2)))
	if r.bus != nil {
		event.Emit(r.bus, ev)
	}
	return ev, nil
}

// ownedGenome loads id's genome and checks caller owns it.
func (r *Registry) ownedGenome(tx kv.Reader, caller kitty.Account, id kitty.ID) (kitty.Genome, error) {
	g, ok, err := r.entities.Get(tx, id)
	if err != nil {
		return g, err
	}
	if !ok {
		return g, kitty.ErrKittyNotFound
	}
	owner, ok, err := r.ownership.OwnerOf(tx, id)
	if err != nil {
		return g, err
	}
	if !ok {
		return g, kitty.ErrKittyNotFound
	}
	if owner != caller {
		return g, kitty.ErrNotOwner
	}
	return g, nil
}

// insert writes a new kitty with its owner and optional lineage and commits
// the allocator and nonce.
func (r *Registry) insert(tx kv.Tx, id kitty.ID, g kitty.Genome, owner kitty.Account, parents *kitty.Parents) error {
	if err := r.entities.Insert(tx, id, g); err != nil {
		return err
	}
	if err := r.ownership.Assign(tx, id, owner); err != nil {
		return err
	}
	if parents != nil {
		if err := r.lineage.RecordBreeding(tx, id, *parents); err != nil {
			return err
		}
	}
	if err := r.ids.Commit(tx, id); err != nil {
		return err
	}
	return r.bumpNonce(tx)
}

// random derives 16 bytes from the current entropy, caller and the
// operation nonce. The nonce advances only when the operation commits.
func (r *Registry) random(tx kv.Reader, caller kitty.Account) (kitty.Genome, error) {
	n, _, err := r.nonce.Get(tx)
	if err != nil {
		return kitty.Genome{}, err
	}
	return r.source.Random(r.entropy.Entropy(), random.Subject{Caller: caller, Nonce: n}), nil
}

func (r *Registry) bumpNonce(tx kv.Tx) error {
	n, _, err := r.nonce.Get(tx)
	if err != nil {
		return err
	}
	return r.nonce.Put(tx, n+1)
}

func (r *Registry) finish(span trace.Span, op string, err error) {
	defer span.End()
	if r.observer != nil {
		r.observer.Observe(op, err)
	}
	if err == nil {
		return
	}
	if kitty.IsDomain(err) {
		span.SetAttributes(attribute.String("rejected", err.Error()))
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.log.Error("registry operation failed", zap.String("op", op), zap.Error(err))
}

// Verify checks every index invariant. It is used by tests and the audit
// command.
func (r *Registry) Verify(ctx context.Context) error {
	return r.store.View(ctx, func(rd kv.Reader) error {
		if err := r.ownership.Verify(rd); err != nil {
			return fmt.Errorf("ownership: %w", err)
		}
		if err := r.lineage.Verify(rd); err != nil {
			return fmt.Errorf("lineage: %w", err)
		}
		count, err := r.ids.Count(rd)
		if err != nil {
			return err
		}
		return r.entities.Each(rd, func(id kitty.ID, _ kitty.Genome) error {
			if id >= count {
				return fmt.Errorf("kitty %d at or above counter %d", id, count)
			}
			if _, ok, err := r.ownership.OwnerOf(rd, id); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("kitty %d has no owner", id)
			}
			return nil
		})
	})
}
