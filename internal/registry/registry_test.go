package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
	"github.com/kittyledger/server/internal/random"
)

const reserve kitty.Balance = 100

var (
	alice = kitty.MustAccount("alice")
	bob   = kitty.MustAccount("bob")
	carol = kitty.MustAccount("carol")
	seed  = random.Fixed("test-seed")
)

type fixture struct {
	store    *kv.MemoryStore
	ledger   *ledger.Ledger
	bus      *event.Bus
	reg      *Registry
	created  []kitty.Created
	transfer []kitty.Transferred
}

func newFixture(t *testing.T, opts Options, funds map[kitty.Account]kitty.Balance) *fixture {
	t.Helper()
	f := &fixture{store: kv.NewMemoryStore(), ledger: ledger.New(), bus: event.NewBus()}
	require.NoError(t, f.store.Update(context.Background(), func(tx kv.Tx) error {
		for a, amt := range funds {
			if err := f.ledger.Deposit(tx, a, amt); err != nil {
				return err
			}
		}
		return nil
	}))
	f.reg = f.withOptions(t, opts)
	event.Subscribe(f.bus, func(e kitty.Created) { f.created = append(f.created, e) })
	event.Subscribe(f.bus, func(e kitty.Transferred) { f.transfer = append(f.transfer, e) })
	return f
}

// withOptions builds another registry over the same store and ledger.
func (f *fixture) withOptions(t *testing.T, opts Options) *Registry {
	t.Helper()
	if opts.IDBits == 0 {
		opts.IDBits = 32
	}
	reg, err := New(opts, Deps{
		Store:   f.store,
		Ledger:  f.ledger,
		Source:  random.Blake2{},
		Entropy: seed,
		Bus:     f.bus,
		Log:     zap.NewNop(),
	})
	require.NoError(t, err)
	return reg
}

func (f *fixture) flush() {
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
}

func (f *fixture) balance(t *testing.T, a kitty.Account) ledger.AccountData {
	t.Helper()
	d, err := f.reg.Balance(context.Background(), a)
	require.NoError(t, err)
	return d
}

func defaultOpts() Options {
	return Options{IDBits: 32, ReserveAmount: reserve}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000})

	ev, err := f.reg.Create(ctx, alice)
	require.NoError(t, err)

	k, err := f.reg.Kitty(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, kitty.Created{Owner: alice, ID: 0, Genome: k.Genome}, ev)
	assert.Equal(t, alice, k.Owner)
	assert.Nil(t, k.Parents)
	assert.Equal(t, reserve, k.Deposit)
	assert.Equal(t, random.Blake2{}.Random(seed, random.Subject{Caller: alice, Nonce: 0}), k.Genome)

	owned, err := f.reg.OwnedBy(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []kitty.ID{0}, owned)
	assert.Equal(t, ledger.AccountData{Free: 900, Reserved: 100}, f.balance(t, alice))

	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitty.ID(1), n)

	assert.Empty(t, f.created)
	f.flush()
	assert.Equal(t, []kitty.Created{ev}, f.created)
	require.NoError(t, f.reg.Verify(ctx))
}

func TestCreateIDsStrictlyIncrease(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})

	var ids []kitty.ID
	for _, who := range []kitty.Account{alice, bob, alice, bob} {
		ev, err := f.reg.Create(ctx, who)
		require.NoError(t, err)
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []kitty.ID{0, 1, 2, 3}, ids)

	k0, err := f.reg.Kitty(ctx, 0)
	require.NoError(t, err)
	k2, err := f.reg.Kitty(ctx, 2)
	require.NoError(t, err)
	assert.NotEqual(t, k0.Genome, k2.Genome, "nonce must change the genome")
}

func TestCreateInsufficientFundsConsumesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 99})

	_, err := f.reg.Create(ctx, alice)
	require.ErrorIs(t, err, kitty.ErrInsufficientFunds)
	_, err = f.reg.Create(ctx, alice)
	require.ErrorIs(t, err, kitty.ErrInsufficientFunds)

	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, ledger.AccountData{Free: 99}, f.balance(t, alice))
	_, err = f.reg.Kitty(ctx, 0)
	require.ErrorIs(t, err, kitty.ErrKittyNotFound)

	f.flush()
	assert.Empty(t, f.created)
}

func TestCountOverflow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{IDBits: 2, ReserveAmount: reserve}, map[kitty.Account]kitty.Balance{alice: 10_000})

	for want := kitty.ID(0); want < 3; want++ {
		ev, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)
		assert.Equal(t, want, ev.ID)
	}
	before := f.balance(t, alice)

	_, err := f.reg.Create(ctx, alice)
	require.ErrorIs(t, err, kitty.ErrCountOverflow)
	_, err = f.reg.Breed(ctx, alice, 0, 1)
	require.ErrorIs(t, err, kitty.ErrCountOverflow)

	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitty.ID(3), n)
	assert.Equal(t, before, f.balance(t, alice))
	require.NoError(t, f.reg.Verify(ctx))
}

func TestCreateThenBreedRecordsLineage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000})

	_, err := f.reg.Create(ctx, alice)
	require.NoError(t, err)
	_, err = f.reg.Create(ctx, alice)
	require.NoError(t, err)

	ev, err := f.reg.Breed(ctx, alice, 0, 1)
	require.NoError(t, err)

	p0, err := f.reg.Kitty(ctx, 0)
	require.NoError(t, err)
	p1, err := f.reg.Kitty(ctx, 1)
	require.NoError(t, err)
	child, err := f.reg.Kitty(ctx, 2)
	require.NoError(t, err)

	selector := random.Blake2{}.Random(seed, random.Subject{Caller: alice, Nonce: 2})
	assert.Equal(t, kitty.Combine(p0.Genome, p1.Genome, selector), child.Genome)
	assert.Equal(t, kitty.Created{Owner: alice, ID: 2, Genome: child.Genome}, ev)
	require.NotNil(t, child.Parents)
	assert.Equal(t, kitty.Parents{First: 0, Second: 1}, *child.Parents)
	assert.Equal(t, alice, child.Owner)

	for _, id := range []kitty.ID{0, 1} {
		children, err := f.reg.Children(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []kitty.ID{2}, children)
	}
	partners, err := f.reg.Partners(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []kitty.ID{1}, partners)
	partners, err = f.reg.Partners(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []kitty.ID{0}, partners)

	assert.Equal(t, ledger.AccountData{Free: 700, Reserved: 300}, f.balance(t, alice))
	f.flush()
	assert.Len(t, f.created, 3)
	require.NoError(t, f.reg.Verify(ctx))
}

func TestBreedPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
	for _, who := range []kitty.Account{alice, alice, bob} {
		_, err := f.reg.Create(ctx, who)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		caller   kitty.Account
		id1, id2 kitty.ID
		want     error
	}{
		{"same parent", alice, 0, 0, kitty.ErrSameParent},
		{"same missing parent", alice, 9, 9, kitty.ErrSameParent},
		{"first missing", alice, 9, 0, kitty.ErrKittyNotFound},
		{"second missing", alice, 0, 9, kitty.ErrKittyNotFound},
		{"second not owned", alice, 0, 2, kitty.ErrNotOwner},
		{"first not owned", bob, 0, 2, kitty.ErrNotOwner},
		{"stranger", carol, 0, 1, kitty.ErrNotOwner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.reg.Breed(ctx, tt.caller, tt.id1, tt.id2)
			require.ErrorIs(t, err, tt.want)
		})
	}

	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitty.ID(3), n)
}

func TestBreedInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 250})
	for range 2 {
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)
	}

	_, err := f.reg.Breed(ctx, alice, 0, 1)
	require.ErrorIs(t, err, kitty.ErrInsufficientFunds)

	children, err := f.reg.Children(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, children)
	partners, err := f.reg.Partners(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, partners)
	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitty.ID(2), n)
}

func TestTransferMovesEscrow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
	_, err := f.reg.Create(ctx, alice)
	require.NoError(t, err)

	ev, err := f.reg.Transfer(ctx, alice, bob, 0)
	require.NoError(t, err)
	assert.Equal(t, kitty.Transferred{From: alice, To: bob, ID: 0}, ev)

	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, bob, owner)
	owned, err := f.reg.OwnedBy(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, owned)
	owned, err = f.reg.OwnedBy(ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, []kitty.ID{0}, owned)

	assert.Equal(t, ledger.AccountData{Free: 1000}, f.balance(t, alice))
	assert.Equal(t, ledger.AccountData{Free: 900, Reserved: 100}, f.balance(t, bob))

	entries, err := f.reg.Journal(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, JournalEntry{Seq: 1, Op: OpReserve, Account: bob, Kitty: 0, Amount: reserve}, entries[1])
	assert.Equal(t, JournalEntry{Seq: 2, Op: OpRelease, Account: alice, Kitty: 0, Amount: reserve}, entries[2])

	f.flush()
	assert.Equal(t, []kitty.Transferred{ev}, f.transfer)
	require.NoError(t, f.reg.Verify(ctx))
}

// state captures everything a rejected operation must leave untouched.
type state struct {
	balances map[kitty.Account]ledger.AccountData
	owned    map[kitty.Account][]kitty.ID
	journal  []JournalEntry
}

func (f *fixture) snapshot(t *testing.T, accounts ...kitty.Account) state {
	t.Helper()
	ctx := context.Background()
	st := state{
		balances: make(map[kitty.Account]ledger.AccountData),
		owned:    make(map[kitty.Account][]kitty.ID),
	}
	for _, a := range accounts {
		st.balances[a] = f.balance(t, a)
		ids, err := f.reg.OwnedBy(ctx, a)
		require.NoError(t, err)
		st.owned[a] = ids
	}
	var err error
	st.journal, err = f.reg.Journal(ctx, 0, 0)
	require.NoError(t, err)
	return st
}

func TestTransferPreconditions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000, carol: 1000})
	_, err := f.reg.Create(ctx, alice)
	require.NoError(t, err)
	f.flush()
	before := f.snapshot(t, alice, bob, carol)

	_, err = f.reg.Transfer(ctx, alice, bob, 7)
	require.ErrorIs(t, err, kitty.ErrKittyNotFound)
	_, err = f.reg.Transfer(ctx, bob, carol, 0)
	require.ErrorIs(t, err, kitty.ErrNotOwner)
	_, err = f.reg.Transfer(ctx, alice, alice, 0)
	require.ErrorIs(t, err, kitty.ErrTransferToSelf)

	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	assert.Equal(t, before, f.snapshot(t, alice, bob, carol))

	f.flush()
	assert.Empty(t, f.transfer)
	require.NoError(t, f.reg.Verify(ctx))
}

func TestEventsDeliveredInCommitOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 10000, bob: 10000})
	var order []string
	event.Subscribe(f.bus, func(kitty.Created) { order = append(order, "created") })
	event.Subscribe(f.bus, func(kitty.Transferred) { order = append(order, "transferred") })

	for i := range 50 {
		order = order[:0]
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)
		_, err = f.reg.Transfer(ctx, alice, bob, kitty.ID(i))
		require.NoError(t, err)
		f.flush()
		require.Equal(t, []string{"created", "transferred"}, order, "tick %d", i)
	}
}

func TestJournalPagesFromSequence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
	for range 3 {
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)
	}
	_, err := f.reg.Transfer(ctx, alice, bob, 2)
	require.NoError(t, err)

	page, err := f.reg.Journal(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, JournalEntry{Seq: 2, Op: OpReserve, Account: alice, Kitty: 2, Amount: reserve}, page[0])
	assert.Equal(t, JournalEntry{Seq: 3, Op: OpReserve, Account: bob, Kitty: 2, Amount: reserve}, page[1])

	tail, err := f.reg.Journal(ctx, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, []JournalEntry{{Seq: 4, Op: OpRelease, Account: alice, Kitty: 2, Amount: reserve}}, tail)

	none, err := f.reg.Journal(ctx, 9, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFailedTransferIsAtomic(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 50})
	_, err := f.reg.Create(ctx, alice)
	require.NoError(t, err)
	f.flush()

	journal, err := f.reg.Journal(ctx, 0, 0)
	require.NoError(t, err)

	for range 2 {
		_, err = f.reg.Transfer(ctx, alice, bob, 0)
		require.ErrorIs(t, err, kitty.ErrInsufficientFunds)
	}

	owner, err := f.reg.OwnerOf(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, alice, owner)
	owned, err := f.reg.OwnedBy(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, owned)
	assert.Equal(t, ledger.AccountData{Free: 900, Reserved: 100}, f.balance(t, alice))
	assert.Equal(t, ledger.AccountData{Free: 50}, f.balance(t, bob))

	after, err := f.reg.Journal(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, journal, after)

	f.flush()
	assert.Empty(t, f.transfer)
	require.NoError(t, f.reg.Verify(ctx))
}

func TestReleasePolicies(t *testing.T) {
	ctx := context.Background()

	t.Run("configured", func(t *testing.T) {
		f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)

		reg := f.withOptions(t, Options{ReserveAmount: 40, ReleasePolicy: ReleaseConfigured})
		_, err = reg.Transfer(ctx, alice, bob, 0)
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountData{Free: 940, Reserved: 60}, f.balance(t, alice))
		assert.Equal(t, ledger.AccountData{Free: 960, Reserved: 40}, f.balance(t, bob))
	})

	t.Run("recorded", func(t *testing.T) {
		f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)

		reg := f.withOptions(t, Options{ReserveAmount: 40, ReleasePolicy: ReleaseRecorded})
		_, err = reg.Transfer(ctx, alice, bob, 0)
		require.NoError(t, err)
		assert.Equal(t, ledger.AccountData{Free: 1000}, f.balance(t, alice))
		assert.Equal(t, ledger.AccountData{Free: 960, Reserved: 40}, f.balance(t, bob))

		k, err := reg.Kitty(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, kitty.Balance(40), k.Deposit)
	})

	t.Run("short release aborts", func(t *testing.T) {
		f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 1000, bob: 1000})
		_, err := f.reg.Create(ctx, alice)
		require.NoError(t, err)

		reg := f.withOptions(t, Options{ReserveAmount: 150})
		_, err = reg.Transfer(ctx, alice, bob, 0)
		require.ErrorIs(t, err, kitty.ErrInsufficientReleaseFunds)
		assert.Equal(t, ledger.AccountData{Free: 900, Reserved: 100}, f.balance(t, alice))
		assert.Equal(t, ledger.AccountData{Free: 1000}, f.balance(t, bob))
	})
}

func TestConcurrentCallersAreSerialised(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, defaultOpts(), map[kitty.Account]kitty.Balance{alice: 100_000, bob: 100_000})

	var wg sync.WaitGroup
	for i := range 40 {
		who := alice
		if i%2 == 1 {
			who = bob
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.reg.Create(ctx, who)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := f.reg.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, kitty.ID(40), n)
	a, err := f.reg.OwnedBy(ctx, alice)
	require.NoError(t, err)
	b, err := f.reg.OwnedBy(ctx, bob)
	require.NoError(t, err)
	assert.Len(t, a, 20)
	assert.Len(t, b, 20)
	assert.Equal(t, ledger.AccountData{Free: 98_000, Reserved: 2_000}, f.balance(t, alice))
	require.NoError(t, f.reg.Verify(ctx))
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(Options{ReleasePolicy: "sometimes"}, Deps{
		Store: kv.NewMemoryStore(), Ledger: ledger.New(), Source: random.Blake2{}, Entropy: seed,
	})
	require.Error(t, err)
}
