package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

var alice = kitty.MustAccount("alice")

func update(t *testing.T, s kv.Store, fn func(tx kv.Tx) error) error {
	t.Helper()
	return s.Update(context.Background(), fn)
}

func balance(t *testing.T, s kv.Store, l *Ledger, a kitty.Account) AccountData {
	t.Helper()
	var d AccountData
	require.NoError(t, s.View(context.Background(), func(r kv.Reader) error {
		var err error
		d, err = l.Account(r, a)
		return err
	}))
	return d
}

func TestReserveAndUnreserve(t *testing.T) {
	s := kv.NewMemoryStore()
	l := New()

	require.NoError(t, update(t, s, func(tx kv.Tx) error { return l.Deposit(tx, alice, 100) }))
	require.NoError(t, update(t, s, func(tx kv.Tx) error { return l.Reserve(tx, alice, 30) }))
	assert.Equal(t, AccountData{Free: 70, Reserved: 30}, balance(t, s, l, alice))

	var left kitty.Balance
	require.NoError(t, update(t, s, func(tx kv.Tx) error {
		var err error
		left, err = l.Unreserve(tx, alice, 50)
		return err
	}))
	assert.Equal(t, kitty.Balance(20), left)
	assert.Equal(t, AccountData{Free: 100}, balance(t, s, l, alice))
}

func TestReserveInsufficient(t *testing.T) {
	s := kv.NewMemoryStore()
	l := New()
	require.NoError(t, update(t, s, func(tx kv.Tx) error { return l.Deposit(tx, alice, 5) }))

	err := update(t, s, func(tx kv.Tx) error { return l.Reserve(tx, alice, 6) })
	require.ErrorIs(t, err, kitty.ErrInsufficientFunds)
	assert.Equal(t, AccountData{Free: 5}, balance(t, s, l, alice))
}

func TestDepositOverflow(t *testing.T) {
	s := kv.NewMemoryStore()
	l := New()
	require.NoError(t, update(t, s, func(tx kv.Tx) error { return l.Deposit(tx, alice, ^kitty.Balance(0)) }))
	err := update(t, s, func(tx kv.Tx) error { return l.Deposit(tx, alice, 1) })
	require.ErrorIs(t, err, ErrBalanceOverflow)
}

func TestGenesisAppliesOnce(t *testing.T) {
	g, err := ParseGenesis([]byte(`
accounts:
  - account: Alice
    free: 1000
  - account: bob
    free: 250
`))
	require.NoError(t, err)
	require.Len(t, g.Endowments, 2)
	assert.Equal(t, alice, g.Endowments[0].Account)

	s := kv.NewMemoryStore()
	l := New()
	ok, err := l.ApplyGenesis(context.Background(), s, g, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.ApplyGenesis(context.Background(), s, g, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, AccountData{Free: 1000}, balance(t, s, l, alice))
	assert.Equal(t, AccountData{Free: 250}, balance(t, s, l, kitty.MustAccount("bob")))
}

func TestGenesisRejectsBadAccount(t *testing.T) {
	_, err := ParseGenesis([]byte("accounts:\n  - account: \"two words\"\n    free: 1\n"))
	require.ErrorIs(t, err, kitty.ErrInvalidAccount)
}
