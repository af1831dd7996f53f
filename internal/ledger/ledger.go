// Package ledger is the currency ledger the registry reserves collateral
// against. Balances live in the same kv store as the registry indices, so a
// reservation commits or rolls back together with the operation that made it.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

const bucket kv.Bucket = "balances"

var ErrBalanceOverflow = errors.New("balance overflow")

// AccountData is the balance pair of one account.
type AccountData struct {
	Free     kitty.Balance `json:"free"`
	Reserved kitty.Balance `json:"reserved"`
}

type accountCodec struct{}

func (accountCodec) Append(dst []byte, v AccountData) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(v.Free))
	return binary.BigEndian.AppendUint64(dst, uint64(v.Reserved))
}

func (accountCodec) Decode(src []byte) (AccountData, int, error) {
	if len(src) < 16 {
		return AccountData{}, 0, fmt.Errorf("account data needs 16 bytes, have %d", len(src))
	}
	return AccountData{
		Free:     kitty.Balance(binary.BigEndian.Uint64(src)),
		Reserved: kitty.Balance(binary.BigEndian.Uint64(src[8:])),
	}, 16, nil
}

// Ledger reads and mutates balances inside caller-supplied transactions.
type Ledger struct {
	balances kv.Map[kitty.Account, AccountData]
}

func New() *Ledger {
	return &Ledger{balances: kv.NewMap[kitty.Account, AccountData](bucket, kv.String[kitty.Account]{}, accountCodec{})}
}

// Account returns the balances of a; unknown accounts hold nothing.
func (l *Ledger) Account(r kv.Reader, a kitty.Account) (AccountData, error) {
	d, _, err := l.balances.Get(r, a)
	return d, err
}

// Deposit credits amount to the free balance.
func (l *Ledger) Deposit(tx kv.Tx, a kitty.Account, amount kitty.Balance) error {
	d, err := l.Account(tx, a)
	if err != nil {
		return err
	}
	if uint64(d.Free) > math.MaxUint64-uint64(amount) {
		return ErrBalanceOverflow
	}
	d.Free += amount
	return l.balances.Put(tx, a, d)
}

// Reserve moves amount from free to reserved, or fails with
// kitty.ErrInsufficientFunds leaving the account untouched.
func (l *Ledger) Reserve(tx kv.Tx, a kitty.Account, amount kitty.Balance) error {
	d, err := l.Account(tx, a)
	if err != nil {
		return err
	}
	if d.Free < amount {
		return kitty.ErrInsufficientFunds
	}
	if uint64(d.Reserved) > math.MaxUint64-uint64(amount) {
		return ErrBalanceOverflow
	}
	d.Free -= amount
	d.Reserved += amount
	return l.balances.Put(tx, a, d)
}

// Unreserve moves up to amount from reserved back to free and returns the
// part that could not be released.
func (l *Ledger) Unreserve(tx kv.Tx, a kitty.Account, amount kitty.Balance) (kitty.Balance, error) {
	d, err := l.Account(tx, a)
	if err != nil {
		return 0, err
	}
	released := min(amount, d.Reserved)
	if uint64(d.Free) > math.MaxUint64-uint64(released) {
		return 0, ErrBalanceOverflow
	}
	d.Reserved -= released
	d.Free += released
	if released > 0 {
		if err := l.balances.Put(tx, a, d); err != nil {
			return 0, err
		}
	}
	return amount - released, nil
}

// Each visits every account with a balance entry.
func (l *Ledger) Each(r kv.Reader, fn func(kitty.Account, AccountData) error) error {
	return l.balances.Iterate(r, fn)
}
