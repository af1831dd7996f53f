package registry

import (
	"fmt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
	"github.com/kittyledger/server/internal/ledger"
)

// ReleasePolicy decides how much a transfer releases from the previous owner.
type ReleasePolicy string

const (
	// ReleaseConfigured releases the amount configured now.
	ReleaseConfigured ReleasePolicy = "configured"
	// ReleaseRecorded releases the deposit recorded when the kitty was last
	// reserved for, so a changed reserve amount cannot strand funds.
	ReleaseRecorded ReleasePolicy = "recorded"
)

func ParseReleasePolicy(s string) (ReleasePolicy, error) {
	switch p := ReleasePolicy(s); p {
	case ReleaseConfigured, ReleaseRecorded:
		return p, nil
	case "":
		return ReleaseConfigured, nil
	default:
		return "", fmt.Errorf("unknown release policy %q", s)
	}
}

// EscrowManager reserves the per-kitty collateral on the ledger and records
// each deposit and journal line in the same transaction.
type EscrowManager struct {
	ledger   *ledger.Ledger
	amount   kitty.Balance
	policy   ReleasePolicy
	deposits kv.Map[kitty.ID, kitty.Balance]
	journal  *Journal
}

func NewEscrowManager(l *ledger.Ledger, amount kitty.Balance, policy ReleasePolicy, j *Journal) *EscrowManager {
	return &EscrowManager{
		ledger:   l,
		amount:   amount,
		policy:   policy,
		deposits: kv.NewMap[kitty.ID, kitty.Balance](bucketDeposits, idCodec, balanceCodec),
		journal:  j,
	}
}

// Amount is the configured per-kitty reservation.
func (e *EscrowManager) Amount() kitty.Balance { return e.amount }

// Deposit returns what is currently held for id.
func (e *EscrowManager) Deposit(r kv.Reader, id kitty.ID) (kitty.Balance, error) {
	d, _, err := e.deposits.Get(r, id)
	return d, err
}

// Reserve holds the configured amount from account for id. It fails with
// kitty.ErrInsufficientFunds when the free balance is short.
func (e *EscrowManager) Reserve(tx kv.Tx, account kitty.Account, id kitty.ID) error {
	if err := e.ledger.Reserve(tx, account, e.amount); err != nil {
		return err
	}
	if err := e.deposits.Put(tx, id, e.amount); err != nil {
		return err
	}
	return e.journal.Append(tx, JournalEntry{Op: OpReserve, Account: account, Kitty: id, Amount: e.amount})
}

// Release returns collateral for id to account. recorded is the deposit held
// for id before the current operation touched it. A release the ledger can
// only partially honour fails with kitty.ErrInsufficientReleaseFunds.
func (e *EscrowManager) Release(tx kv.Tx, account kitty.Account, id kitty.ID, recorded kitty.Balance) error {
	amount := e.amount
	if e.policy == ReleaseRecorded {
		amount = recorded
	}
	remaining, err := e.ledger.Unreserve(tx, account, amount)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return kitty.ErrInsufficientReleaseFunds
	}
	return e.journal.Append(tx, JournalEntry{Op: OpRelease, Account: account, Kitty: id, Amount: amount})
}
