package ledger

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// Endowment is one initial balance from the genesis file.
type Endowment struct {
	Account kitty.Account
	Free    kitty.Balance
}

// Genesis is the initial state of the ledger.
type Genesis struct {
	Endowments []Endowment
}

type genesisYAMLEntry struct {
	Account string `yaml:"account"`
	Free    uint64 `yaml:"free"`
}

type genesisFile struct {
	Accounts []genesisYAMLEntry `yaml:"accounts"`
}

// LoadGenesis reads the genesis balances from a YAML file.
func LoadGenesis(path string) (*Genesis, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis: %w", err)
	}
	return ParseGenesis(raw)
}

func ParseGenesis(raw []byte) (*Genesis, error) {
	var f genesisFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse genesis: %w", err)
	}
	g := &Genesis{Endowments: make([]Endowment, 0, len(f.Accounts))}
	for i, e := range f.Accounts {
		a, err := kitty.ParseAccount(e.Account)
		if err != nil {
			return nil, fmt.Errorf("genesis entry %d (%q): %w", i, e.Account, err)
		}
		g.Endowments = append(g.Endowments, Endowment{Account: a, Free: kitty.Balance(e.Free)})
	}
	return g, nil
}

var applied = kv.NewValue[struct{}]("meta", "genesis_applied", kv.Unit{})

// ApplyGenesis credits every endowment in one transaction. It runs at most
// once per store; later calls report false and change nothing.
func (l *Ledger) ApplyGenesis(ctx context.Context, store kv.Store, g *Genesis, log *zap.Logger) (bool, error) {
	done := false
	err := store.Update(ctx, func(tx kv.Tx) error {
		_, ok, err := applied.Get(tx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		for _, e := range g.Endowments {
			if err := l.Deposit(tx, e.Account, e.Free); err != nil {
				return fmt.Errorf("endow %s: %w", e.Account, err)
			}
		}
		done = true
		return applied.Put(tx, struct{}{})
	})
	if err != nil {
		return false, err
	}
	if done {
		log.Info("genesis applied", zap.Int("accounts", len(g.Endowments)))
	} else {
		log.Debug("genesis already applied")
	}
	return done, nil
}
