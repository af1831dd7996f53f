package auth

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

// PasswordProvider checks bcrypt hashes kept in the kv "accounts" bucket.
// With autoCreate an unknown account is registered on first login.
type PasswordProvider struct {
	store      kv.Store
	hashes     kv.Map[kitty.Account, []byte]
	autoCreate bool
	cost       int
	log        *zap.Logger
}

func NewPasswordProvider(store kv.Store, autoCreate bool, log *zap.Logger) *PasswordProvider {
	return &PasswordProvider{
		store:      store,
		hashes:     kv.NewMap[kitty.Account, []byte]("accounts", kv.String[kitty.Account]{}, kv.Raw{}),
		autoCreate: autoCreate,
		cost:       bcrypt.DefaultCost,
		log:        log,
	}
}

func (p *PasswordProvider) Authenticate(ctx context.Context, c Credentials) (kitty.Account, error) {
	account, err := kitty.ParseAccount(c.Account)
	if err != nil {
		return "", err
	}
	if c.Secret == "" {
		return "", ErrUnauthorized
	}

	hash, found, err := p.lookup(ctx, account)
	if err != nil {
		return "", err
	}
	if found {
		if bcrypt.CompareHashAndPassword(hash, []byte(c.Secret)) != nil {
			return "", ErrUnauthorized
		}
		return account, nil
	}
	if !p.autoCreate {
		return "", ErrUnauthorized
	}
	if err := p.Register(ctx, account, c.Secret); err != nil {
		return "", err
	}
	return account, nil
}

// Register stores a password for a new account. Registering an existing
// account fails with ErrUnauthorized.
func (p *PasswordProvider) Register(ctx context.Context, account kitty.Account, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = p.store.Update(ctx, func(tx kv.Tx) error {
		ok, err := p.hashes.Has(tx, account)
		if err != nil {
			return err
		}
		if ok {
			return ErrUnauthorized
		}
		return p.hashes.Put(tx, account, hash)
	})
	if err != nil {
		return err
	}
	p.log.Info("account registered", zap.String("account", account.String()))
	return nil
}

func (p *PasswordProvider) lookup(ctx context.Context, account kitty.Account) ([]byte, bool, error) {
	var hash []byte
	var found bool
	err := p.store.View(ctx, func(r kv.Reader) error {
		var err error
		hash, found, err = p.hashes.Get(r, account)
		return err
	})
	return hash, found, err
}
