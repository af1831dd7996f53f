// Package auth verifies who submitted an operation. The registry only ever
// sees the kitty.Account a Provider returns.
package auth

import (
	"context"
	"errors"

	"github.com/kittyledger/server/internal/kitty"
)

var ErrUnauthorized = errors.New("authentication failed")

// Credentials are what a client presents at login. Password mode uses both
// fields; token mode needs only Secret.
type Credentials struct {
	Account string
	Secret  string
}

type Provider interface {
	Authenticate(ctx context.Context, c Credentials) (kitty.Account, error)
}
