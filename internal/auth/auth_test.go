package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/kv"
)

func newPasswordProvider(autoCreate bool) *PasswordProvider {
	p := NewPasswordProvider(kv.NewMemoryStore(), autoCreate, zap.NewNop())
	p.cost = bcrypt.MinCost
	return p
}

func TestPasswordAutoCreateThenVerify(t *testing.T) {
	ctx := context.Background()
	p := newPasswordProvider(true)

	a, err := p.Authenticate(ctx, Credentials{Account: "Alice", Secret: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, kitty.MustAccount("alice"), a)

	a, err = p.Authenticate(ctx, Credentials{Account: "alice", Secret: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, kitty.MustAccount("alice"), a)

	_, err = p.Authenticate(ctx, Credentials{Account: "alice", Secret: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPasswordWithoutAutoCreate(t *testing.T) {
	ctx := context.Background()
	p := newPasswordProvider(false)

	_, err := p.Authenticate(ctx, Credentials{Account: "bob", Secret: "pw"})
	require.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, p.Register(ctx, kitty.MustAccount("bob"), "pw"))
	require.ErrorIs(t, p.Register(ctx, kitty.MustAccount("bob"), "again"), ErrUnauthorized)

	a, err := p.Authenticate(ctx, Credentials{Account: "bob", Secret: "pw"})
	require.NoError(t, err)
	assert.Equal(t, kitty.MustAccount("bob"), a)
}

func TestPasswordRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	p := newPasswordProvider(true)

	_, err := p.Authenticate(ctx, Credentials{Account: "", Secret: "pw"})
	require.ErrorIs(t, err, kitty.ErrInvalidAccount)
	_, err = p.Authenticate(ctx, Credentials{Account: "carol", Secret: ""})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenRoundTrip(t *testing.T) {
	p := NewTokenProvider("secret", "kittyd", time.Hour)
	tok, err := p.Issue(kitty.MustAccount("alice"))
	require.NoError(t, err)

	a, err := p.Authenticate(context.Background(), Credentials{Secret: tok})
	require.NoError(t, err)
	assert.Equal(t, kitty.MustAccount("alice"), a)

	_, err = p.Authenticate(context.Background(), Credentials{Account: "bob", Secret: tok})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestTokenRejections(t *testing.T) {
	p := NewTokenProvider("secret", "kittyd", time.Hour)

	other, err := NewTokenProvider("other", "kittyd", time.Hour).Issue("alice")
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), Credentials{Secret: other})
	require.ErrorIs(t, err, ErrUnauthorized, "wrong key")

	foreign, err := NewTokenProvider("secret", "elsewhere", time.Hour).Issue("alice")
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), Credentials{Secret: foreign})
	require.ErrorIs(t, err, ErrUnauthorized, "wrong issuer")

	expired, err := NewTokenProvider("secret", "kittyd", -time.Minute).Issue("alice")
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), Credentials{Secret: expired})
	require.ErrorIs(t, err, ErrUnauthorized, "expired")

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "alice", Issuer: "kittyd"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = p.Authenticate(context.Background(), Credentials{Secret: unsigned})
	require.ErrorIs(t, err, ErrUnauthorized, "alg none")
}
