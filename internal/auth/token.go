package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kittyledger/server/internal/kitty"
)

// TokenProvider accepts HS256 tokens whose subject is the account.
type TokenProvider struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func NewTokenProvider(secret, issuer string, ttl time.Duration) *TokenProvider {
	return &TokenProvider{key: []byte(secret), issuer: issuer, ttl: ttl}
}

// Issue mints a token for account.
func (p *TokenProvider) Issue(account kitty.Account) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   account.String(),
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		ID:        uuid.NewString(),
	})
	return token.SignedString(p.key)
}

func (p *TokenProvider) Authenticate(_ context.Context, c Credentials) (kitty.Account, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(c.Secret, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return p.key, nil
	}, jwt.WithIssuer(p.issuer), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return "", errors.Join(ErrUnauthorized, err)
	}

	account, err := kitty.ParseAccount(claims.Subject)
	if err != nil {
		return "", ErrUnauthorized
	}
	if c.Account != "" {
		claimed, err := kitty.ParseAccount(c.Account)
		if err != nil || claimed != account {
			return "", ErrUnauthorized
		}
	}
	return account, nil
}
