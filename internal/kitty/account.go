package kitty

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Account is a verified identity reference for owners and callers. Values
// are produced by ParseAccount and are always in canonical form.
type Account string

// MaxAccountLen bounds the canonical account name in bytes.
const MaxAccountLen = 64

var ErrInvalidAccount = errors.New("invalid account")

// ParseAccount canonicalises a raw account name: NFC normalisation followed by
// Unicode case folding, so "Alice" and "ALICE" name the same account.
func ParseAccount(raw string) (Account, error) {
	s := strings.TrimSpace(raw)
	if s == "" || !utf8.ValidString(s) {
		return "", ErrInvalidAccount
	}
	// Casers keep state between calls and cannot be shared across goroutines.
	s = norm.NFC.String(cases.Fold().String(s))
	if len(s) > MaxAccountLen {
		return "", ErrInvalidAccount
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", ErrInvalidAccount
		}
	}
	return Account(s), nil
}

// MustAccount is ParseAccount for literals known to be valid.
func MustAccount(raw string) Account {
	a, err := ParseAccount(raw)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Account) String() string { return string(a) }
