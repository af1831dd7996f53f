package kitty

import "errors"

// Precondition failures returned by the registry. Each one guarantees that the
// rejected operation left no trace in storage and emitted no event.
var (
	ErrCountOverflow            = errors.New("kitty id space exhausted")
	ErrKittyNotFound            = errors.New("kitty not found")
	ErrNotOwner                 = errors.New("caller does not own kitty")
	ErrTransferToSelf           = errors.New("cannot transfer kitty to its owner")
	ErrSameParent               = errors.New("breeding requires two different parents")
	ErrInsufficientFunds        = errors.New("insufficient free balance to reserve")
	ErrInsufficientReleaseFunds = errors.New("insufficient reserved balance to release")
)

// Reserved for the marketplace extension; never returned today.
var (
	ErrAlreadyOwned = errors.New("kitty already owned by buyer")
	ErrNotForSale   = errors.New("kitty not for sale")
	ErrPriceTooLow  = errors.New("offered price too low")
)

// Wire codes for results sent to clients.
const (
	CodeOK                       byte = 0x00
	CodeCountOverflow            byte = 0x01
	CodeKittyNotFound            byte = 0x02
	CodeNotOwner                 byte = 0x03
	CodeTransferToSelf           byte = 0x04
	CodeSameParent               byte = 0x05
	CodeInsufficientFunds        byte = 0x06
	CodeInsufficientReleaseFunds byte = 0x07
	CodeAlreadyOwned             byte = 0x08
	CodeNotForSale               byte = 0x09
	CodePriceTooLow              byte = 0x0A
	CodeInvalidAccount           byte = 0x0B
	CodeUnauthorized             byte = 0x0C
	CodeBadRequest               byte = 0x0D
	CodeInternal                 byte = 0xFF
)

var codes = []struct {
	err  error
	code byte
}{
	{ErrCountOverflow, CodeCountOverflow},
	{ErrKittyNotFound, CodeKittyNotFound},
	{ErrNotOwner, CodeNotOwner},
	{ErrTransferToSelf, CodeTransferToSelf},
	{ErrSameParent, CodeSameParent},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInsufficientReleaseFunds, CodeInsufficientReleaseFunds},
	{ErrAlreadyOwned, CodeAlreadyOwned},
	{ErrNotForSale, CodeNotForSale},
	{ErrPriceTooLow, CodePriceTooLow},
	{ErrInvalidAccount, CodeInvalidAccount},
}

// Code maps err to its wire code. Unknown errors are internal failures.
func Code(err error) byte {
	if err == nil {
		return CodeOK
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// IsDomain reports whether err is one of the registry's precondition errors.
func IsDomain(err error) bool {
	c := Code(err)
	return c != CodeOK && c != CodeInternal
}
