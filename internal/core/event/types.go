package event

import "github.com/kittyledger/server/internal/kitty"

// Session lifecycle events. Registry events are kitty.Created and
// kitty.Transferred.

type AccountLoggedIn struct {
	SessionID uint64
	Account   kitty.Account
}

type SessionClosed struct {
	SessionID uint64
	Account   kitty.Account
}
