package handler

import (
	"time"

	"github.com/kittyledger/server/internal/auth"
	"github.com/kittyledger/server/internal/config"
	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"github.com/kittyledger/server/internal/registry"
	"go.uber.org/zap"
)

// opTimeout bounds one registry call made on behalf of a client.
const opTimeout = 5 * time.Second

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config    *config.Config
	Log       *zap.Logger
	Registry  *registry.Registry
	Auth      auth.Provider
	LoginMode byte // packet.LoginPassword or packet.LoginToken
	Sessions  *net.SessionStore
	Bus       *event.Bus
}

// RegisterAll registers all packet handlers into the registry.
func RegisterAll(reg *packet.Registry, deps *Deps) {
	// Handshake phase
	reg.Register(packet.C_OPCODE_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) {
			HandleHello(sess.(*net.Session), r, deps)
		},
	)

	// Login phase
	reg.Register(packet.C_OPCODE_LOGIN,
		[]packet.SessionState{packet.StateVersionOK},
		func(sess any, r *packet.Reader) {
			HandleLogin(sess.(*net.Session), r, deps)
		},
	)

	reg.Register(packet.C_OPCODE_QUIT,
		[]packet.SessionState{packet.StateHandshake, packet.StateVersionOK, packet.StateAuthenticated},
		func(sess any, r *packet.Reader) {
			HandleQuit(sess.(*net.Session), r, deps)
		},
	)

	// Authenticated phase
	authStates := []packet.SessionState{packet.StateAuthenticated}

	reg.Register(packet.C_OPCODE_CREATE, authStates,
		func(sess any, r *packet.Reader) {
			HandleCreate(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_TRANSFER, authStates,
		func(sess any, r *packet.Reader) {
			HandleTransfer(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_BREED, authStates,
		func(sess any, r *packet.Reader) {
			HandleBreed(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_KITTY, authStates,
		func(sess any, r *packet.Reader) {
			HandleKitty(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_OWNED, authStates,
		func(sess any, r *packet.Reader) {
			HandleOwned(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_BALANCE, authStates,
		func(sess any, r *packet.Reader) {
			HandleBalance(sess.(*net.Session), r, deps)
		},
	)
}
