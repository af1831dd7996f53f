package handler

import (
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleQuit processes C_QUIT. Cleanup happens in InputSystem once the
// session is seen closed.
func HandleQuit(sess *net.Session, _ *packet.Reader, deps *Deps) {
	deps.Log.Info("client quit",
		zap.Uint64("session", sess.ID),
		zap.String("account", sess.Account.String()),
	)
	sess.Close()
}
