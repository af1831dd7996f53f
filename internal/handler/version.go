package handler

import (
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleHello processes C_HELLO.
// Format: [opcode][H protocol version]
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) {
	version := r.ReadH()
	if r.Short() || version != packet.ProtocolVersion {
		deps.Log.Info("protocol version rejected",
			zap.Uint64("session", sess.ID),
			zap.Uint16("version", version),
		)
		sendBadRequest(sess, packet.C_OPCODE_HELLO)
		return
	}

	sendResult(sess, packet.C_OPCODE_HELLO, kitty.CodeOK, nil)
	sess.SetState(packet.StateVersionOK)
}
