package handler

import (
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// sendResult answers a request with S_RESULT.
// Format: [C opcode][C request opcode][C code][payload written by body]
func sendResult(sess *net.Session, op, code byte, body func(w *packet.Writer)) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_RESULT)
	w.WriteC(op)
	w.WriteC(code)
	if body != nil && code == kitty.CodeOK {
		body(w)
	}
	sess.Send(w.Bytes())
}

// sendError maps err to its wire code. Anything that is not a domain error
// is logged and reported as internal.
func sendError(sess *net.Session, op byte, err error, deps *Deps) {
	code := kitty.Code(err)
	if code == kitty.CodeInternal {
		deps.Log.Error("request failed",
			zap.Uint64("session", sess.ID),
			zap.Uint8("opcode", op),
			zap.Error(err),
		)
	}
	sendResult(sess, op, code, nil)
}

// sendBadRequest rejects a malformed payload.
func sendBadRequest(sess *net.Session, op byte) {
	sendResult(sess, op, kitty.CodeBadRequest, nil)
}
