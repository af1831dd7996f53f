package handler

import (
	"context"
	"errors"
	"time"

	"github.com/kittyledger/server/internal/auth"
	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// HandleLogin processes C_LOGIN.
// Format: [opcode][C mode][account\0][secret\0]
func HandleLogin(sess *net.Session, r *packet.Reader, deps *Deps) {
	if !allowLogin(sess, deps) {
		deps.Log.Warn("login rate exceeded, disconnecting",
			zap.Uint64("session", sess.ID),
			zap.String("ip", sess.IP),
		)
		sendResult(sess, packet.C_OPCODE_LOGIN, kitty.CodeUnauthorized, nil)
		sess.CloseAfterFlush()
		return
	}

	mode := r.ReadC()
	account := r.ReadS()
	secret := r.ReadS()
	if r.Short() || mode != deps.LoginMode {
		sendBadRequest(sess, packet.C_OPCODE_LOGIN)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	acct, err := deps.Auth.Authenticate(ctx, auth.Credentials{Account: account, Secret: secret})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUnauthorized):
			sendResult(sess, packet.C_OPCODE_LOGIN, kitty.CodeUnauthorized, nil)
		case errors.Is(err, kitty.ErrInvalidAccount):
			sendResult(sess, packet.C_OPCODE_LOGIN, kitty.CodeInvalidAccount, nil)
		default:
			sendError(sess, packet.C_OPCODE_LOGIN, err, deps)
		}
		return
	}

	sess.Account = acct
	sess.SetState(packet.StateAuthenticated)
	sendResult(sess, packet.C_OPCODE_LOGIN, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteS(acct.String())
	})

	if deps.Bus != nil {
		event.Emit(deps.Bus, event.AccountLoggedIn{SessionID: sess.ID, Account: acct})
	}
	deps.Log.Info("login ok",
		zap.Uint64("session", sess.ID),
		zap.String("account", acct.String()),
		zap.String("ip", sess.IP),
	)
}

// allowLogin counts attempts per session in one-minute windows.
func allowLogin(sess *net.Session, deps *Deps) bool {
	rl := deps.Config.RateLimit
	if !rl.Enabled || rl.LoginAttemptsPerMinute <= 0 {
		return true
	}
	window := time.Now().Unix() / 60
	if window != sess.LoginWindow {
		sess.LoginWindow = window
		sess.LoginAttempts = 0
	}
	sess.LoginAttempts++
	return sess.LoginAttempts <= rl.LoginAttemptsPerMinute
}
