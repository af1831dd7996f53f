package handler

import (
	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// Subscribe wires registry events to pushes for connected owner sessions.
// Handlers run during DispatchSystem on the server loop.
func Subscribe(bus *event.Bus, deps *Deps) {
	event.Subscribe(bus, func(e kitty.Created) {
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_KITTY_CREATED)
		w.WriteQ(uint64(e.ID))
		w.WriteS(e.Owner.String())
		data := w.Bytes()
		deps.Sessions.ForAccount(e.Owner, func(s *net.Session) { s.Send(data) })
	})

	event.Subscribe(bus, func(e kitty.Transferred) {
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_KITTY_TRANSFERRED)
		w.WriteQ(uint64(e.ID))
		w.WriteS(e.From.String())
		w.WriteS(e.To.String())
		data := w.Bytes()
		deps.Sessions.ForAccount(e.From, func(s *net.Session) { s.Send(data) })
		deps.Sessions.ForAccount(e.To, func(s *net.Session) { s.Send(data) })
	})

	event.Subscribe(bus, func(e event.SessionClosed) {
		if e.Account != "" {
			deps.Log.Info("session closed",
				zap.Uint64("session", e.SessionID),
				zap.String("account", e.Account.String()),
			)
		}
	})
}
