package handler

import (
	"context"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
)

// maxOwnedIDs keeps an OWNED result inside one frame.
const maxOwnedIDs = 4096

// HandleKitty processes C_KITTY.
// Format: [opcode][Q kitty]
// Result: [Q kitty][16 bytes genome][owner\0][C has parents][Q parent1][Q parent2][Q deposit]
func HandleKitty(sess *net.Session, r *packet.Reader, deps *Deps) {
	id := kitty.ID(r.ReadQ())
	if r.Short() {
		sendBadRequest(sess, packet.C_OPCODE_KITTY)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	k, err := deps.Registry.Kitty(ctx, id)
	if err != nil {
		sendError(sess, packet.C_OPCODE_KITTY, err, deps)
		return
	}
	sendResult(sess, packet.C_OPCODE_KITTY, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteQ(uint64(k.ID))
		w.WriteBytes(k.Genome[:])
		w.WriteS(k.Owner.String())
		if k.Parents != nil {
			w.WriteC(1)
			w.WriteQ(uint64(k.Parents.First))
			w.WriteQ(uint64(k.Parents.Second))
		} else {
			w.WriteC(0)
			w.WriteQ(0)
			w.WriteQ(0)
		}
		w.WriteQ(uint64(k.Deposit))
	})
}

// HandleOwned processes C_OWNED.
// Format: [opcode][account\0]? (defaults to the caller)
// Result: [H count][Q kitty]...
func HandleOwned(sess *net.Session, r *packet.Reader, deps *Deps) {
	account, ok := targetAccount(sess, r, packet.C_OPCODE_OWNED, deps)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	ids, err := deps.Registry.OwnedBy(ctx, account)
	if err != nil {
		sendError(sess, packet.C_OPCODE_OWNED, err, deps)
		return
	}
	if len(ids) > maxOwnedIDs {
		ids = ids[:maxOwnedIDs]
	}
	sendResult(sess, packet.C_OPCODE_OWNED, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteH(uint16(len(ids)))
		for _, id := range ids {
			w.WriteQ(uint64(id))
		}
	})
}

// HandleBalance processes C_BALANCE.
// Format: [opcode][account\0]? (defaults to the caller)
// Result: [Q free][Q reserved]
func HandleBalance(sess *net.Session, r *packet.Reader, deps *Deps) {
	account, ok := targetAccount(sess, r, packet.C_OPCODE_BALANCE, deps)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	bal, err := deps.Registry.Balance(ctx, account)
	if err != nil {
		sendError(sess, packet.C_OPCODE_BALANCE, err, deps)
		return
	}
	sendResult(sess, packet.C_OPCODE_BALANCE, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteQ(uint64(bal.Free))
		w.WriteQ(uint64(bal.Reserved))
	})
}

func targetAccount(sess *net.Session, r *packet.Reader, op byte, deps *Deps) (kitty.Account, bool) {
	if r.Remaining() == 0 {
		return sess.Account, true
	}
	raw := r.ReadS()
	if r.Short() {
		sendBadRequest(sess, op)
		return "", false
	}
	a, err := kitty.ParseAccount(raw)
	if err != nil {
		sendError(sess, op, err, deps)
		return "", false
	}
	return a, true
}
