package handler

import (
	"context"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
)

// HandleCreate processes C_CREATE.
// Format: [opcode]
// Result: [Q kitty][16 bytes genome]
func HandleCreate(sess *net.Session, _ *packet.Reader, deps *Deps) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	created, err := deps.Registry.Create(ctx, sess.Account)
	if err != nil {
		sendError(sess, packet.C_OPCODE_CREATE, err, deps)
		return
	}
	sendCreated(sess, packet.C_OPCODE_CREATE, created)
}

// HandleBreed processes C_BREED.
// Format: [opcode][Q parent1][Q parent2]
// Result: [Q kitty][16 bytes genome]
func HandleBreed(sess *net.Session, r *packet.Reader, deps *Deps) {
	id1 := kitty.ID(r.ReadQ())
	id2 := kitty.ID(r.ReadQ())
	if r.Short() {
		sendBadRequest(sess, packet.C_OPCODE_BREED)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	created, err := deps.Registry.Breed(ctx, sess.Account, id1, id2)
	if err != nil {
		sendError(sess, packet.C_OPCODE_BREED, err, deps)
		return
	}
	sendCreated(sess, packet.C_OPCODE_BREED, created)
}

// sendCreated replies with the genome committed by the operation.
func sendCreated(sess *net.Session, op byte, created kitty.Created) {
	sendResult(sess, op, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteQ(uint64(created.ID))
		w.WriteBytes(created.Genome[:])
	})
}

// HandleTransfer processes C_TRANSFER.
// Format: [opcode][to\0][Q kitty]
// Result: [Q kitty]
func HandleTransfer(sess *net.Session, r *packet.Reader, deps *Deps) {
	rawTo := r.ReadS()
	id := kitty.ID(r.ReadQ())
	if r.Short() {
		sendBadRequest(sess, packet.C_OPCODE_TRANSFER)
		return
	}
	to, err := kitty.ParseAccount(rawTo)
	if err != nil {
		sendError(sess, packet.C_OPCODE_TRANSFER, err, deps)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	moved, err := deps.Registry.Transfer(ctx, sess.Account, to, id)
	if err != nil {
		sendError(sess, packet.C_OPCODE_TRANSFER, err, deps)
		return
	}
	sendResult(sess, packet.C_OPCODE_TRANSFER, kitty.CodeOK, func(w *packet.Writer) {
		w.WriteQ(uint64(moved.ID))
	})
}
