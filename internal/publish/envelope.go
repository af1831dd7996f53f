// Package publish forwards committed registry events to external brokers.
// Forwarding is best effort: a failing broker is logged and never reaches
// back into registry state.
package publish

import (
	"time"

	"github.com/google/uuid"

	"github.com/kittyledger/server/internal/kitty"
)

const (
	TypeCreated     = "kitty.created"
	TypeTransferred = "kitty.transferred"
)

// Envelope is the JSON document sent to every sink.
type Envelope struct {
	ID    uuid.UUID     `json:"id"`
	Type  string        `json:"type"`
	Kitty kitty.ID      `json:"kitty"`
	Owner kitty.Account `json:"owner,omitempty"`
	From  kitty.Account `json:"from,omitempty"`
	To    kitty.Account `json:"to,omitempty"`
	// Genome is the hex genome of a created kitty.
	Genome string    `json:"genome,omitempty"`
	At     time.Time `json:"at"`
}

func CreatedEnvelope(e kitty.Created, at time.Time) Envelope {
	return Envelope{ID: uuid.New(), Type: TypeCreated, Kitty: e.ID, Owner: e.Owner, Genome: e.Genome.String(), At: at.UTC()}
}

func TransferredEnvelope(e kitty.Transferred, at time.Time) Envelope {
	return Envelope{ID: uuid.New(), Type: TypeTransferred, Kitty: e.ID, Owner: e.To, From: e.From, To: e.To, At: at.UTC()}
}
