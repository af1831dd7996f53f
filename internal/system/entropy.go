package system

import (
	"time"

	coresys "github.com/kittyledger/server/internal/core/system"
	"go.uber.org/zap"
)

// Rotator draws a fresh entropy seed.
type Rotator interface {
	Rotate() error
}

// EntropySystem rotates the randomness seed once per tick, so every tick is
// one epoch of entropy.
type EntropySystem struct {
	epoch Rotator
	log   *zap.Logger
}

func NewEntropySystem(epoch Rotator, log *zap.Logger) *EntropySystem {
	return &EntropySystem{epoch: epoch, log: log}
}

func (s *EntropySystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *EntropySystem) Update(_ time.Duration) {
	if err := s.epoch.Rotate(); err != nil {
		// Keep the previous seed; the nonce still separates operations.
		s.log.Error("entropy rotation failed", zap.Error(err))
	}
}
