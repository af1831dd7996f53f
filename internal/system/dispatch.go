package system

import (
	"time"

	"github.com/kittyledger/server/internal/core/event"
	coresys "github.com/kittyledger/server/internal/core/system"
)

// DispatchSystem delivers the events committed during this tick's input
// phase to their subscribers.
type DispatchSystem struct {
	bus *event.Bus
}

func NewDispatchSystem(bus *event.Bus) *DispatchSystem {
	return &DispatchSystem{bus: bus}
}

func (s *DispatchSystem) Phase() coresys.Phase { return coresys.PhasePostUpdate }

func (s *DispatchSystem) Update(_ time.Duration) {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
}
