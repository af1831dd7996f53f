package system

import (
	"time"

	coresys "github.com/kittyledger/server/internal/core/system"
	"github.com/kittyledger/server/internal/net"
)

// OutputSystem flushes packets buffered during the tick, including event
// pushes produced by DispatchSystem.
type OutputSystem struct {
	store *net.SessionStore
}

func NewOutputSystem(store *net.SessionStore) *OutputSystem {
	return &OutputSystem{store: store}
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) Update(_ time.Duration) {
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
