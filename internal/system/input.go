package system

import (
	"time"

	"github.com/kittyledger/server/internal/core/event"
	coresys "github.com/kittyledger/server/internal/core/system"
	"github.com/kittyledger/server/internal/net"
	"github.com/kittyledger/server/internal/net/packet"
	"go.uber.org/zap"
)

// Gauge is the part of a Prometheus gauge the input system reports to.
type Gauge interface {
	Set(float64)
}

// InputSystem drains packet queues from all sessions and dispatches them
// through the packet registry. Requests run in arrival order per session.
type InputSystem struct {
	netServer  *net.Server
	registry   *packet.Registry
	store      *net.SessionStore
	maxPerTick int
	bus        *event.Bus
	sessions   Gauge
	log        *zap.Logger
}

func NewInputSystem(
	netServer *net.Server,
	registry *packet.Registry,
	store *net.SessionStore,
	maxPerTick int,
	bus *event.Bus,
	sessions Gauge,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		maxPerTick: maxPerTick,
		bus:        bus,
		sessions:   sessions,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// Accept new sessions
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	// Process dead sessions
	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	for id, sess := range s.store.Raw() {
		if sess.IsClosed() {
			s.handleDisconnect(sess)
			s.netServer.NotifyDead(id)
			s.store.Remove(id)
			continue
		}

		for i := 0; i < s.maxPerTick; i++ {
			select {
			case data := <-sess.InQueue:
				if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
					s.log.Debug("packet dispatch failed",
						zap.Uint64("session", sess.ID),
						zap.Error(err),
					)
				}
			default:
				goto nextSession
			}
		}
	nextSession:
	}

	if s.sessions != nil {
		s.sessions.Set(float64(s.store.Count()))
	}

	// Flush early so results leave before the rest of the tick runs.
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// handleDisconnect drops whatever the closed session still had queued. Its
// committed operations stay committed.
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	dropped := 0
	for len(sess.InQueue) > 0 {
		<-sess.InQueue
		dropped++
	}
	if s.bus != nil {
		event.Emit(s.bus, event.SessionClosed{SessionID: sess.ID, Account: sess.Account})
	}
	s.log.Info("client disconnected",
		zap.Uint64("session", sess.ID),
		zap.String("account", sess.Account.String()),
		zap.Int("dropped", dropped),
	)
}
