package publish

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/core/event"
	"github.com/kittyledger/server/internal/kitty"
)

// Sink delivers one envelope to a broker.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e Envelope) error
	Close() error
}

// Reporter receives delivery outcomes, usually the metrics package.
type Reporter interface {
	Published(sink string, err error)
	Dropped()
}

const publishTimeout = 5 * time.Second

// Publisher buffers envelopes and hands them to every sink from its own
// goroutine, so a slow broker never stalls the ledger loop.
type Publisher struct {
	sinks    []Sink
	queue    chan Envelope
	reporter Reporter
	log      *zap.Logger
}

func NewPublisher(sinks []Sink, buffer int, reporter Reporter, log *zap.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Publisher{sinks: sinks, queue: make(chan Envelope, buffer), reporter: reporter, log: log}
}

// Subscribe forwards the registry's committed events from bus.
func (p *Publisher) Subscribe(bus *event.Bus) {
	event.Subscribe(bus, func(e kitty.Created) { p.Enqueue(CreatedEnvelope(e, time.Now())) })
	event.Subscribe(bus, func(e kitty.Transferred) { p.Enqueue(TransferredEnvelope(e, time.Now())) })
}

// Enqueue never blocks. It drops the envelope and reports false when the
// buffer is full.
func (p *Publisher) Enqueue(e Envelope) bool {
	if len(p.sinks) == 0 {
		return true
	}
	select {
	case p.queue <- e:
		return true
	default:
		p.log.Warn("publish buffer full, dropping event",
			zap.String("type", e.Type), zap.Uint64("kitty", uint64(e.Kitty)))
		if p.reporter != nil {
			p.reporter.Dropped()
		}
		return false
	}
}

// Run delivers envelopes until ctx is cancelled, then flushes what is
// already buffered and closes the sinks.
func (p *Publisher) Run(ctx context.Context) error {
	defer p.closeSinks()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-p.queue:
					p.deliver(context.Background(), e)
				default:
					return nil
				}
			}
		case e := <-p.queue:
			p.deliver(ctx, e)
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e Envelope) {
	for _, s := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := s.Publish(sctx, e)
		cancel()
		if p.reporter != nil {
			p.reporter.Published(s.Name(), err)
		}
		if err != nil {
			p.log.Warn("publish failed",
				zap.String("sink", s.Name()),
				zap.String("type", e.Type),
				zap.Uint64("kitty", uint64(e.Kitty)),
				zap.Error(err))
		}
	}
}

func (p *Publisher) closeSinks() {
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.log.Warn("close sink", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}
