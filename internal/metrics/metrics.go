package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kittyledger/server/internal/kitty"
)

// Metrics holds the server's Prometheus collectors. Each instance owns its
// registry, so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	Operations      *prometheus.CounterVec
	KittiesCreated  prometheus.Counter
	Transfers       prometheus.Counter
	Sessions        prometheus.Gauge
	TickDuration    prometheus.Histogram
	PhaseDuration   *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kittyd_operations_total",
			Help: "Registry operations by kind and result code",
		}, []string{"op", "result"}),
		KittiesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "kittyd_kitties_created_total",
			Help: "Kitties created or bred",
		}),
		Transfers: f.NewCounter(prometheus.CounterOpts{
			Name: "kittyd_transfers_total",
			Help: "Committed kitty transfers",
		}),
		Sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "kittyd_sessions",
			Help: "Connected client sessions",
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kittyd_tick_duration_seconds",
			Help:    "Duration of one ledger loop tick",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PhaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kittyd_phase_duration_seconds",
			Help:    "Duration of one loop phase within a tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}, []string{"phase"}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kittyd_events_published_total",
			Help: "Events forwarded to external sinks",
		}, []string{"sink", "result"}),
		EventsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "kittyd_events_dropped_total",
			Help: "Events dropped because the publish buffer was full",
		}),
	}
}

// Observe implements the registry observer.
func (m *Metrics) Observe(op string, err error) {
	m.Operations.WithLabelValues(op, resultLabel(err)).Inc()
	if err != nil {
		return
	}
	switch op {
	case "create", "breed":
		m.KittiesCreated.Inc()
	case "transfer":
		m.Transfers.Inc()
	}
}

// ObserveTick records the duration of a loop tick started at start.
func (m *Metrics) ObserveTick(start time.Time) {
	m.TickDuration.Observe(time.Since(start).Seconds())
}

// ObservePhase implements the runner's phase observer.
func (m *Metrics) ObservePhase(phase string, d time.Duration) {
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *Metrics) Published(sink string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.EventsPublished.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) Dropped() { m.EventsDropped.Inc() }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

var resultLabels = map[byte]string{
	kitty.CodeOK:                       "ok",
	kitty.CodeCountOverflow:            "count_overflow",
	kitty.CodeKittyNotFound:            "kitty_not_found",
	kitty.CodeNotOwner:                 "not_owner",
	kitty.CodeTransferToSelf:           "transfer_to_self",
	kitty.CodeSameParent:               "same_parent",
	kitty.CodeInsufficientFunds:        "insufficient_funds",
	kitty.CodeInsufficientReleaseFunds: "insufficient_release_funds",
}

func resultLabel(err error) string {
	if l, ok := resultLabels[kitty.Code(err)]; ok {
		return l
	}
	return "internal"
}
