// Package api serves the read-only HTTP query surface. Writes go through the
// framed TCP protocol so they stay serialized on the server loop.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kittyledger/server/internal/kitty"
	"github.com/kittyledger/server/internal/ledger"
	"github.com/kittyledger/server/internal/registry"
	"github.com/kittyledger/server/internal/scripting"
)

const (
	defaultJournalLimit = 100
	maxJournalLimit     = 1000
)

// Registry is the query side of the kitty registry.
type Registry interface {
	Kitty(ctx context.Context, id kitty.ID) (kitty.Kitty, error)
	Children(ctx context.Context, id kitty.ID) ([]kitty.ID, error)
	Partners(ctx context.Context, id kitty.ID) ([]kitty.ID, error)
	OwnedBy(ctx context.Context, a kitty.Account) ([]kitty.ID, error)
	Balance(ctx context.Context, a kitty.Account) (ledger.AccountData, error)
	Journal(ctx context.Context, from uint64, limit int) ([]registry.JournalEntry, error)
	Count(ctx context.Context) (kitty.ID, error)
}

// Handler serves the query routes.
type Handler struct {
	registry Registry
	traits   *scripting.Engine // nil uses the built-in mapping
	metrics  http.Handler      // nil disables /metrics
	log      *zap.Logger
}

func New(reg Registry, traits *scripting.Engine, metrics http.Handler, log *zap.Logger) *Handler {
	return &Handler{registry: reg, traits: traits, metrics: metrics, log: log}
}

// Router builds the chi router with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(h.logRequests)

	r.Get("/healthz", h.handleHealth)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}
	h.Register(r)
	return r
}

// Register adds the registry routes to r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/kitties/{id}", func(r chi.Router) {
		r.Get("/", h.handleKitty)
		r.Get("/children", h.handleChildren)
		r.Get("/partners", h.handlePartners)
	})
	r.Route("/accounts/{account}", func(r chi.Router) {
		r.Get("/kitties", h.handleOwned)
		r.Get("/balance", h.handleBalance)
	})
	r.Get("/journal", h.handleJournal)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	count, err := h.registry.Count(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "kitties": uint64(count)})
}

// errBadRequest marks malformed path or query parameters.
var errBadRequest = errors.New("bad request")

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := "internal"
	switch {
	case errors.Is(err, errBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, kitty.ErrInvalidAccount):
		status, code = http.StatusBadRequest, "invalid_account"
	case errors.Is(err, kitty.ErrKittyNotFound):
		status, code = http.StatusNotFound, "kitty_not_found"
	default:
		h.log.Error("query failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func kittyParam(r *http.Request) (kitty.ID, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errBadRequest
	}
	return kitty.ID(id), nil
}

func accountParam(r *http.Request) (kitty.Account, error) {
	return kitty.ParseAccount(chi.URLParam(r, "account"))
}
