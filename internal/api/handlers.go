package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/trogers1052/stock-signal-engine/internal/breaker"
	"github.com/trogers1052/stock-signal-engine/internal/models"
	"github.com/trogers1052/stock-signal-engine/internal/scheduler"
)

// SignalReader serves the published signal state
type SignalReader interface {
	Latest(ctx context.Context, symbol string) (models.SignalView, error)
	LatestAudit(ctx context.Context) (*models.QualityAuditReport, error)
}

// BreakerRegistry exposes breaker state and manual reset
type BreakerRegistry interface {
	Snapshots() []breaker.Snapshot
	Reset(name string) bool
}

// JobStatuser reports scheduler state
type JobStatuser interface {
	Status() []scheduler.JobStatus
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Handler holds dependencies for HTTP handlers
type Handler struct {
	signals  SignalReader
	breakers BreakerRegistry
	jobs     JobStatuser
	checks   map[string]Pinger
	log      zerolog.Logger
}

// NewHandler creates a new Handler. jobs and checks may be nil.
func NewHandler(signals SignalReader, breakers BreakerRegistry, jobs JobStatuser, checks map[string]Pinger, log zerolog.Logger) *Handler {
	return &Handler{
		signals:  signals,
		breakers: breakers,
		jobs:     jobs,
		checks:   checks,
		log:      log.With().Str("component", "api").Logger(),
	}
}

// GetSignal handles GET /signals/{symbol}
func (h *Handler) GetSignal(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])

	view, err := h.signals.Latest(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read signal")
		respondError(w, http.StatusInternalServerError, "failed to read signal")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GetLatestQuality handles GET /quality/latest
func (h *Handler) GetLatestQuality(w http.ResponseWriter, r *http.Request) {
	report, err := h.signals.LatestAudit(r.Context())
	if errors.Is(err, models.ErrNotFound) {
		respondError(w, http.StatusNotFound, "no batch has been audited yet")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read quality report")
		respondError(w, http.StatusInternalServerError, "failed to read quality report")
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// GetBreakers handles GET /breakers
func (h *Handler) GetBreakers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.breakers.Snapshots())
}

// ResetBreaker handles POST /breakers/{name}/reset
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !h.breakers.Reset(name) {
		respondError(w, http.StatusNotFound, "unknown breaker")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetJobs handles GET /jobs
func (h *Handler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, []scheduler.JobStatus{})
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.Status())
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "healthy"}
	for name, p := range h.checks {
		if err := p.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Str("check", name).Msg("Health check failed")
			body[name] = "down"
			body["status"] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "up"
	}
	respondJSON(w, status, body)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
