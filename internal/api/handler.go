// Package api serves the operational HTTP surface of the monitor.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/guard"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Halter reports whether cycling is halted pending transport recovery.
type Halter interface {
	Halted() bool
}

type Reporter interface {
	LastReport() (domain.CycleReport, bool)
}

type Intents interface {
	Snapshot() []guard.Intent
}

// HealthChecker probes the ledger endpoint for verbose /health responses.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type Journal interface {
	Recent(ctx context.Context, triggerID uint64, limit int) ([]domain.TransitionEvent, error)
}

type Leader interface {
	IsLeader() bool
}

type Handler struct {
	halter   Halter
	reporter Reporter
	intents  Intents
	ledger   HealthChecker
	journal  Journal
	leader   Leader
	logger   *log.Entry
}

func NewHandler(halter Halter, reporter Reporter, intents Intents) *Handler {
	return &Handler{
		halter:   halter,
		reporter: reporter,
		intents:  intents,
		logger:   log.WithField("component", "api"),
	}
}

// WithHealthChecker sets the ledger health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(c HealthChecker) *Handler {
	h.ledger = c
	return h
}

// WithJournal enables GET /transitions.
func (h *Handler) WithJournal(j Journal) *Handler {
	h.journal = j
	return h
}

func (h *Handler) WithLeader(l Leader) *Handler {
	h.leader = l
	return h
}

// Router returns the routes. metrics is mounted at metricsPath when non-nil.
func (h *Handler) Router(metrics http.Handler, metricsPath string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/status", h.status).Methods(http.MethodGet)
	if h.journal != nil {
		r.HandleFunc("/transitions", h.transitions).Methods(http.MethodGet)
	}
	if metrics != nil {
		r.Handle(metricsPath, metrics).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if h.halter.Halted() {
		resp.Status = "halted"
	}

	if r.URL.Query().Get("verbose") == "true" && h.ledger != nil {
		resp.Components = make(map[string]string)

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := h.ledger.Ping(ctx); err != nil {
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			resp.Components["ledger"] = "unhealthy: " + err.Error()
		} else {
			resp.Components["ledger"] = "healthy"
		}
	}

	statusCode := http.StatusOK
	if resp.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, resp)
}

func (h *Handler) status(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Halted:  h.halter.Halted(),
		Intents: h.intents.Snapshot(),
	}
	if h.leader != nil {
		leader := h.leader.IsLeader()
		resp.Leader = &leader
	}
	if report, ok := h.reporter.LastReport(); ok {
		resp.LastReport = &report
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) transitions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxLimit)
	}

	var triggerID uint64
	if s := q.Get("trigger_id"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid trigger_id")
			return
		}
		triggerID = n
	}

	events, err := h.journal.Recent(r.Context(), triggerID, limit)
	if err != nil {
		h.logger.WithError(err).Error("list transitions")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]TransitionResponse, 0, len(events))
	for _, e := range events {
		tr := TransitionResponse{
			ID:         e.ID.String(),
			CycleID:    e.CycleID.String(),
			TriggerID:  e.TriggerID,
			Kind:       string(e.Kind),
			Outcome:    string(e.Outcome),
			Reason:     e.Reason,
			Error:      e.Error,
			OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
		}
		if e.Kind == domain.TransitionComplete {
			tr.OutputAmount = e.OutputAmount.String()
		}
		resp = append(resp, tr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithField("component", "api").WithError(err).Warn("json encode error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
