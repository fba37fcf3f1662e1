package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/guard"
	"github.com/0xGF/hyper-trigger-sub000/internal/testutil"
)

type stubHalter bool

func (s stubHalter) Halted() bool { return bool(s) }

type stubReporter struct {
	report *domain.CycleReport
}

func (s stubReporter) LastReport() (domain.CycleReport, bool) {
	if s.report == nil {
		return domain.CycleReport{}, false
	}
	return *s.report, true
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type stubJournal struct {
	events    []domain.TransitionEvent
	err       error
	triggerID uint64
	limit     int
}

func (s *stubJournal) Recent(_ context.Context, triggerID uint64, limit int) ([]domain.TransitionEvent, error) {
	s.triggerID, s.limit = triggerID, limit
	return s.events, s.err
}

func serve(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.Router(http.NotFoundHandler(), "/metrics").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		halted bool
		ping   error
		target string
		code   int
		status string
	}{
		{"ok", false, nil, "/health", http.StatusOK, "ok"},
		{"halted", true, nil, "/health", http.StatusServiceUnavailable, "halted"},
		{"verbose healthy", false, nil, "/health?verbose=true", http.StatusOK, "ok"},
		{"verbose unreachable", false, errors.New("dial tcp: refused"), "/health?verbose=true", http.StatusServiceUnavailable, "degraded"},
		{"non verbose skips ping", false, errors.New("dial tcp: refused"), "/health", http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(stubHalter(tt.halted), stubReporter{}, guard.New()).
				WithHealthChecker(stubPinger{err: tt.ping})

			rec := serve(t, h, tt.target)

			assert.Equal(t, tt.code, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.status, resp.Status)
		})
	}
}

func TestStatus(t *testing.T) {
	g := guard.New()
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, g.Acquire(3, now))
	report := domain.CycleReport{CycleID: uuid.New(), Active: 4, Started: 1}

	rec := serve(t, NewHandler(stubHalter(false), stubReporter{report: &report}, g), "/status")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.False(t, resp.Halted)
	assert.Nil(t, resp.Leader)
	require.Len(t, resp.Intents, 1)
	assert.Equal(t, uint64(3), resp.Intents[0].TriggerID)
	require.NotNil(t, resp.LastReport)
	assert.Equal(t, report.CycleID, resp.LastReport.CycleID)
}

func TestTransitions(t *testing.T) {
	j := &stubJournal{events: []domain.TransitionEvent{{
		ID:           uuid.New(),
		TriggerID:    5,
		Kind:         domain.TransitionComplete,
		Outcome:      domain.OutcomeAccepted,
		OutputAmount: testutil.Price("2.5"),
	}}}
	h := NewHandler(stubHalter(false), stubReporter{}, guard.New()).WithJournal(j)

	rec := serve(t, h, "/transitions?trigger_id=5&limit=10000")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(5), j.triggerID)
	assert.Equal(t, MaxLimit, j.limit)
	var resp []TransitionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "2.5", resp[0].OutputAmount)
}

func TestTransitions_BadRequest(t *testing.T) {
	h := NewHandler(stubHalter(false), stubReporter{}, guard.New()).WithJournal(&stubJournal{})

	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/transitions?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h, "/transitions?trigger_id=abc").Code)
}

func TestTransitions_NotMountedWithoutJournal(t *testing.T) {
	h := NewHandler(stubHalter(false), stubReporter{}, guard.New())
	assert.Equal(t, http.StatusNotFound, serve(t, h, "/transitions").Code)
}

func TestTransitions_JournalError(t *testing.T) {
	h := NewHandler(stubHalter(false), stubReporter{}, guard.New()).
		WithJournal(&stubJournal{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusInternalServerError, serve(t, h, "/transitions").Code)
}
