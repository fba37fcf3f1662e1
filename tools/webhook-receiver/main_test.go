package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/notify"
)

func TestReceiver_AcceptsSignedNotification(t *testing.T) {
	rc := newReceiver("s3cret")
	srv := httptest.NewServer(rc.routes())
	defer srv.Close()

	wh := notify.NewWebhook(notify.Config{URL: srv.URL + "/hook", Secret: "s3cret", Timeout: time.Second})
	err := wh.Record(context.Background(), domain.TransitionEvent{
		ID:        uuid.New(),
		TriggerID: 4,
		Kind:      domain.TransitionFail,
		Outcome:   domain.OutcomeAccepted,
		Reason:    domain.FailReasonTimeout,
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rc.stats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	var stats struct {
		Count int64      `json:"count"`
		Last  []received `json:"last"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.Count)
	require.Len(t, stats.Last, 1)
	assert.True(t, stats.Last[0].Verified)
	assert.Equal(t, "timeout", stats.Last[0].Payload.Reason)
}

func TestReceiver_RejectsBadSignature(t *testing.T) {
	rc := newReceiver("s3cret")
	req := httptest.NewRequest(http.MethodPost, "/hook", bytes.NewReader([]byte(`{"trigger_id":1}`)))
	req.Header.Set(notify.HeaderSignature, notify.Sign("wrong", []byte(`{"trigger_id":1}`)))
	rec := httptest.NewRecorder()

	rc.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, rc.count)
}
