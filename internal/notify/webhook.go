// Package notify posts signed webhook notifications for confirmed terminal
// transitions.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/metrics"
)

const (
	HeaderEventID   = "X-Trigger-Event-ID"
	HeaderAttemptID = "X-Trigger-Attempt-ID"
	HeaderSignature = "X-Trigger-Signature"
)

var defaultBackoff = []time.Duration{
	0,
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

const defaultMaxAttempts = 4

// MetricsSink records notification metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	NotifyAttempt(statusClass string)
}

// Payload is the JSON body of a notification.
type Payload struct {
	EventID      string `json:"event_id"`
	CycleID      string `json:"cycle_id"`
	TriggerID    uint64 `json:"trigger_id"`
	Owner        string `json:"owner,omitempty"`
	Kind         string `json:"kind"`
	Reason       string `json:"reason,omitempty"`
	OutputAmount string `json:"output_amount,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

func NewPayload(event domain.TransitionEvent) Payload {
	p := Payload{
		EventID:    event.ID.String(),
		CycleID:    event.CycleID.String(),
		TriggerID:  event.TriggerID,
		Owner:      event.Owner,
		Kind:       string(event.Kind),
		Reason:     event.Reason,
		OccurredAt: event.OccurredAt.UTC().Format(time.RFC3339),
	}
	if event.Kind == domain.TransitionComplete {
		p.OutputAmount = event.OutputAmount.String()
	}
	return p
}

type Result struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r Result) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Result) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return r.StatusCode >= 500
}

type Config struct {
	URL         string
	Secret      string
	Timeout     time.Duration
	MaxAttempts int
}

// Webhook is a recorder sink that notifies an HTTP endpoint of completed and
// failed triggers. Other events are ignored.
type Webhook struct {
	config  Config
	client  *http.Client
	backoff []time.Duration
	metrics MetricsSink
	logger  *log.Entry
}

func NewWebhook(config Config) *Webhook {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	return &Webhook{
		config:  config,
		client:  &http.Client{},
		backoff: defaultBackoff,
		logger:  log.WithField("component", "notify"),
	}
}

// WithMetrics attaches a metrics sink to the webhook.
func (w *Webhook) WithMetrics(sink MetricsSink) *Webhook {
	w.metrics = sink
	return w
}

func (w *Webhook) Name() string { return "webhook" }

// Record delivers the notification, retrying on transport errors, 429 and
// 5xx responses until MaxAttempts is reached.
func (w *Webhook) Record(ctx context.Context, event domain.TransitionEvent) error {
	if !event.Terminal() {
		return nil
	}

	body, err := json.Marshal(NewPayload(event))
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	var last Result
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			idx := attempt - 1
			if idx >= len(w.backoff) {
				idx = len(w.backoff) - 1
			}
			backoff := w.backoff[idx]
			w.logger.WithFields(log.Fields{
				"trigger_id": event.TriggerID,
				"attempt":    attempt,
				"backoff":    backoff.String(),
			}).Debug("retrying notification")

			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		last = w.send(ctx, event.ID, body)
		if w.metrics != nil {
			w.metrics.NotifyAttempt(metrics.ClassifyStatus(last.StatusCode, last.Error))
		}
		if last.IsSuccess() {
			return nil
		}
		if !last.IsRetryable() {
			return fmt.Errorf("notify trigger %d: status %d", event.TriggerID, last.StatusCode)
		}
	}

	if last.Error != nil {
		return fmt.Errorf("notify trigger %d: %d attempts: %w", event.TriggerID, w.config.MaxAttempts, last.Error)
	}
	return fmt.Errorf("notify trigger %d: %d attempts: status %d", event.TriggerID, w.config.MaxAttempts, last.StatusCode)
}

func (w *Webhook) send(ctx context.Context, eventID uuid.UUID, body []byte) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, eventID.String())
	req.Header.Set(HeaderAttemptID, uuid.NewString())
	req.Header.Set(HeaderSignature, Sign(w.config.Secret, body))

	resp, err := w.client.Do(req)
	if err != nil {
		return Result{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return Result{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

// ErrEmptySecret is returned by VerifyRequest when no secret is configured.
var ErrEmptySecret = errors.New("notify: empty secret")

// Sign returns the hex HMAC-SHA256 of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers to verify incoming notifications.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}

// VerifyRequest checks the signature header of a received notification.
func VerifyRequest(secret string, header http.Header, body []byte) (bool, error) {
	if secret == "" {
		return false, ErrEmptySecret
	}
	return VerifySignature(secret, body, header.Get(HeaderSignature)), nil
}
