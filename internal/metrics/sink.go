package metrics

import (
	"strings"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Cycle metrics
	CycleCompleted(report domain.CycleReport)
	CycleFailed(stage string)
	TickSkipped()

	// Resilience metrics
	RetryAttempt(op string)
	TransportDegraded(op string)
	Halted(halted bool)
	RecoveryProbe(success bool)

	// Coordinator metrics
	TransitionRecorded(kind domain.TransitionKind, outcome domain.TransitionOutcome)
	GuardReleased(reason string)

	// EventBus metrics
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()

	// Recorder metrics
	SinkDelivered(sink string, err error)
	NotifyAttempt(statusClass string)

	LeaderStatus(isLeader bool)
}

// StatusClass constants for NotifyAttempt.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps a status code and error to a status class.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		switch {
		case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
			return StatusClassTimeout
		case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial"):
			return StatusClassConnectionError
		default:
			return StatusClassOtherError
		}
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
