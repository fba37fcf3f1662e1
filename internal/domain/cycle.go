package domain

import (
	"time"

	"github.com/google/uuid"
)

// CycleReport summarises one monitoring cycle.
type CycleReport struct {
	CycleID    uuid.UUID `json:"cycle_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Scanned    int `json:"scanned"`
	Active     int `json:"active"`
	ReadFailed int `json:"read_failed"`

	FeedsPriced int `json:"feeds_priced"`
	FeedsFailed int `json:"feeds_failed"`

	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Rejected  int `json:"rejected"`
	Unknown   int `json:"unknown"`
	Released  int `json:"released"`

	GuardSize int `json:"guard_size"`
}

// Duration returns the wall time the cycle took.
func (r CycleReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Transitions returns the number of transition calls attempted in the cycle.
func (r CycleReport) Transitions() int {
	return r.Started + r.Completed + r.Failed + r.Rejected + r.Unknown
}
