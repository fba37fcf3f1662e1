package api

import (
	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/guard"
)

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

type StatusResponse struct {
	Halted     bool                `json:"halted"`
	Leader     *bool               `json:"leader,omitempty"`
	Intents    []guard.Intent      `json:"intents"`
	LastReport *domain.CycleReport `json:"last_report,omitempty"`
}

type TransitionResponse struct {
	ID           string `json:"id"`
	CycleID      string `json:"cycle_id"`
	TriggerID    uint64 `json:"trigger_id"`
	Kind         string `json:"kind"`
	Outcome      string `json:"outcome"`
	Reason       string `json:"reason,omitempty"`
	OutputAmount string `json:"output_amount,omitempty"`
	Error        string `json:"error,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
