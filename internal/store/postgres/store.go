// Package postgres journals transition events to PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// DB is the subset of *sql.DB used by the journal.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Journal is an append-only transition log.
type Journal struct {
	db DB
}

// New creates a journal over the given database connection.
func New(db DB) *Journal {
	return &Journal{db: db}
}

// Open connects to PostgreSQL through lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the transition_log table if missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, querySchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (j *Journal) Name() string { return "postgres" }

// Record inserts the event. Replays of the same event id are ignored.
func (j *Journal) Record(ctx context.Context, event domain.TransitionEvent) error {
	_, err := j.db.ExecContext(ctx, queryInsertTransition,
		event.ID,
		event.CycleID,
		fmt.Sprintf("%d", event.TriggerID),
		event.Owner,
		string(event.Kind),
		string(event.Outcome),
		event.Reason,
		nullableAmount(event),
		event.Error,
		event.OccurredAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// Recent returns the latest transitions, newest first. A zero triggerID
// lists all triggers.
func (j *Journal) Recent(ctx context.Context, triggerID uint64, limit int) ([]domain.TransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if triggerID == 0 {
		rows, err = j.db.QueryContext(ctx, queryListTransitions, limit)
	} else {
		rows, err = j.db.QueryContext(ctx, queryListTriggerTransitions, fmt.Sprintf("%d", triggerID), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var result []domain.TransitionEvent
	for rows.Next() {
		var (
			e       domain.TransitionEvent
			trigger string
			kind    string
			outcome string
			amount  decimal.NullDecimal
		)
		err := rows.Scan(
			&e.ID,
			&e.CycleID,
			&trigger,
			&e.Owner,
			&kind,
			&outcome,
			&e.Reason,
			&amount,
			&e.Error,
			&e.OccurredAt,
		)
		if err != nil {
			return nil, err
		}
		if _, err := fmt.Sscanf(trigger, "%d", &e.TriggerID); err != nil {
			return nil, fmt.Errorf("trigger id %q: %w", trigger, err)
		}
		e.Kind = domain.TransitionKind(kind)
		e.Outcome = domain.TransitionOutcome(outcome)
		if amount.Valid {
			e.OutputAmount = amount.Decimal
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullableAmount(event domain.TransitionEvent) decimal.NullDecimal {
	if event.Kind != domain.TransitionComplete {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(event.OutputAmount)
}

// isUniqueViolation checks for PostgreSQL error code 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
