package postgres

const querySchema = `
CREATE TABLE IF NOT EXISTS transition_log (
    id            UUID PRIMARY KEY,
    cycle_id      UUID NOT NULL,
    trigger_id    NUMERIC(78, 0) NOT NULL,
    owner         TEXT NOT NULL DEFAULT '',
    kind          TEXT NOT NULL,
    outcome       TEXT NOT NULL,
    reason        TEXT NOT NULL DEFAULT '',
    output_amount NUMERIC,
    error         TEXT NOT NULL DEFAULT '',
    occurred_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS transition_log_trigger_idx ON transition_log (trigger_id, occurred_at DESC);
`

const queryInsertTransition = `
INSERT INTO transition_log (id, cycle_id, trigger_id, owner, kind, outcome, reason, output_amount, error, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING
`

const queryListTransitions = `
SELECT id, cycle_id, trigger_id, owner, kind, outcome, reason, output_amount, error, occurred_at
FROM transition_log
ORDER BY occurred_at DESC
LIMIT $1
`

const queryListTriggerTransitions = `
SELECT id, cycle_id, trigger_id, owner, kind, outcome, reason, output_amount, error, occurred_at
FROM transition_log
WHERE trigger_id = $1
ORDER BY occurred_at DESC
LIMIT $2
`
