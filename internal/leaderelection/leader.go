// Package leaderelection lets one monitor instance drive triggers at a time.
//
// Leadership is a Postgres session-scoped advisory lock held on a dedicated
// connection. There is no TTL: if the connection dies Postgres releases the
// lock server-side. The heartbeat ping only detects local connection loss so
// the leader stops its duties promptly.
package leaderelection

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Lost reasons.
const (
	ReasonShutdown = "shutdown"
	ReasonConnLost = "conn_lost"
)

// MetricsSink records leader election metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	LeaderStatus(isLeader bool)
}

// Session is a dedicated connection able to hold the lock.
type Session interface {
	TryLock(ctx context.Context, key int64) (bool, error)
	Ping(ctx context.Context) error
	Close() error
}

// Connector opens a new Session.
type Connector func(ctx context.Context) (Session, error)

type Config struct {
	LockKey           int64
	RetryInterval     time.Duration
	HeartbeatInterval time.Duration
}

type Elector struct {
	config    Config
	connect   Connector
	onElected func(ctx context.Context)
	onDemoted func()
	metrics   MetricsSink
	logger    *log.Entry

	leader atomic.Bool
}

// New creates an Elector.
//
// onElected runs in a new goroutine when the lock is acquired; its context is
// cancelled when leadership is lost. onDemoted runs synchronously after loss
// and must block until leader duties have stopped. It must be idempotent.
func New(config Config, connect Connector, onElected func(ctx context.Context), onDemoted func()) *Elector {
	if config.RetryInterval <= 0 {
		config.RetryInterval = 5 * time.Second
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = 2 * time.Second
	}
	return &Elector{
		config:    config,
		connect:   connect,
		onElected: onElected,
		onDemoted: onDemoted,
		logger:    log.WithFields(log.Fields{"component": "leader", "lock_key": config.LockKey}),
	}
}

// PostgresConnector opens dedicated connections from db.
func PostgresConnector(db *sql.DB) Connector {
	return func(ctx context.Context) (Session, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("dedicated connection: %w", err)
		}
		return pgSession{conn: conn}, nil
	}
}

type pgSession struct {
	conn *sql.Conn
}

func (s pgSession) TryLock(ctx context.Context, key int64) (bool, error) {
	var acquired bool
	err := s.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired)
	return acquired, err
}

func (s pgSession) Ping(ctx context.Context) error { return s.conn.PingContext(ctx) }
func (s pgSession) Close() error                   { return s.conn.Close() }

// WithMetrics attaches a metrics sink to the elector.
func (e *Elector) WithMetrics(sink MetricsSink) *Elector {
	e.metrics = sink
	return e
}

func (e *Elector) IsLeader() bool {
	return e.leader.Load()
}

// Run campaigns for leadership until ctx is cancelled.
func (e *Elector) Run(ctx context.Context) {
	e.logger.WithFields(log.Fields{
		"retry":     e.config.RetryInterval.String(),
		"heartbeat": e.config.HeartbeatInterval.String(),
	}).Info("election loop started")
	defer e.logger.Info("election loop stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		if reason := e.runOnce(ctx); reason != "" && ctx.Err() == nil {
			e.logger.WithField("reason", reason).Warn("lost leadership")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(e.config.RetryInterval):
		}
	}
}

// runOnce returns the reason leadership was lost, or "" if the lock was not
// acquired.
func (e *Elector) runOnce(ctx context.Context) string {
	session, err := e.connect(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("connect failed")
		return ""
	}
	defer session.Close()

	acquired, err := session.TryLock(ctx, e.config.LockKey)
	if err != nil {
		e.logger.WithError(err).Warn("advisory lock query failed")
		return ""
	}
	if !acquired {
		e.logger.Debug("lock held by another instance")
		return ""
	}

	e.logger.Info("acquired leadership")
	e.setLeader(true)

	leaderCtx, cancel := context.WithCancel(ctx)
	go e.onElected(leaderCtx)

	reason := e.hold(ctx, session)

	cancel()
	e.onDemoted()
	e.setLeader(false)
	e.logger.WithField("reason", reason).Info("released leadership")
	return reason
}

func (e *Elector) hold(ctx context.Context, session Session) string {
	ticker := time.NewTicker(e.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case <-ticker.C:
			if err := session.Ping(ctx); err != nil {
				if ctx.Err() != nil {
					return ReasonShutdown
				}
				e.logger.WithError(err).Warn("heartbeat failed")
				return ReasonConnLost
			}
		}
	}
}

func (e *Elector) setLeader(v bool) {
	e.leader.Store(v)
	if e.metrics != nil {
		e.metrics.LeaderStatus(v)
	}
}
