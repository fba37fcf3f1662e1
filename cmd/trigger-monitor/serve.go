package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/0xGF/hyper-trigger-sub000/internal/analytics"
	"github.com/0xGF/hyper-trigger-sub000/internal/api"
	"github.com/0xGF/hyper-trigger-sub000/internal/circuitbreaker"
	"github.com/0xGF/hyper-trigger-sub000/internal/config"
	"github.com/0xGF/hyper-trigger-sub000/internal/coordinator"
	"github.com/0xGF/hyper-trigger-sub000/internal/cron"
	"github.com/0xGF/hyper-trigger-sub000/internal/guard"
	"github.com/0xGF/hyper-trigger-sub000/internal/leaderelection"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger/evm"
	"github.com/0xGF/hyper-trigger-sub000/internal/metrics"
	"github.com/0xGF/hyper-trigger-sub000/internal/monitor"
	"github.com/0xGF/hyper-trigger-sub000/internal/mq"
	"github.com/0xGF/hyper-trigger-sub000/internal/notify"
	"github.com/0xGF/hyper-trigger-sub000/internal/oracle"
	"github.com/0xGF/hyper-trigger-sub000/internal/recorder"
	"github.com/0xGF/hyper-trigger-sub000/internal/registry"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
	"github.com/0xGF/hyper-trigger-sub000/internal/scheduler"
	"github.com/0xGF/hyper-trigger-sub000/internal/store/postgres"
	"github.com/0xGF/hyper-trigger-sub000/internal/transport/channel"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor until SIGINT or SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func resiliencePolicy(cfg config.Config) resilience.Policy {
	return resilience.Policy{
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Mode:       resilience.Mode(cfg.ResilienceMode),
	}
}

func newLayer(cfg config.Config, sink resilience.MetricsSink) *resilience.Layer {
	layer := resilience.New(resiliencePolicy(cfg)).WithMetrics(sink)
	if layer.Policy().Mode == resilience.ModeBreaker {
		layer = layer.WithBreaker(circuitbreaker.New(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown))
	}
	return layer
}

func dialLedger(ctx context.Context, cfg config.Config, signing bool) (*evm.Client, error) {
	ecfg := evm.Config{
		RPCURL:          cfg.RPCURL,
		ContractAddress: cfg.ContractAddress,
		ChainID:         cfg.ChainID,
		PriceDecimals:   cfg.PriceDecimals,
		CallTimeout:     cfg.RPCTimeout,
		ReceiptTimeout:  cfg.ReceiptTimeout,
	}
	if signing {
		ecfg.PrivateKey = cfg.WorkerPrivateKey
	}
	return evm.Dial(ctx, ecfg)
}

// closer is run in reverse order on shutdown.
type closer struct {
	name string
	fn   func() error
}

func runServe(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "main")

	var sink metrics.Sink = metrics.NewNoopSink()
	if cfg.MetricsEnabled {
		sink = metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	}

	chain, err := dialLedger(ctx, cfg, true)
	if err != nil {
		return fmt.Errorf("dial ledger: %w", err)
	}
	defer chain.Close()
	logger.WithField("worker", chain.From()).Info("ledger connected")

	layer := newLayer(cfg, sink)
	client := resilience.WrapClient(chain, layer)

	schedule, err := cron.NewParser().Parse(cfg.CycleSchedule, cfg.Timezone)
	if err != nil {
		return &exitError{code: exitInvalidConfig, err: err}
	}

	bus := channel.NewEventBus(cfg.EventBusBufferSize).WithMetrics(sink)
	coord := coordinator.New(
		coordinator.Config{ExecutionTimeout: cfg.ExecutionTimeout, StartGuardTTL: cfg.StartGuardTTL},
		client,
		coordinator.NewBalanceProbe(client),
		guard.New(),
	).WithEmitter(bus).WithMetrics(sink).WithGate(layer)

	mon := monitor.New(
		registry.NewScanner(client, cfg.ScanConcurrency),
		oracle.New(client, cfg.Feeds, cfg.OracleConcurrency),
		coord,
		layer,
	).WithMetrics(sink)

	sched := scheduler.New(scheduler.Config{
		Schedule:         schedule,
		RecoveryInterval: cfg.RecoveryInterval,
		ProbeTimeout:     cfg.RPCTimeout,
	}, mon, layer, client).WithMetrics(sink)

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				logger.WithError(err).Warnf("close %s", closers[i].name)
			}
		}
	}()

	sinks, db, journal, err := buildSinks(ctx, cfg, sink, &closers)
	if err != nil {
		return err
	}
	rec := recorder.New(sinks...).WithMetrics(sink).WithDrainTimeout(cfg.RecorderDrainTimeout)

	handler := api.NewHandler(sched, mon, coord.Guard()).WithHealthChecker(chain)
	if journal != nil {
		handler = handler.WithJournal(journal)
	}

	var elector *leaderelection.Elector
	if cfg.LeaderElectionEnabled {
		duty := &leaderDuty{run: func(ctx context.Context) { _ = sched.Run(ctx) }}
		elector = leaderelection.New(leaderelection.Config{
			LockKey:           cfg.LeaderLockKey,
			RetryInterval:     cfg.LeaderRetryInterval,
			HeartbeatInterval: cfg.LeaderHeartbeatInterval,
		}, leaderelection.PostgresConnector(db), duty.elected, duty.demoted).WithMetrics(sink)
		handler = handler.WithLeader(elector)
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = promhttp.Handler()
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(metricsHandler, cfg.MetricsPath),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("http server error")
		}
	}()

	// Separate contexts give an ordered shutdown: cycles stop before the
	// recorder drains the events they emitted.
	recorderCtx, cancelRecorder := context.WithCancel(context.Background())
	var recorderWg sync.WaitGroup
	recorderWg.Add(1)
	go func() {
		defer recorderWg.Done()
		rec.Run(recorderCtx, bus.Channel())
	}()

	logger.WithFields(log.Fields{
		"schedule": cfg.CycleSchedule,
		"feeds":    len(cfg.Feeds),
		"mode":     cfg.ResilienceMode,
		"sinks":    rec.Sinks(),
		"leader":   cfg.LeaderElectionEnabled,
	}).Info("trigger monitor started")

	if elector != nil {
		elector.Run(ctx)
	} else if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scheduler stopped")
	}
	logger.Info("cycles stopped")

	cancelRecorder()
	recorderWg.Wait()
	logger.Info("recorder drained")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown error")
	}

	logger.Info("stopped")
	return nil
}

// buildSinks connects the optional recorder sinks. The returned db is
// non-nil when DATABASE_URL is set and is shared with leader election.
func buildSinks(ctx context.Context, cfg config.Config, m metrics.Sink, closers *[]closer) ([]recorder.Sink, *sql.DB, *postgres.Journal, error) {
	logger := log.WithField("component", "main")
	var (
		sinks   []recorder.Sink
		db      *sql.DB
		journal *postgres.Journal
	)

	if cfg.DatabaseURL != "" {
		var err error
		db, err = postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, err
		}
		*closers = append(*closers, closer{"postgres", db.Close})
		journal = postgres.New(db)
		if err := journal.EnsureSchema(ctx); err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, journal)
	} else {
		logger.Info("DATABASE_URL not set; transition journal disabled")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		*closers = append(*closers, closer{"redis", client.Close})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable at startup; counters will retry per event")
		}
		sinks = append(sinks, analytics.NewRedisSink(client, analytics.Config{}))
	} else {
		logger.Info("REDIS_ADDR not set; analytics disabled")
	}

	if cfg.AMQPURL != "" {
		conn, err := mq.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, nil, err
		}
		*closers = append(*closers, closer{"amqp", conn.Close})
		pub := mq.NewPublisher(conn, cfg.AMQPExchange)
		if err := pub.DeclareExchange(); err != nil {
			return nil, nil, nil, err
		}
		sinks = append(sinks, pub)
	}

	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(notify.Config{
			URL:     cfg.NotifyWebhookURL,
			Secret:  cfg.NotifyWebhookSecret,
			Timeout: cfg.NotifyTimeout,
		}).WithMetrics(m))
	}

	return sinks, db, journal, nil
}

// leaderDuty runs the scheduler while leadership is held. demoted blocks
// until the current run, and with it the guard reset, has finished.
type leaderDuty struct {
	run func(ctx context.Context)

	mu   sync.Mutex
	done chan struct{}
}

func (d *leaderDuty) elected(ctx context.Context) {
	done := make(chan struct{})
	d.mu.Lock()
	d.done = done
	d.mu.Unlock()
	defer close(done)
	d.run(ctx)
}

func (d *leaderDuty) demoted() {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		<-done
	}
}
