package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Cycle metrics
	cyclesTotal        prometheus.Counter
	cycleFailuresTotal *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	ticksSkippedTotal  prometheus.Counter
	activeTriggers     prometheus.Gauge
	readFailuresTotal  prometheus.Counter
	feedsPriced        prometheus.Gauge

	// Resilience metrics
	retryAttemptsTotal *prometheus.CounterVec
	degradedTotal      *prometheus.CounterVec
	halted             prometheus.Gauge
	recoveryProbes     *prometheus.CounterVec

	// Coordinator metrics
	transitionsTotal   *prometheus.CounterVec
	guardReleasesTotal *prometheus.CounterVec
	guardSize          prometheus.Gauge

	// EventBus metrics
	bufferSize      prometheus.Gauge
	bufferCapacity  prometheus.Gauge
	emitErrorsTotal prometheus.Counter

	// Recorder metrics
	sinkDeliveriesTotal *prometheus.CounterVec
	notifyAttemptsTotal *prometheus.CounterVec

	leader prometheus.Gauge
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initCycleMetrics(reg)
	s.initResilienceMetrics(reg)
	s.initCoordinatorMetrics(reg)
	s.initEventBusMetrics(reg)
	s.initRecorderMetrics(reg)
	return s
}

func (s *PrometheusSink) initCycleMetrics(reg prometheus.Registerer) {
	s.cyclesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trigger_monitor_cycles_total",
		Help: "Total number of completed monitoring cycles.",
	})
	s.cycleFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_cycle_failures_total",
		Help: "Total number of monitoring cycles that failed, by stage.",
	}, []string{"stage"})
	s.cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "trigger_monitor_cycle_duration_seconds",
		Help:    "Duration of each completed monitoring cycle in seconds.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	s.ticksSkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trigger_monitor_ticks_skipped_total",
		Help: "Total number of ticks skipped because a cycle was still running.",
	})
	s.activeTriggers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_active_triggers",
		Help: "Pending and executing triggers seen in the last cycle.",
	})
	s.readFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trigger_monitor_trigger_read_failures_total",
		Help: "Total number of trigger reads skipped because they failed.",
	})
	s.feedsPriced = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_feeds_priced",
		Help: "Feeds that returned a usable price in the last cycle.",
	})

	s.register(reg, s.cyclesTotal, "trigger_monitor_cycles_total")
	s.register(reg, s.cycleFailuresTotal, "trigger_monitor_cycle_failures_total")
	s.register(reg, s.cycleDuration, "trigger_monitor_cycle_duration_seconds")
	s.register(reg, s.ticksSkippedTotal, "trigger_monitor_ticks_skipped_total")
	s.register(reg, s.activeTriggers, "trigger_monitor_active_triggers")
	s.register(reg, s.readFailuresTotal, "trigger_monitor_trigger_read_failures_total")
	s.register(reg, s.feedsPriced, "trigger_monitor_feeds_priced")
}

func (s *PrometheusSink) initResilienceMetrics(reg prometheus.Registerer) {
	s.retryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_retry_attempts_total",
		Help: "Total number of ledger call retries (excludes first attempt).",
	}, []string{"op"})
	s.degradedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_transport_degraded_total",
		Help: "Total number of ledger operations that exhausted their retries.",
	}, []string{"op"})
	s.halted = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_halted",
		Help: "1 while cycling is halted pending transport recovery.",
	})
	s.recoveryProbes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_recovery_probes_total",
		Help: "Total number of recovery probes, by result.",
	}, []string{"result"})

	s.register(reg, s.retryAttemptsTotal, "trigger_monitor_retry_attempts_total")
	s.register(reg, s.degradedTotal, "trigger_monitor_transport_degraded_total")
	s.register(reg, s.halted, "trigger_monitor_halted")
	s.register(reg, s.recoveryProbes, "trigger_monitor_recovery_probes_total")
}

func (s *PrometheusSink) initCoordinatorMetrics(reg prometheus.Registerer) {
	s.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_transitions_total",
		Help: "Total number of transition calls, by kind and outcome.",
	}, []string{"kind", "outcome"})
	s.guardReleasesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_guard_releases_total",
		Help: "Total number of guard intents released, by reason.",
	}, []string{"reason"})
	s.guardSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_guard_size",
		Help: "Intents held in the guard after the last cycle.",
	})

	s.register(reg, s.transitionsTotal, "trigger_monitor_transitions_total")
	s.register(reg, s.guardReleasesTotal, "trigger_monitor_guard_releases_total")
	s.register(reg, s.guardSize, "trigger_monitor_guard_size")
}

func (s *PrometheusSink) initEventBusMetrics(reg prometheus.Registerer) {
	s.bufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_eventbus_buffer_size",
		Help: "Current number of events in the event bus buffer.",
	})
	s.bufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_eventbus_buffer_capacity",
		Help: "Capacity of the event bus buffer.",
	})
	s.emitErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trigger_monitor_eventbus_emit_errors_total",
		Help: "Total number of emit errors (buffer full).",
	})

	s.register(reg, s.bufferSize, "trigger_monitor_eventbus_buffer_size")
	s.register(reg, s.bufferCapacity, "trigger_monitor_eventbus_buffer_capacity")
	s.register(reg, s.emitErrorsTotal, "trigger_monitor_eventbus_emit_errors_total")
}

func (s *PrometheusSink) initRecorderMetrics(reg prometheus.Registerer) {
	s.sinkDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_sink_deliveries_total",
		Help: "Total number of transition events delivered to sinks, by sink and result.",
	}, []string{"sink", "result"})
	s.notifyAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "trigger_monitor_notify_attempts_total",
		Help: "Total number of webhook notification attempts, by status class.",
	}, []string{"status_class"})
	s.leader = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trigger_monitor_leader",
		Help: "1 while this instance holds the leader lock.",
	})

	s.register(reg, s.sinkDeliveriesTotal, "trigger_monitor_sink_deliveries_total")
	s.register(reg, s.notifyAttemptsTotal, "trigger_monitor_notify_attempts_total")
	s.register(reg, s.leader, "trigger_monitor_leader")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.WithField("component", "metrics").WithError(err).Warnf("failed to register %s", name)
	}
}

func (s *PrometheusSink) CycleCompleted(report domain.CycleReport) {
	s.cyclesTotal.Inc()
	s.cycleDuration.Observe(report.Duration().Seconds())
	s.activeTriggers.Set(float64(report.Active))
	s.readFailuresTotal.Add(float64(report.ReadFailed))
	s.feedsPriced.Set(float64(report.FeedsPriced))
	s.guardSize.Set(float64(report.GuardSize))
}

func (s *PrometheusSink) CycleFailed(stage string) {
	s.cycleFailuresTotal.WithLabelValues(stage).Inc()
}

func (s *PrometheusSink) TickSkipped() {
	s.ticksSkippedTotal.Inc()
}

func (s *PrometheusSink) RetryAttempt(op string) {
	s.retryAttemptsTotal.WithLabelValues(op).Inc()
}

func (s *PrometheusSink) TransportDegraded(op string) {
	s.degradedTotal.WithLabelValues(op).Inc()
}

func (s *PrometheusSink) Halted(halted bool) {
	s.halted.Set(boolToFloat(halted))
}

func (s *PrometheusSink) RecoveryProbe(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	s.recoveryProbes.WithLabelValues(result).Inc()
}

func (s *PrometheusSink) TransitionRecorded(kind domain.TransitionKind, outcome domain.TransitionOutcome) {
	s.transitionsTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (s *PrometheusSink) GuardReleased(reason string) {
	s.guardReleasesTotal.WithLabelValues(reason).Inc()
}

func (s *PrometheusSink) BufferSizeUpdate(size int) {
	s.bufferSize.Set(float64(size))
}

func (s *PrometheusSink) BufferCapacitySet(capacity int) {
	s.bufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) EmitError() {
	s.emitErrorsTotal.Inc()
}

func (s *PrometheusSink) SinkDelivered(sink string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	s.sinkDeliveriesTotal.WithLabelValues(sink, result).Inc()
}

func (s *PrometheusSink) NotifyAttempt(statusClass string) {
	s.notifyAttemptsTotal.WithLabelValues(statusClass).Inc()
}

func (s *PrometheusSink) LeaderStatus(isLeader bool) {
	s.leader.Set(boolToFloat(isLeader))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
