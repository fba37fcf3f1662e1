package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

var _ Sink = (*PrometheusSink)(nil)
var _ Sink = (*NoopSink)(nil)

func TestCycleCompleted(t *testing.T) {
	sink := NewPrometheusSink(prometheus.NewRegistry())
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	sink.CycleCompleted(domain.CycleReport{
		StartedAt:   start,
		FinishedAt:  start.Add(2 * time.Second),
		Active:      4,
		ReadFailed:  1,
		FeedsPriced: 3,
		GuardSize:   2,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.cyclesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(sink.activeTriggers))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.readFailuresTotal))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.feedsPriced))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.guardSize))
}

func TestTransitionRecorded(t *testing.T) {
	sink := NewPrometheusSink(prometheus.NewRegistry())

	sink.TransitionRecorded(domain.TransitionStart, domain.OutcomeAccepted)
	sink.TransitionRecorded(domain.TransitionStart, domain.OutcomeAccepted)
	sink.TransitionRecorded(domain.TransitionFail, domain.OutcomeUnknown)

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.transitionsTotal.WithLabelValues("start", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.transitionsTotal.WithLabelValues("fail", "unknown")))
}

func TestResilienceMetrics(t *testing.T) {
	sink := NewPrometheusSink(prometheus.NewRegistry())

	sink.RetryAttempt("get_trigger")
	sink.TransportDegraded("get_trigger")
	sink.Halted(true)
	sink.RecoveryProbe(false)
	sink.RecoveryProbe(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.retryAttemptsTotal.WithLabelValues("get_trigger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.degradedTotal.WithLabelValues("get_trigger")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.halted))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.recoveryProbes.WithLabelValues("success")))

	sink.Halted(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.halted))
}

func TestSinkDelivered(t *testing.T) {
	sink := NewPrometheusSink(prometheus.NewRegistry())

	sink.SinkDelivered("redis", nil)
	sink.SinkDelivered("redis", errors.New("connection refused"))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.sinkDeliveriesTotal.WithLabelValues("redis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.sinkDeliveriesTotal.WithLabelValues("redis", "error")))
}

func TestDuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)

	assert.NotPanics(t, func() {
		sink := NewPrometheusSink(reg)
		sink.EmitError()
		sink.LeaderStatus(true)
	})
}

func TestNoopSink(t *testing.T) {
	n := NewNoopSink()
	assert.NotPanics(t, func() {
		n.CycleCompleted(domain.CycleReport{})
		n.TransitionRecorded(domain.TransitionComplete, domain.OutcomeRejected)
		n.SinkDelivered("amqp", errors.New("closed"))
		n.Halted(true)
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		err  error
		want string
	}{
		{200, nil, StatusClass2xx},
		{204, nil, StatusClass2xx},
		{404, nil, StatusClass4xx},
		{503, nil, StatusClass5xx},
		{0, errors.New("context deadline exceeded"), StatusClassTimeout},
		{0, errors.New("Client.Timeout exceeded"), StatusClassTimeout},
		{0, errors.New("dial tcp 10.0.0.1:443: connection refused"), StatusClassConnectionError},
		{0, errors.New("tls: bad certificate"), StatusClassOtherError},
		{302, nil, StatusClassOtherError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyStatus(tt.code, tt.err), "code=%d err=%v", tt.code, tt.err)
	}
}
