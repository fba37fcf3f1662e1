package metrics

import "github.com/0xGF/hyper-trigger-sub000/internal/domain"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) CycleCompleted(report domain.CycleReport)                                        {}
func (n *NoopSink) CycleFailed(stage string)                                                        {}
func (n *NoopSink) TickSkipped()                                                                    {}
func (n *NoopSink) RetryAttempt(op string)                                                          {}
func (n *NoopSink) TransportDegraded(op string)                                                     {}
func (n *NoopSink) Halted(halted bool)                                                              {}
func (n *NoopSink) RecoveryProbe(success bool)                                                      {}
func (n *NoopSink) TransitionRecorded(kind domain.TransitionKind, outcome domain.TransitionOutcome) {}
func (n *NoopSink) GuardReleased(reason string)                                                     {}
func (n *NoopSink) BufferSizeUpdate(size int)                                                       {}
func (n *NoopSink) BufferCapacitySet(capacity int)                                                  {}
func (n *NoopSink) EmitError()                                                                      {}
func (n *NoopSink) SinkDelivered(sink string, err error)                                            {}
func (n *NoopSink) NotifyAttempt(statusClass string)                                                {}
func (n *NoopSink) LeaderStatus(isLeader bool)                                                      {}
