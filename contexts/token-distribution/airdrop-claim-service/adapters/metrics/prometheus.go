package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespaceAirdrop = "airdrop"
	subsystemClaims  = "claims"
	subsystemSaga    = "saga"

	LabelReason = "reason"
	LabelSource = "source"
	LabelStage  = "stage"
)

// SagaCollector implements ports.SagaMetrics with Prometheus counters.
type SagaCollector struct {
	rejected   *prometheus.CounterVec
	started    *prometheus.CounterVec
	completed  *prometheus.CounterVec
	rolledBack *prometheus.CounterVec
	stalled    *prometheus.CounterVec
}

// NewSagaCollector registers with reg, or the default registry when reg is nil.
func NewSagaCollector(reg prometheus.Registerer) *SagaCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &SagaCollector{
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAirdrop,
			Subsystem: subsystemClaims,
			Name:      "rejected_total",
			Help:      "claims rejected before a saga started",
		}, []string{LabelReason}),
		started: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAirdrop,
			Subsystem: subsystemSaga,
			Name:      "started_total",
			Help:      "payout sagas started",
		}, []string{LabelSource}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAirdrop,
			Subsystem: subsystemSaga,
			Name:      "completed_total",
			Help:      "payout sagas that transferred tokens",
		}, []string{LabelSource}),
		rolledBack: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAirdrop,
			Subsystem: subsystemSaga,
			Name:      "rolled_back_total",
			Help:      "payout sagas compensated, by failing step",
		}, []string{LabelStage}),
		stalled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceAirdrop,
			Subsystem: subsystemSaga,
			Name:      "stalled_total",
			Help:      "payout sagas left unresolved, by stage",
		}, []string{LabelStage}),
	}
}

func (c *SagaCollector) ClaimRejected(reason string) {
	c.rejected.With(prometheus.Labels{LabelReason: reason}).Inc()
}

func (c *SagaCollector) SagaStarted(source string) {
	c.started.With(prometheus.Labels{LabelSource: source}).Inc()
}

func (c *SagaCollector) SagaCompleted(source string) {
	c.completed.With(prometheus.Labels{LabelSource: source}).Inc()
}

func (c *SagaCollector) SagaRolledBack(stage string) {
	c.rolledBack.With(prometheus.Labels{LabelStage: stage}).Inc()
}

func (c *SagaCollector) SagaStalled(stage string) {
	c.stalled.With(prometheus.Labels{LabelStage: stage}).Inc()
}
