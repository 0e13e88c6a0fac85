package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSagaCollectorCountsByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewSagaCollector(reg)

	collector.ClaimRejected("proof_invalid")
	collector.ClaimRejected("proof_invalid")
	collector.SagaStarted("merkle")
	collector.SagaCompleted("merkle")
	collector.SagaRolledBack("transfer")
	collector.SagaStalled("registered_awaiting_transfer")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.rejected.WithLabelValues("proof_invalid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.started.WithLabelValues("merkle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.completed.WithLabelValues("merkle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.rolledBack.WithLabelValues("transfer")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.stalled.WithLabelValues("registered_awaiting_transfer")))

	count, err := testutil.GatherAndCount(reg, "airdrop_saga_rolled_back_total", "airdrop_claims_rejected_total")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}
