package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_RecordApply(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordApply(OutcomeApplied, 0.002)
	p.RecordApply(OutcomeApplied, 0.003)
	p.RecordApply(OutcomeNoop, 0.0001)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.applyTotal.WithLabelValues(OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.applyTotal.WithLabelValues(OutcomeNoop)))
	assert.Equal(t, 1, testutil.CollectAndCount(p.applyDuration))
}

func TestPrometheus_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")

	p.RecordRenormalization()
	p.RecordDistributionCreated()
	p.RecordDistributionCreated()
	p.RecordBucketsMoved(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.renormalized))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.createdTotal))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "audiencemix_allocator_renormalizations_total")
	assert.Contains(t, names, "audiencemix_store_distributions_created_total")
	assert.Contains(t, names, "audiencemix_allocator_buckets_moved")
}

func TestPrometheus_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "once")

	require.NotPanics(t, func() {
		p.RecordRenormalization()
		p.RecordRenormalization()
		p.RecordApply(OutcomeFailed, 0)
	})
}

func TestNop(t *testing.T) {
	var r Recorder = NewNop()

	require.NotPanics(t, func() {
		r.RecordApply(OutcomeApplied, 1)
		r.RecordRenormalization()
		r.RecordBucketsMoved(-1)
		r.RecordDistributionCreated()
	})
}
