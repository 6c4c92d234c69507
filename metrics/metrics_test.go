package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBundlerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBundlerMetrics(reg)

	m.IncRebuild("ready")
	m.IncRebuild("ready")
	m.IncSubmission("succeeded")
	m.IncRelayPoll("Pending")
	m.ObserveSubmissionLatency(3 * time.Second)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.numRebuild.WithLabelValues("ready")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.numSubmission.WithLabelValues("succeeded")))
	// the estimate vec has no series until a label is used
	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestEnsureMetrics(t *testing.T) {
	assert.Equal(t, NoopMetrics{}, EnsureMetrics(nil))

	m := NewBundlerMetrics(prometheus.NewRegistry())
	assert.Same(t, m, EnsureMetrics(m))
}
