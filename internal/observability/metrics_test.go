package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RequestsTotal.WithLabelValues(OutcomeCacheHit).Inc()
	m.GenerationCallsTotal.WithLabelValues("success").Inc()
	m.QualityRetriesTotal.Inc()
	m.QualityGateFailuresTotal.Inc()
	m.CacheConflictsTotal.Inc()
	m.FeedbackTotal.WithLabelValues("accepted", "success").Inc()
	m.EnhanceDurationSeconds.Observe(0.2)
	m.QualityScore.Observe(0.6)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 8)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues(OutcomeCacheHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QualityRetriesTotal))
}

func TestNewMetrics_IsolatedRegistries(t *testing.T) {
	a := NewNopMetrics()
	b := NewNopMetrics()

	a.CacheConflictsTotal.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(a.CacheConflictsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.CacheConflictsTotal))
}

func TestNewMetrics_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
