package manager

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsRegistersAllCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewStats(reg)

	s.AtomsProcessed.WithLabelValues("k").Inc()
	s.AtomsDropped.WithLabelValues("k", "reason").Inc()
	s.GuardrailHits.WithLabelValues("k", "1").Inc()
	s.MatcherMatches.WithLabelValues("k").Inc()
	s.AnomaliesFired.WithLabelValues("k", "1").Inc()
	s.PullFailures.WithLabelValues("k", "1").Inc()
	s.ReportsDumped.WithLabelValues("k").Inc()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 7, "every counter must be registered against reg exactly once")
}

func TestTwoStatsInstancesUseIndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()

	s1 := NewStats(reg1)
	s2 := NewStats(reg2)
	s1.AtomsProcessed.WithLabelValues("k").Inc()

	mfs2, err := reg2.Gather()
	require.NoError(t, err)
	assert.Empty(t, mfs2, "a fresh registry must not see another instance's counter increments")
	_ = s2
}
