package anomaly

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

func TestRPCAScorerNotOKUntilWindowFills(t *testing.T) {
	s := NewRPCAScorer(4, 8, true)
	for i := 0; i < 7; i++ {
		_, ok := s.Observe(1, float64(i))
		assert.False(t, ok, "window has not yet accumulated MinorFrequency points")
	}
	_, ok := s.Observe(1, 100)
	assert.True(t, ok, "window filled on the 8th observation")
}

func TestRPCAScorerKeepsSeriesSeparateByHash(t *testing.T) {
	s := NewRPCAScorer(4, 8, true)
	for i := 0; i < 7; i++ {
		s.Observe(1, 10)
		_, ok := s.Observe(2, 999999)
		assert.False(t, ok)
	}
	// hash 1's window is flat; hash 2's window is not yet a full 8 either,
	// each series must fill independently rather than share one window.
	_, ok1 := s.Observe(1, 10)
	_, ok2 := s.Observe(2, 999999)
	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestRPCAScorerZeroFrequenciesNeverReady(t *testing.T) {
	s := NewRPCAScorer(0, 0, false)
	_, ok := s.Observe(1, 42)
	assert.False(t, ok)
}

func TestTrackerAttachesScoreOnDeclare(t *testing.T) {
	tr := NewTracker(2, 10, 60)
	tr.Scorer = NewRPCAScorer(4, 4, true)

	var gotOK []bool
	tr.Subscribe(func(key dimension.Key, metricValue int64, timestampNs int64, score Score, scoreOK bool) {
		gotOK = append(gotOK, scoreOK)
	})

	k := condKey("app1")
	// First three declarations warm the scorer's window (MinorFrequency=4);
	// the refractory period is 60s so bump the wall clock each time.
	assert.True(t, tr.DetectAndDeclare(1000, 100, 1, k, 20))
	assert.True(t, tr.DetectAndDeclare(2000, 200, 2, k, 20))
	assert.True(t, tr.DetectAndDeclare(3000, 300, 3, k, 20))
	assert.True(t, tr.DetectAndDeclare(4000, 400, 4, k, 20))

	require.Len(t, gotOK, 4)
	assert.False(t, gotOK[0])
	assert.False(t, gotOK[1])
	assert.False(t, gotOK[2])
	assert.True(t, gotOK[3], "scorer's window has filled by the 4th declaration")
}
