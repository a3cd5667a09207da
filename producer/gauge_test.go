package producer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func intWhat(i int32) dimension.Key {
	return dimension.Key{Values: []field.Value{{Kind: field.KindInt32, Int32: i}}}
}

func TestGaugeRandomOneSampleKeepsFirstOnly(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = RandomOneSample
	sv := strKey("dim")

	first := intWhat(10)
	second := intWhat(20)
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 10, What: first, StateValues: sv, ValueIndices: []int{0}})
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 20, What: second, StateValues: sv, ValueIndices: []int{0}})
	g.FlushIfNeeded(1000)

	past := g.DumpAndClear(true)
	mk := dimension.MetricKey{StateValues: sv}
	require.Len(t, past[mk.Hash()], 1)
	assert.Equal(t, 10.0, past[mk.Hash()][0].Value, "only the first sample in the bucket should be kept")
}

func TestGaugeFirstNSamplesKeepsUpToN(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = FirstNSamples
	g.N = 2
	sv := strKey("dim")

	for i := int32(1); i <= 3; i++ {
		g.OnMatchedEvent(MatchedEvent{TimestampNs: int64(i), What: intWhat(i), StateValues: sv, ValueIndices: []int{0}})
	}
	g.FlushIfNeeded(1000)
	past := g.DumpAndClear(true)
	mk := dimension.MetricKey{StateValues: sv}
	require.Len(t, past[mk.Hash()], 1)
	// N=2 caps admission at the first two samples (1, 2); sample 3 is
	// dropped, but both admitted samples must survive into the bucket.
	assert.Equal(t, []float64{1.0, 2.0}, past[mk.Hash()][0].Values)
	assert.Equal(t, 2.0, past[mk.Hash()][0].Value, "Value mirrors the last admitted sample for single-value consumers")
}

func TestGaugeFirstNSamplesUnboundedKeepsAllAdmitted(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = FirstNSamples
	sv := strKey("dim")

	for i := int32(1); i <= 4; i++ {
		g.OnMatchedEvent(MatchedEvent{TimestampNs: int64(i), What: intWhat(i), StateValues: sv, ValueIndices: []int{0}})
	}
	g.FlushIfNeeded(1000)
	past := g.DumpAndClear(true)
	mk := dimension.MetricKey{StateValues: sv}
	require.Len(t, past[mk.Hash()], 1)
	assert.Equal(t, []float64{1.0, 2.0, 3.0, 4.0}, past[mk.Hash()][0].Values, "N<=0 means unbounded: all admitted samples survive")
}

func TestGaugeCurrentValueCountsAdmittedSamples(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = FirstNSamples
	g.N = 5
	sv := strKey("dim")
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 1, What: intWhat(1), StateValues: sv, ValueIndices: []int{0}})
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 2, What: intWhat(2), StateValues: sv, ValueIndices: []int{0}})

	mk := dimension.MetricKey{StateValues: sv}
	v, ok := g.CurrentValue(mk.Hash(), 500)
	require.True(t, ok)
	assert.Equal(t, int64(2), v)
}

type stubPuller struct {
	atoms []field.Atom
}

func (p stubPuller) Pull(ctx context.Context, atomTag int32, deadlineNs int64) ([]field.Atom, error) {
	return p.atoms, nil
}

func TestGaugePulledConditionRisingEdgeTriggersPull(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = RandomOneSample
	g.Pulled = true
	g.Puller = stubPuller{atoms: []field.Atom{{Tag: 5, Values: []field.Value{{Kind: field.KindInt32, Int32: 77}}}}}

	sv := strKey("dim")
	g.OnConditionChanged(ConditionChange{TimestampNs: 10, Dimension: sv, NewValue: true})

	g.FlushIfNeeded(1000)
	past := g.DumpAndClear(true)
	mk := dimension.MetricKey{StateValues: sv}
	require.Len(t, past[mk.Hash()], 1)
	assert.Equal(t, 77.0, past[mk.Hash()][0].Value)
}

func TestGaugeConditionChangeToTrueOnlyCapturesRisingEdge(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = ConditionChangeToTrue
	sv := strKey("dim")

	// Falling edge should not capture.
	g.OnConditionChanged(ConditionChange{TimestampNs: 5, Dimension: sv, NewValue: false})
	// OnMatchedEvent records no push-sampled samples in this mode, so
	// verify no crash and no premature past bucket.
	g.FlushIfNeeded(1000)
	past := g.DumpAndClear(true)
	assert.Empty(t, past)
}

func TestGaugeMaxAtomsPerDimCapsRegardlessOfMode(t *testing.T) {
	g := NewGauge(1, bucket.Config{BucketSizeNs: 1000}, bucket.Guardrails{})
	g.Mode = FirstNSamples
	g.N = 100
	g.MaxAtomsPerDim = 1
	sv := strKey("dim")
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 1, What: intWhat(1), StateValues: sv, ValueIndices: []int{0}})
	g.OnMatchedEvent(MatchedEvent{TimestampNs: 2, What: intWhat(2), StateValues: sv, ValueIndices: []int{0}})
	g.FlushIfNeeded(1000)
	past := g.DumpAndClear(true)
	mk := dimension.MetricKey{StateValues: sv}
	require.Len(t, past[mk.Hash()], 1)
	assert.Equal(t, 1.0, past[mk.Hash()][0].Value)
}
