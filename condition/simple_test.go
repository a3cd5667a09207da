package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

func dimFor(s string) dimension.Key {
	return dimension.Key{Values: []field.Value{{Kind: field.KindString, Str: s}}}
}

func TestSimpleTrackerStartStop(t *testing.T) {
	st := &SimpleTracker{HasStop: true, StopMatcher: 1}
	d := dimFor("app1")

	changes := st.Evaluate(d, true, false, false)
	assert.Equal(t, []dimension.Key{d}, changes.TrueNow)

	changes = st.Evaluate(d, false, true, false)
	assert.Equal(t, []dimension.Key{d}, changes.FalseNow)
}

func TestSimpleTrackerNestingRequiresBalancedStops(t *testing.T) {
	st := &SimpleTracker{Nesting: true, HasStop: true, StopMatcher: 1}
	d := dimFor("app1")

	st.Evaluate(d, true, false, false)
	changes := st.Evaluate(d, true, false, false) // second nested start
	assert.Empty(t, changes.TrueNow, "already-true dimension does not re-fire")

	changes = st.Evaluate(d, false, true, false) // first stop only balances one start
	assert.Empty(t, changes.FalseNow, "one stop should not close a doubly-nested start")

	changes = st.Evaluate(d, false, true, false)
	assert.Equal(t, []dimension.Key{d}, changes.FalseNow, "second stop should finally close it")
}

func TestSimpleTrackerStopAllForcesClose(t *testing.T) {
	st := &SimpleTracker{Nesting: true, HasStopAll: true, StopAllMatcher: 2}
	d := dimFor("app1")
	st.Evaluate(d, true, false, false)
	st.Evaluate(d, true, false, false)

	changes := st.Evaluate(d, false, false, true)
	assert.Equal(t, []dimension.Key{d}, changes.FalseNow)

	// A later stop-all on an already-clear dimension is a no-op.
	changes = st.Evaluate(d, false, false, true)
	assert.Empty(t, changes.FalseNow)
}

func TestSimpleTrackerKeyForResolvesObservedDimension(t *testing.T) {
	st := &SimpleTracker{}
	d := dimFor("app1")
	st.Evaluate(d, true, false, false)

	got, ok := st.keyFor(d.Hash())
	assert.True(t, ok)
	assert.True(t, got.Equal(d))

	_, ok = st.keyFor(dimFor("never-seen").Hash())
	assert.False(t, ok)
}
