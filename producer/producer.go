// Package producer implements the four metric producer kinds — Count,
// Duration (Sum/MaxSparse), Event, and Gauge — each with its own bucket
// state (§4.4-§4.7).
package producer

import (
	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

// MatchedEvent is delivered to a producer when its "what" matcher matched
// an atom, carrying the dimensional values extracted from it.
type MatchedEvent struct {
	TimestampNs int64
	// AtomTag identifies which atom matched, part of Event's dedup key
	// (§4.6 "(atom tag, field-value fingerprint)").
	AtomTag     int32
	What        dimension.Key
	StateValues dimension.Key
	// ValueIndices, when non-nil, names which entries of What are the
	// aggregation value fields (as opposed to slicing dimension fields),
	// per matcher.FilterDimensionAndValues.
	ValueIndices []int
}

// ConditionChange is delivered when the metric's linked condition's value
// changed for one or more dimensions.
type ConditionChange struct {
	TimestampNs int64
	Dimension   dimension.Key
	NewValue    bool
}

// StateChange is delivered when a linked slicing state's current value
// changed for a primary key relevant to this metric.
type StateChange struct {
	TimestampNs  int64
	PrimaryKey   dimension.Key
	NewValues    dimension.Key
}

// Producer is the common surface every metric kind implements. The manager
// holds producers as this interface and calls it for event, condition,
// state, flush, dump and current-value fan-out; it type-switches on the
// concrete value only for kind-specific calls (Duration's
// NoteStart/NoteStop/NoteStopAll, Gauge's PullNow).
type Producer interface {
	// MetricID identifies which configured metric this producer serves.
	MetricID() int64
	// OnMatchedEvent handles a new matched "what" event.
	OnMatchedEvent(ev MatchedEvent)
	// OnConditionChanged handles a condition transition relevant to this
	// producer's dimensions.
	OnConditionChanged(ev ConditionChange)
	// OnStateChanged handles a slicing-state value transition.
	OnStateChanged(ev StateChange)
	// FlushIfNeeded closes the current bucket into a past bucket if
	// nowNs has advanced past the current bucket's end, for every live
	// dimension.
	FlushIfNeeded(nowNs int64)
	// DumpAndClear returns a snapshot of past buckets by dimension key
	// and, if clear is true, removes them (report dump semantics).
	DumpAndClear(clear bool) map[uint64][]bucket.Past
	// CurrentValue reports the running value of hash's not-yet-closed
	// bucket as of nowNs — currentPartial(K) in §4.9's anomaly rule
	// "sum(past N buckets) + currentPartial(K) > threshold". ok is false
	// if hash has no live dimension.
	CurrentValue(hash uint64, nowNs int64) (value int64, ok bool)
	// GuardrailHit reports whether the hard-dimension guardrail has been
	// hit since the last report (one-shot flag, §7 category 2).
	GuardrailHit() bool
}

// baseState carries the bookkeeping every producer kind shares: the metric
// id and the bucket config.
type baseState struct {
	metricID int64
	cfg      bucket.Config
}

func (b baseState) MetricID() int64 { return b.metricID }
