// Package condition implements simple and combinational condition trackers
// (§4.3): boolean predicates over matcher results, with dimension-level
// change tracking used to drive downstream metric notifications.
package condition

import "github.com/WingsOS/android-packages-modules-StatsD/dimension"

// Kind tags the Tracker union member.
type Kind int

const (
	KindSimple Kind = iota
	KindCombinational
)

// ChangeSet is the (trueNow, falseNow) pair of dimensions whose condition
// value changed during the most recent Evaluate call.
type ChangeSet struct {
	TrueNow  []dimension.Key
	FalseNow []dimension.Key
}

// Tracker is one configured condition: Simple or Combinational.
type Tracker struct {
	Kind          Kind
	Simple        *SimpleTracker
	Combinational *CombinationalTracker
}

// Current returns the current boolean per dimension the tracker knows
// about.
func (t *Tracker) Current() map[uint64]bool {
	if t.Kind == KindSimple {
		return t.Simple.current()
	}
	return t.Combinational.current()
}

// IsSliced reports whether the tracker maintains one boolean per dimension
// rather than a single global boolean.
func (t *Tracker) IsSliced() bool {
	if t.Kind == KindSimple {
		return t.Simple.Sliced
	}
	return t.Combinational.isSliced()
}

// KeyFor returns the dimension key backing hash h, if known to this
// tracker (searching sliced children for a Combinational tracker).
func (t *Tracker) KeyFor(h uint64) (dimension.Key, bool) {
	if t.Kind == KindSimple {
		return t.Simple.keyFor(h)
	}
	return t.Combinational.keyFor(h)
}

// UnslicedValue returns the current value of the unsliced portion of the
// expression, used by the sliced-condition-change optimization in §4.3.
//
// DESIGN NOTE (open question, preserved per spec §9): when the condition is
// not sliced, this returns `mCondition == true` directly without a distinct
// "unknown" state — the original C++ never fully resolved what should
// happen when the condition has not yet observed any event. We keep that
// behavior rather than inventing a resolution.
func (t *Tracker) UnslicedValue() bool {
	if t.Kind == KindSimple {
		return t.Simple.unslicedValue()
	}
	return t.Combinational.unslicedValue()
}
