package condition

import "github.com/WingsOS/android-packages-modules-StatsD/dimension"

// BoolOp mirrors matcher.BoolOp for condition combinators.
type BoolOp int

const (
	OpAnd BoolOp = iota
	OpOr
	OpNot
)

// CombinationalTracker combines child condition trackers with AND/OR/NOT.
// It supports "sliced" children: child conditions that hold one boolean per
// dimension (§4.3 Combinational).
type CombinationalTracker struct {
	Op       BoolOp
	Children []*Tracker

	// SingleSlicedLink, when set, names the index of the one child that is
	// sliced and fully constrains this predicate's dimension. When set and
	// every dimension of that link is fully constrained by the metric's
	// Metric2Condition, callers can use LastChangedSliced directly instead
	// of a full re-scan (the "sliced condition change opt" of §4.3).
	SingleSlicedLink int
	HasSingleLink    bool

	cachedGlobal map[uint64]bool
	cachedKeys   map[uint64]dimension.Key
}

func (c *CombinationalTracker) isSliced() bool {
	for _, ch := range c.Children {
		if ch.IsSliced() {
			return true
		}
	}
	return false
}

// Evaluate re-evaluates this combinator's value across every dimension
// touched by any sliced child, returning the aggregate changed set.
// Only conditions whose inputs matched should be re-evaluated by the
// caller; this method itself is pure given the children's current state.
func (c *CombinationalTracker) Evaluate() ChangeSet {
	dims := map[uint64]dimension.Key{}
	for _, ch := range c.Children {
		if !ch.IsSliced() {
			continue
		}
		cur := ch.Current()
		for h := range cur {
			if k, ok := ch.KeyFor(h); ok {
				dims[h] = k
			}
		}
	}
	// A dimension that was true last time but that no child still reports
	// is re-evaluated too, so its falling edge reaches FalseNow.
	for h, old := range c.cachedGlobal {
		if _, ok := dims[h]; !ok && old {
			dims[h] = c.cachedKeys[h]
		}
	}

	changes := ChangeSet{}
	newGlobal := map[uint64]bool{}
	for h := range dims {
		val := c.evaluateAt(h)
		newGlobal[h] = val
		old, existed := c.cachedGlobal[h]
		if val && (!existed || !old) {
			changes.TrueNow = append(changes.TrueNow, dims[h])
		} else if !val && existed && old {
			changes.FalseNow = append(changes.FalseNow, dims[h])
		}
	}
	c.cachedGlobal = newGlobal
	c.cachedKeys = dims
	return changes
}

func (c *CombinationalTracker) evaluateAt(h uint64) bool {
	switch c.Op {
	case OpAnd:
		for _, ch := range c.Children {
			if !c.childValueAt(ch, h) {
				return false
			}
		}
		return true
	case OpOr:
		for _, ch := range c.Children {
			if c.childValueAt(ch, h) {
				return true
			}
		}
		return false
	case OpNot:
		if len(c.Children) != 1 {
			return false
		}
		return !c.childValueAt(c.Children[0], h)
	default:
		return false
	}
}

func (c *CombinationalTracker) childValueAt(ch *Tracker, h uint64) bool {
	if ch.IsSliced() {
		cur := ch.Current()
		return cur[h]
	}
	return ch.UnslicedValue()
}

func (c *CombinationalTracker) current() map[uint64]bool {
	return c.cachedGlobal
}

// keyFor searches sliced children for the dimension key backing hash h.
func (c *CombinationalTracker) keyFor(h uint64) (dimension.Key, bool) {
	for _, ch := range c.Children {
		if !ch.IsSliced() {
			continue
		}
		if k, ok := ch.KeyFor(h); ok {
			return k, true
		}
	}
	return dimension.Key{}, false
}

func (c *CombinationalTracker) unslicedValue() bool {
	switch c.Op {
	case OpAnd:
		for _, ch := range c.Children {
			if !ch.UnslicedValue() {
				return false
			}
		}
		return true
	case OpOr:
		for _, ch := range c.Children {
			if ch.UnslicedValue() {
				return true
			}
		}
		return false
	case OpNot:
		if len(c.Children) != 1 {
			return false
		}
		return !c.Children[0].UnslicedValue()
	default:
		return false
	}
}

// LastChangedSliced exposes the single sliced child's own last changed set
// directly, avoiding a full re-scan, when HasSingleLink is set and every
// dimension of that link is fully constrained by the metric's
// Metric2Condition (the "sliced condition change opt" used by the duration
// metric producer, §4.3).
func (c *CombinationalTracker) LastChangedSliced(childChanges ChangeSet) (ChangeSet, bool) {
	if !c.HasSingleLink {
		return ChangeSet{}, false
	}
	return childChanges, true
}
