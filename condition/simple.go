package condition

import "github.com/WingsOS/android-packages-modules-StatsD/dimension"

// SimpleTracker tracks a boolean per condition dimension, driven by start,
// stop, and optional stop-all matcher indices, with or without nesting
// semantics (§4.3 Simple).
type SimpleTracker struct {
	StartMatcher   int
	StopMatcher    int
	HasStop        bool
	StopAllMatcher int
	HasStopAll     bool
	Nesting        bool
	Sliced         bool

	// refcount per dimension when Nesting is set; boolean-only state
	// otherwise (0 == false, >0 == true).
	counts map[uint64]int
	keys   map[uint64]dimension.Key
	// globalCount backs the unsliced case (Sliced == false): the tracker
	// still keys per-dimension internally, but exposes a single boolean.
	globalCount int
}

func (s *SimpleTracker) ensure() {
	if s.counts == nil {
		s.counts = map[uint64]int{}
		s.keys = map[uint64]dimension.Key{}
	}
}

// Evaluate applies matched-matcher results for one atom against a single
// dimension key, returning the changed set (at most one entry, since a
// simple condition observes one atom at a time).
func (s *SimpleTracker) Evaluate(dim dimension.Key, matchedStart, matchedStop, matchedStopAll bool) ChangeSet {
	s.ensure()
	h := dim.Hash()
	was := s.value(h)

	if matchedStopAll {
		delete(s.counts, h)
		delete(s.keys, h)
		if was {
			s.globalCount = max0(s.globalCount - 1)
			return ChangeSet{FalseNow: []dimension.Key{dim}}
		}
		return ChangeSet{}
	}

	if matchedStart {
		s.keys[h] = dim
		if s.Nesting {
			s.counts[h]++
		} else {
			s.counts[h] = 1
		}
		if !was {
			s.globalCount++
			return ChangeSet{TrueNow: []dimension.Key{dim}}
		}
		return ChangeSet{}
	}

	if s.HasStop && matchedStop {
		if s.Nesting {
			if c := s.counts[h]; c > 0 {
				s.counts[h] = c - 1
			}
		} else {
			s.counts[h] = 0
		}
		nowVal := s.counts[h] > 0
		if was && !nowVal {
			delete(s.keys, h)
			s.globalCount = max0(s.globalCount - 1)
			return ChangeSet{FalseNow: []dimension.Key{dim}}
		}
	}

	return ChangeSet{}
}

func max0(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func (s *SimpleTracker) value(h uint64) bool {
	return s.counts[h] > 0
}

// keyFor returns the dimension key backing hash h, if this tracker has
// observed it.
func (s *SimpleTracker) keyFor(h uint64) (dimension.Key, bool) {
	k, ok := s.keys[h]
	return k, ok
}

func (s *SimpleTracker) current() map[uint64]bool {
	out := map[uint64]bool{}
	for h, c := range s.counts {
		if c > 0 {
			out[h] = true
		}
	}
	return out
}

func (s *SimpleTracker) unslicedValue() bool {
	return s.globalCount > 0
}
