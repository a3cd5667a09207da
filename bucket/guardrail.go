package bucket

// Guardrails carries the size limits that keep a runaway configuration from
// consuming unbounded memory (§4.5 guardrail paragraph, §6 configuration
// guardrail knobs).
type Guardrails struct {
	// MaxDimensions is the hard limit on distinct whatKey values per
	// producer. Further first-seen keys beyond this are dropped, not an
	// error (§4.5).
	MaxDimensions int
	// SoftDimensions, when exceeded, is merely reported (a one-shot flag),
	// not enforced.
	SoftDimensions int
	// MaxMemoryKB / SoftMemoryKB mirror max_metrics_memory_kb /
	// soft_metrics_memory_kb from the configuration.
	MaxMemoryKB int
	SoftMemoryKB int
}

// Tracker accounts guardrail hits for a single producer's dimension set.
type Tracker struct {
	Guardrails
	seen       map[uint64]bool
	hardHit    bool
	softHit    bool
	droppedCnt int64
}

func NewTracker(g Guardrails) *Tracker {
	return &Tracker{Guardrails: g, seen: map[uint64]bool{}}
}

// Admit reports whether a first-seen dimension hash may be tracked. Once
// admitted, a key is remembered until Forget is called (dimension torn
// down). Returns false when the hard dimension cap would be exceeded by a
// genuinely new key; existing keys are always re-admitted.
func (t *Tracker) Admit(hash uint64) bool {
	if t.seen[hash] {
		return true
	}
	if t.MaxDimensions > 0 && len(t.seen) >= t.MaxDimensions {
		t.hardHit = true
		t.droppedCnt++
		return false
	}
	t.seen[hash] = true
	if t.SoftDimensions > 0 && len(t.seen) > t.SoftDimensions {
		t.softHit = true
	}
	return true
}

// Forget removes a dimension from the tracked set, e.g. when its producer
// state is destroyed (§3 Lifecycle: "destroyed when its last outstanding
// start has been stopped and its current bucket has been flushed empty").
func (t *Tracker) Forget(hash uint64) {
	delete(t.seen, hash)
}

// HitHard reports whether the hard dimension cap has ever been hit; this
// backs the one-shot guardrail_hit report bit (§7 category 2).
func (t *Tracker) HitHard() bool { return t.hardHit }

// HitSoft reports whether the soft cap has ever been crossed.
func (t *Tracker) HitSoft() bool { return t.softHit }

// Dropped returns the number of events dropped due to the hard cap.
func (t *Tracker) Dropped() int64 { return t.droppedCnt }

// ResetGuardrailFlags clears the one-shot flags after they have been
// reported once in a dump (§7: "a one-shot flag on the producer causes the
// next report to carry a guardrail_hit bit").
func (t *Tracker) ResetGuardrailFlags() {
	t.hardHit = false
	t.softHit = false
}

// Count returns the current number of tracked dimensions.
func (t *Tracker) Count() int { return len(t.seen) }
