package producer

import (
	"math/rand"
	"sync"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

// eventDim is the live state for one slicing-state dimension under an Event
// producer: the set of distinct atom field-value fingerprints seen this
// bucket, each with the list of timestamps it occurred at.
type eventDim struct {
	stateValues dimension.Key
	bucketNum   bucket.Num
	bucketStart int64
	seen        map[uint64][]int64 // fingerprint hash -> timestamps
	past        []bucket.Past
}

// Event captures matching atoms verbatim, deduplicated by (atom tag,
// field-value fingerprint); an optional sampling_percentage applies a
// per-event Bernoulli filter before dedup (§4.6).
type Event struct {
	baseState
	guardrails *bucket.Tracker

	// SamplingPercentage, in [0, 100], is the per-event Bernoulli filter
	// applied before dedup. Zero (default) admits every event.
	SamplingPercentage int
	Rand               *rand.Rand

	mu   sync.Mutex
	dims map[uint64]*eventDim
}

func NewEvent(metricID int64, cfg bucket.Config, g bucket.Guardrails) *Event {
	return &Event{
		baseState:  baseState{metricID: metricID, cfg: cfg},
		guardrails: bucket.NewTracker(g),
		Rand:       rand.New(rand.NewSource(1)),
		dims:       map[uint64]*eventDim{},
	}
}

// admittedBySampling applies the per-event Bernoulli filter. A percentage of
// zero (unset) or at least 100 disables filtering entirely.
func (e *Event) admittedBySampling() bool {
	if e.SamplingPercentage <= 0 || e.SamplingPercentage >= 100 {
		return true
	}
	return e.Rand.Intn(100) < e.SamplingPercentage
}

// OnMatchedEvent records an atom's field-value fingerprint under its
// slicing-state dimension, deduplicating identical atoms and retaining only
// the timestamps at which each unique fingerprint occurred (§4.6).
func (e *Event) OnMatchedEvent(ev MatchedEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.admittedBySampling() {
		return
	}

	h := ev.StateValues.Hash()
	d, ok := e.dims[h]
	if !ok {
		if !e.guardrails.Admit(h) {
			return
		}
		num := e.cfg.NumFor(ev.TimestampNs)
		d = &eventDim{stateValues: ev.StateValues, bucketNum: num, bucketStart: e.cfg.StartNs(num), seen: map[uint64][]int64{}}
		e.dims[h] = d
	}
	e.rolloverLocked(d, ev.TimestampNs)

	fp := dimension.AtomKey{AtomTag: ev.AtomTag, Fields: ev.What}.Hash()
	d.seen[fp] = append(d.seen[fp], ev.TimestampNs)
}

func (e *Event) rolloverLocked(d *eventDim, nowNs int64) {
	newNum := e.cfg.NumFor(nowNs)
	for d.bucketNum < newNum {
		end := e.cfg.EndNs(d.bucketNum)
		if len(d.seen) > 0 {
			d.past = append(d.past, bucket.NewPast(e.cfg, d.bucketNum, d.bucketStart, end, float64(len(d.seen))))
		}
		d.bucketNum++
		d.bucketStart = e.cfg.StartNs(d.bucketNum)
		d.seen = map[uint64][]int64{}
	}
}

func (e *Event) OnConditionChanged(ConditionChange) {}
func (e *Event) OnStateChanged(StateChange)         {}

func (e *Event) FlushIfNeeded(nowNs int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for h, d := range e.dims {
		e.rolloverLocked(d, nowNs)
		if len(d.seen) == 0 && len(d.past) == 0 {
			delete(e.dims, h)
			e.guardrails.Forget(h)
		}
	}
}

func (e *Event) DumpAndClear(clear bool) map[uint64][]bucket.Past {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[uint64][]bucket.Past{}
	for h, d := range e.dims {
		if len(d.past) == 0 {
			continue
		}
		cp := make([]bucket.Past, len(d.past))
		copy(cp, d.past)
		out[h] = cp
		if clear {
			d.past = nil
			if len(d.seen) == 0 {
				delete(e.dims, h)
				e.guardrails.Forget(h)
			}
		}
	}
	return out
}

func (e *Event) CurrentValue(hash uint64, nowNs int64) (int64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.dims[hash]
	if !ok {
		return 0, false
	}
	e.rolloverLocked(d, nowNs)
	return int64(len(d.seen)), true
}

func (e *Event) GuardrailHit() bool {
	hit := e.guardrails.HitHard()
	e.guardrails.ResetGuardrailFlags()
	return hit
}
