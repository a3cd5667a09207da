package producer

import (
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
)

// DurationAggregation selects the two duration flavors of §4.5.
type DurationAggregation int

const (
	// Sum uses an "oring tracker": multiple concurrent starts overlap;
	// total = wall time during which >=1 start is live and the condition
	// holds.
	Sum DurationAggregation = iota
	// MaxSparse uses a "max tracker": bucket value = longest single run
	// completed in the bucket.
	MaxSparse
)

// durationDim is the live state for one dimension under a Duration
// producer.
type durationDim struct {
	key dimension.MetricKey

	// bucket cursor
	bucketNum   bucket.Num
	bucketStart int64
	accum       float64 // Sum: ns accumulated so far in current bucket
	maxInBucket float64 // MaxSparse: longest completed run in current bucket
	past        []bucket.Past

	// Sum (oring) state
	refCount    int
	conditionOn bool
	activeSince int64
	activeIsSet bool

	// MaxSparse state: at most one live run at a time.
	runStart int64
	runIsSet bool
}

// Duration tracks how long a condition holds per dimension (§4.5).
type Duration struct {
	baseState
	Aggregation DurationAggregation
	guardrails  *bucket.Tracker

	// FastPathDimensions is not read by this producer: OnConditionChanged
	// already looks up only the one dimension each ConditionChange names,
	// without scanning every live dimension.
	FastPathDimensions map[uint64]bool

	mu   sync.Mutex
	dims map[uint64]*durationDim
}

func NewDuration(metricID int64, cfg bucket.Config, agg DurationAggregation, g bucket.Guardrails) *Duration {
	return &Duration{
		baseState:   baseState{metricID: metricID, cfg: cfg},
		Aggregation: agg,
		guardrails:  bucket.NewTracker(g),
		dims:        map[uint64]*durationDim{},
	}
}

func (d *Duration) dimFor(mk dimension.MetricKey, nowNs int64) *durationDim {
	h := mk.Hash()
	dd, ok := d.dims[h]
	if !ok {
		if !d.guardrails.Admit(h) {
			return nil
		}
		num := d.cfg.NumFor(nowNs)
		dd = &durationDim{key: mk, bucketNum: num, bucketStart: d.cfg.StartNs(num), conditionOn: true}
		d.dims[h] = dd
	}
	return dd
}

// NoteStart handles a "start" matched event for dim at timestampNs. Start
// always increases refcount (Sum) or opens a new run (MaxSparse).
func (d *Duration) NoteStart(mk dimension.MetricKey, timestampNs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dd := d.dimFor(mk, timestampNs)
	if dd == nil {
		return
	}
	switch d.Aggregation {
	case Sum:
		d.settleLocked(dd, timestampNs)
		dd.refCount++
		d.maybeActivateLocked(dd, timestampNs)
	case MaxSparse:
		// A second start while a run is already live does not extend or
		// restart it; the live run's eventual settle carries it through
		// any boundaries crossed in between.
		if !dd.runIsSet {
			d.rollLocked(dd, timestampNs)
			dd.runStart = timestampNs
			dd.runIsSet = true
		}
	}
}

// NoteStop handles a "stop(lastStart)" matched event. Zero-duration events
// (start and stop at the same ns) must not produce a past bucket (§8).
func (d *Duration) NoteStop(mk dimension.MetricKey, timestampNs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h := mk.Hash()
	dd, ok := d.dims[h]
	if !ok {
		return
	}
	switch d.Aggregation {
	case Sum:
		d.settleLocked(dd, timestampNs)
		if dd.refCount > 0 {
			dd.refCount--
		}
		d.maybeDeactivateLocked(dd, timestampNs)
	case MaxSparse:
		if dd.runIsSet {
			d.settleRunLocked(dd, timestampNs)
			dd.runIsSet = false
		} else {
			d.rollLocked(dd, timestampNs)
		}
	}
	d.pruneIfIdleLocked(h, dd)
}

// NoteStopAll forces all refcounts to zero at the event timestamp (a
// stop-all event).
func (d *Duration) NoteStopAll(timestampNs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, dd := range d.dims {
		if d.Aggregation == Sum {
			d.settleLocked(dd, timestampNs)
			dd.refCount = 0
			d.maybeDeactivateLocked(dd, timestampNs)
		} else if dd.runIsSet {
			d.settleRunLocked(dd, timestampNs)
			dd.runIsSet = false
		} else {
			d.rollLocked(dd, timestampNs)
		}
		d.pruneIfIdleLocked(h, dd)
	}
}

// OnConditionChanged pauses/resumes wall-clock accumulation: a
// condition-true interval contributes to the bucket's duration only on the
// portion of the interval overlapping the bucket, and only while the
// condition holds (§4.5 lifecycle diagram: running --condition->false-->
// paused).
func (d *Duration) OnConditionChanged(ev ConditionChange) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The condition dimension is matched against the "what" half of the
	// metric key that dims is keyed by.
	h := dimension.MetricKey{What: ev.Dimension}.Hash()
	dd, ok := d.dims[h]
	if !ok {
		return
	}
	if d.Aggregation != Sum {
		// MaxSparse's run length is start/stop-driven only; condition
		// pausing does not apply to a single completed run in the
		// original semantics we're mirroring here.
		return
	}
	d.settleLocked(dd, ev.TimestampNs)
	dd.conditionOn = ev.NewValue
	if dd.conditionOn {
		d.maybeActivateLocked(dd, ev.TimestampNs)
	} else {
		d.maybeDeactivateLocked(dd, ev.TimestampNs)
	}
}

func (d *Duration) OnMatchedEvent(MatchedEvent) {}
func (d *Duration) OnStateChanged(StateChange)  {}

func (d *Duration) maybeActivateLocked(dd *durationDim, nowNs int64) {
	if dd.refCount > 0 && dd.conditionOn && !dd.activeIsSet {
		dd.activeSince = nowNs
		dd.activeIsSet = true
	}
}

func (d *Duration) maybeDeactivateLocked(dd *durationDim, nowNs int64) {
	if (dd.refCount == 0 || !dd.conditionOn) && dd.activeIsSet {
		dd.activeIsSet = false
	}
}

// settleLocked accumulates active wall time up to nowNs into the current
// bucket, splitting across bucket boundaries as needed, then advances the
// "since" pointer to nowNs so the next settle call only adds the delta.
func (d *Duration) settleLocked(dd *durationDim, nowNs int64) {
	if !dd.activeIsSet || nowNs <= dd.activeSince {
		d.rollLocked(dd, nowNs)
		return
	}
	from := dd.activeSince
	to := nowNs
	for from < to {
		end := d.cfg.EndNs(dd.bucketNum)
		segEnd := to
		if end < segEnd {
			segEnd = end
		}
		dd.accum += float64(segEnd - from)
		if segEnd == end && end < to {
			d.closeBucketLocked(dd)
		}
		from = segEnd
	}
	dd.activeSince = nowNs
	d.rollLocked(dd, nowNs)
}

// settleRunLocked folds a live MaxSparse run's contribution up to nowNs into
// maxInBucket, splitting the run at each bucket boundary it crosses:
// crossing a boundary closes the sub-run's length as a candidate max for the
// bucket it belongs to and opens a fresh sub-run at the boundary, so a run
// that straddles a rollover contributes its own longest-completed-segment to
// each bucket it touches (§8: interval-straddles-rollover case applies to
// both aggregation flavors). The run itself is not ended; runStart is left
// at nowNs so a later settle only adds the delta.
func (d *Duration) settleRunLocked(dd *durationDim, nowNs int64) {
	for {
		end := d.cfg.EndNs(dd.bucketNum)
		if nowNs <= end {
			seg := float64(nowNs - dd.runStart)
			if seg > dd.maxInBucket {
				dd.maxInBucket = seg
			}
			dd.runStart = nowNs
			return
		}
		seg := float64(end - dd.runStart)
		if seg > dd.maxInBucket {
			dd.maxInBucket = seg
		}
		d.closeBucketLocked(dd)
		dd.runStart = end
	}
}

// rollLocked advances bucketNum/bucketStart to cover nowNs when the
// dimension had no active interval to settle, closing any now-elapsed
// buckets (with zero-or-accumulated value) into past.
func (d *Duration) rollLocked(dd *durationDim, nowNs int64) {
	target := d.cfg.NumFor(nowNs)
	for dd.bucketNum < target {
		d.closeBucketLocked(dd)
	}
}

func (d *Duration) closeBucketLocked(dd *durationDim) {
	end := d.cfg.EndNs(dd.bucketNum)
	switch d.Aggregation {
	case Sum:
		if dd.accum > 0 {
			p := bucket.NewPast(d.cfg, dd.bucketNum, dd.bucketStart, end, dd.accum)
			p.HasCondition = true
			p.ConditionNs = int64(dd.accum)
			dd.past = append(dd.past, p)
		}
		dd.accum = 0
	case MaxSparse:
		if dd.maxInBucket > 0 {
			dd.past = append(dd.past, bucket.NewPast(d.cfg, dd.bucketNum, dd.bucketStart, end, dd.maxInBucket))
		}
		dd.maxInBucket = 0
	}
	dd.bucketNum++
	dd.bucketStart = end
}

func (d *Duration) pruneIfIdleLocked(h uint64, dd *durationDim) {
	pendingCurrentBucket := dd.accum > 0 || dd.maxInBucket > 0
	idle := dd.refCount == 0 && !dd.runIsSet && len(dd.past) == 0 && !pendingCurrentBucket
	if idle {
		delete(d.dims, h)
		d.guardrails.Forget(h)
	}
}

func (d *Duration) FlushIfNeeded(nowNs int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for h, dd := range d.dims {
		switch {
		case d.Aggregation == Sum && dd.activeIsSet:
			d.settleLocked(dd, nowNs)
		case d.Aggregation == MaxSparse && dd.runIsSet:
			d.settleRunLocked(dd, nowNs)
		default:
			d.rollLocked(dd, nowNs)
		}
		d.pruneIfIdleLocked(h, dd)
	}
}

func (d *Duration) DumpAndClear(clear bool) map[uint64][]bucket.Past {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := map[uint64][]bucket.Past{}
	for h, dd := range d.dims {
		if len(dd.past) == 0 {
			continue
		}
		cp := make([]bucket.Past, len(dd.past))
		copy(cp, dd.past)
		out[h] = cp
		if clear {
			dd.past = nil
			d.pruneIfIdleLocked(h, dd)
		}
	}
	return out
}

// IsActive reports whether hash's dimension is presently accumulating wall
// time uninterrupted: refcount-held and condition-true for Sum, or a live
// run for MaxSparse. The alarm variant (§4.9) only projects a breach time
// while this holds, since that is the only state where the running value
// advances without a further matched event.
func (d *Duration) IsActive(hash uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	dd, ok := d.dims[hash]
	if !ok {
		return false
	}
	if d.Aggregation == Sum {
		return dd.activeIsSet
	}
	return dd.runIsSet
}

// CurrentValue folds any live active interval or run up to nowNs into the
// open bucket, then reports its running total — currentPartial(K) for the
// anomaly rule.
func (d *Duration) CurrentValue(hash uint64, nowNs int64) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	dd, ok := d.dims[hash]
	if !ok {
		return 0, false
	}
	switch {
	case d.Aggregation == Sum && dd.activeIsSet:
		d.settleLocked(dd, nowNs)
		return int64(dd.accum), true
	case d.Aggregation == MaxSparse && dd.runIsSet:
		d.settleRunLocked(dd, nowNs)
		return int64(dd.maxInBucket), true
	default:
		d.rollLocked(dd, nowNs)
		if d.Aggregation == Sum {
			return int64(dd.accum), true
		}
		return int64(dd.maxInBucket), true
	}
}

func (d *Duration) GuardrailHit() bool {
	hit := d.guardrails.HitHard()
	d.guardrails.ResetGuardrailFlags()
	return hit
}

// SummaryStatistic computes the montanaflynn/stats aggregate (matching the
// teacher's GatherFilter.getAggregator family: Sum/Mean/Median/Midhinge/
// Trimean) over a set of past-bucket values. No report or bucket field
// carries its result.
func SummaryStatistic(name string, values []float64) (float64, error) {
	fn, ok := summaryFns[name]
	if !ok {
		fn = stats.Sum
	}
	return fn(values)
}

var summaryFns = map[string]func(stats.Float64Data) (float64, error){
	"Sum":      stats.Sum,
	"Mean":     stats.Mean,
	"Median":   stats.Median,
	"Midhinge": stats.Midhinge,
	"Trimean":  stats.Trimean,
}
