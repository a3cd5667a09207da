package producer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
)

// GaugeMode selects one of the three sampling strategies of §4.7.
type GaugeMode int

const (
	// RandomOneSample keeps one sample per bucket per dimension; later
	// candidates in the same bucket are discarded. A condition transition
	// false->true triggers an immediate pull when pull-sampled.
	RandomOneSample GaugeMode = iota
	// FirstNSamples keeps the first N distinct samples per bucket per
	// dimension.
	FirstNSamples
	// ConditionChangeToTrue captures only on the rising edge of the
	// condition.
	ConditionChangeToTrue
)

// gaugeDim is the live state for one dimension under a Gauge producer.
type gaugeDim struct {
	key         dimension.MetricKey
	bucketNum   bucket.Num
	bucketStart int64
	samples     []field.Value
	conditionOn bool
	past        []bucket.Past
}

// Gauge captures the value of a designated atom, either push-sampled (the
// value comes from the matched atom) or pull-sampled (an external Puller is
// invoked) (§4.7).
type Gauge struct {
	baseState
	guardrails *bucket.Tracker

	Mode GaugeMode
	// N is the sample cap for FirstNSamples; ignored for other modes.
	N int
	// MaxAtomsPerDim caps live samples retained per dimension regardless
	// of mode (the per-dimension gauge-atoms guardrail).
	MaxAtomsPerDim int

	// Pulled, when true, means samples come from an explicit Pull rather
	// than OnMatchedEvent (push-sampled).
	Pulled         bool
	PullAtomTag    int32
	Puller         Puller
	MaxPullDelayNs int64

	// pullGroup collapses concurrent pull requests for the same dimension
	// into a single in-flight Puller.Pull call.
	pullGroup singleflight.Group

	mu   sync.Mutex
	dims map[uint64]*gaugeDim
}

func NewGauge(metricID int64, cfg bucket.Config, g bucket.Guardrails) *Gauge {
	return &Gauge{
		baseState:  baseState{metricID: metricID, cfg: cfg},
		guardrails: bucket.NewTracker(g),
		dims:       map[uint64]*gaugeDim{},
	}
}

func (g *Gauge) dimFor(mk dimension.MetricKey, nowNs int64) *gaugeDim {
	h := mk.Hash()
	d, ok := g.dims[h]
	if !ok {
		if !g.guardrails.Admit(h) {
			return nil
		}
		num := g.cfg.NumFor(nowNs)
		d = &gaugeDim{key: mk, bucketNum: num, bucketStart: g.cfg.StartNs(num)}
		g.dims[h] = d
	}
	return d
}

func (g *Gauge) rolloverLocked(d *gaugeDim, nowNs int64) {
	newNum := g.cfg.NumFor(nowNs)
	for d.bucketNum < newNum {
		end := g.cfg.EndNs(d.bucketNum)
		if len(d.samples) > 0 {
			values := make([]float64, 0, len(d.samples))
			for _, s := range d.samples {
				if v, ok := s.AsFloat64(); ok {
					values = append(values, v)
				}
			}
			if len(values) > 0 {
				d.past = append(d.past, bucket.NewGaugePast(g.cfg, d.bucketNum, d.bucketStart, end, values))
			}
		}
		d.bucketNum++
		d.bucketStart = g.cfg.StartNs(d.bucketNum)
		d.samples = nil
	}
}

// admitsMoreLocked reports whether d may accept another sample this bucket
// under the configured mode and the per-dimension atoms cap.
func (g *Gauge) admitsMoreLocked(d *gaugeDim) bool {
	if g.MaxAtomsPerDim > 0 && len(d.samples) >= g.MaxAtomsPerDim {
		return false
	}
	switch g.Mode {
	case RandomOneSample:
		return len(d.samples) == 0
	case FirstNSamples:
		return g.N <= 0 || len(d.samples) < g.N
	case ConditionChangeToTrue:
		// Capture is gated by OnConditionChanged's rising-edge check, not
		// by sample count here.
		return true
	default:
		return true
	}
}

// OnMatchedEvent records a push-sampled value from a matched atom's value
// field (identified by ev.ValueIndices, the first of which is the gauge
// value). The dimension is ev.What without its value entries, plus
// ev.StateValues.
func (g *Gauge) OnMatchedEvent(ev MatchedEvent) {
	if g.Pulled {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	isValue := make(map[int]bool, len(ev.ValueIndices))
	for _, i := range ev.ValueIndices {
		isValue[i] = true
	}
	var what dimension.Key
	for i, v := range ev.What.Values {
		if !isValue[i] {
			what.Values = append(what.Values, v)
		}
	}
	mk := dimension.MetricKey{What: what, StateValues: ev.StateValues}
	d := g.dimFor(mk, ev.TimestampNs)
	if d == nil {
		return
	}
	g.rolloverLocked(d, ev.TimestampNs)
	if g.Mode == ConditionChangeToTrue {
		return
	}
	if !g.admitsMoreLocked(d) {
		return
	}
	if len(ev.ValueIndices) > 0 && ev.ValueIndices[0] < len(ev.What.Values) {
		d.samples = append(d.samples, ev.What.Values[ev.ValueIndices[0]])
	}
}

// OnConditionChanged triggers an immediate pull on the rising edge for
// RandomOneSample (pull-sampled) and ConditionChangeToTrue metrics.
func (g *Gauge) OnConditionChanged(ev ConditionChange) {
	g.mu.Lock()
	d, ok := g.dims[dimension.MetricKey{StateValues: ev.Dimension}.Hash()]
	if !ok {
		if !ev.NewValue {
			g.mu.Unlock()
			return
		}
		d = g.dimFor(dimension.MetricKey{StateValues: ev.Dimension}, ev.TimestampNs)
		if d == nil {
			g.mu.Unlock()
			return
		}
	}
	g.rolloverLocked(d, ev.TimestampNs)
	wasOn := d.conditionOn
	d.conditionOn = ev.NewValue
	risingEdge := ev.NewValue && !wasOn
	g.mu.Unlock()

	if !risingEdge {
		return
	}
	if g.Mode == RandomOneSample && g.Pulled {
		g.PullNow(context.Background(), d.key, ev.TimestampNs)
		return
	}
	if g.Mode == ConditionChangeToTrue {
		if g.Pulled {
			g.PullNow(context.Background(), d.key, ev.TimestampNs)
			return
		}
		// Push-sampled ConditionChangeToTrue records no samples:
		// OnMatchedEvent returns before sampling in this mode.
	}
}

// PullNow invokes the configured Puller for dimension mk, discarding the
// result if it arrives after MaxPullDelayNs has elapsed since nowNs (§4.7,
// §5 "mMaxPullDelayNs"). Concurrent pulls for the same dimension are
// collapsed via singleflight.
func (g *Gauge) PullNow(ctx context.Context, mk dimension.MetricKey, nowNs int64) {
	if g.Puller == nil {
		return
	}
	deadline := nowNs
	if g.MaxPullDelayNs > 0 {
		deadline += g.MaxPullDelayNs
	}
	sfKey := strconv.FormatUint(mk.Hash(), 16)
	atomsIface, err, _ := g.pullGroup.Do(sfKey, func() (interface{}, error) {
		return g.Puller.Pull(ctx, g.PullAtomTag, deadline)
	})
	if err != nil {
		return
	}
	if g.MaxPullDelayNs > 0 && time.Now().UnixNano() > deadline {
		return // arrived after the pull deadline: stale
	}
	atoms, _ := atomsIface.([]field.Atom)
	if len(atoms) == 0 {
		return
	}
	g.recordPulled(mk, nowNs, atoms[len(atoms)-1])
}

func (g *Gauge) recordPulled(mk dimension.MetricKey, nowNs int64, atom field.Atom) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := g.dimFor(mk, nowNs)
	if d == nil || len(atom.Values) == 0 {
		return
	}
	g.rolloverLocked(d, nowNs)
	if !g.admitsMoreLocked(d) {
		return
	}
	d.samples = append(d.samples, atom.Values[len(atom.Values)-1])
}

func (g *Gauge) OnStateChanged(StateChange) {}

func (g *Gauge) FlushIfNeeded(nowNs int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for h, d := range g.dims {
		g.rolloverLocked(d, nowNs)
		if len(d.samples) == 0 && len(d.past) == 0 {
			delete(g.dims, h)
			g.guardrails.Forget(h)
		}
	}
}

func (g *Gauge) DumpAndClear(clear bool) map[uint64][]bucket.Past {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := map[uint64][]bucket.Past{}
	for h, d := range g.dims {
		if len(d.past) == 0 {
			continue
		}
		cp := make([]bucket.Past, len(d.past))
		copy(cp, d.past)
		out[h] = cp
		if clear {
			d.past = nil
			if len(d.samples) == 0 {
				delete(g.dims, h)
				g.guardrails.Forget(h)
			}
		}
	}
	return out
}

// CurrentValue reports the number of samples admitted so far into hash's
// open bucket. Gauge values have no single running scalar the way a count
// or duration does, so sample count stands in for currentPartial(K) here.
func (g *Gauge) CurrentValue(hash uint64, nowNs int64) (int64, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.dims[hash]
	if !ok {
		return 0, false
	}
	g.rolloverLocked(d, nowNs)
	return int64(len(d.samples)), true
}

func (g *Gauge) GuardrailHit() bool {
	hit := g.guardrails.HitHard()
	g.guardrails.ResetGuardrailFlags()
	return hit
}
