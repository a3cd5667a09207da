package producer

import (
	"sync"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/sampling"
)

// countDim is the live state for one (whatKey, stateValuesKey) under a
// Count producer: the current bucket's running count plus its past
// buckets.
type countDim struct {
	key         dimension.MetricKey
	bucketNum   bucket.Num
	count       int64
	bucketStart int64
	past        []bucket.Past
}

// Count derives a (whatKey, stateValuesKey) from each matched event and
// increments the count in the current bucket of that key. On rollover, the
// key's count is appended to its past-bucket list; empty dimensions are
// pruned (§4.4).
type Count struct {
	baseState
	Sampler    *sampling.Shard
	guardrails *bucket.Tracker

	mu   sync.Mutex
	dims map[uint64]*countDim
}

func NewCount(metricID int64, cfg bucket.Config, g bucket.Guardrails) *Count {
	return &Count{
		baseState:  baseState{metricID: metricID, cfg: cfg},
		guardrails: bucket.NewTracker(g),
		dims:       map[uint64]*countDim{},
	}
}

func (c *Count) OnMatchedEvent(ev MatchedEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mk := dimension.MetricKey{What: ev.What, StateValues: ev.StateValues}
	if c.Sampler != nil && !c.Sampler.Admit(mk.What) {
		return
	}
	h := mk.Hash()
	d, ok := c.dims[h]
	if !ok {
		if !c.guardrails.Admit(h) {
			return
		}
		num := c.cfg.NumFor(ev.TimestampNs)
		d = &countDim{key: mk, bucketNum: num, bucketStart: c.cfg.StartNs(num)}
		c.dims[h] = d
	}
	c.rolloverLocked(d, ev.TimestampNs)
	d.count++
}

func (c *Count) rolloverLocked(d *countDim, nowNs int64) {
	newNum := c.cfg.NumFor(nowNs)
	for d.bucketNum < newNum {
		end := c.cfg.EndNs(d.bucketNum)
		if d.count > 0 {
			d.past = append(d.past, bucket.NewPast(c.cfg, d.bucketNum, d.bucketStart, end, float64(d.count)))
		}
		d.bucketNum++
		d.bucketStart = c.cfg.StartNs(d.bucketNum)
		d.count = 0
	}
}

func (c *Count) OnConditionChanged(ConditionChange) {}
func (c *Count) OnStateChanged(StateChange)         {}

func (c *Count) FlushIfNeeded(nowNs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for h, d := range c.dims {
		c.rolloverLocked(d, nowNs)
		if d.count == 0 && len(d.past) == 0 {
			delete(c.dims, h)
			c.guardrails.Forget(h)
		}
	}
}

func (c *Count) DumpAndClear(clear bool) map[uint64][]bucket.Past {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := map[uint64][]bucket.Past{}
	for h, d := range c.dims {
		if len(d.past) == 0 {
			continue
		}
		cp := make([]bucket.Past, len(d.past))
		copy(cp, d.past)
		out[h] = cp
		if clear {
			d.past = nil
			if d.count == 0 {
				delete(c.dims, h)
				c.guardrails.Forget(h)
			}
		}
	}
	return out
}

func (c *Count) CurrentValue(hash uint64, nowNs int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dims[hash]
	if !ok {
		return 0, false
	}
	c.rolloverLocked(d, nowNs)
	return d.count, true
}

func (c *Count) GuardrailHit() bool {
	hit := c.guardrails.HitHard()
	c.guardrails.ResetGuardrailFlags()
	return hit
}
