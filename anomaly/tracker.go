// Package anomaly implements the sliding-window sum detector of §4.9: a
// ring buffer of the last N completed bucket values per dimension, plus a
// refractory period that suppresses repeat declarations.
//
// Grounded on original_source/statsd/src/anomaly/AnomalyTracker.h
// (mPastBuckets, mSumOverPastBuckets, mMostRecentBucketNum,
// mRefractoryPeriodEndsSec, advanceMostRecentBucketTo).
package anomaly

import "github.com/WingsOS/android-packages-modules-StatsD/dimension"

// Subscriber is notified when an anomaly is declared for a dimension. score
// is the advisory RPCA-derived anomalousness for the declaring value if
// Tracker.Scorer is set and its sliding window has filled; scoreOK is false
// otherwise, and score must then be ignored.
type Subscriber func(key dimension.Key, metricValue int64, timestampNs int64, score Score, scoreOK bool)

// Tracker maintains, per dimension, a ring of the last NumPastBuckets
// completed bucket values plus an incrementally maintained sum, and detects
// when sum(pastBuckets) + currentPartial exceeds Threshold outside of the
// dimension's refractory period.
type Tracker struct {
	NumPastBuckets      int
	Threshold           int64
	RefractoryPeriodSec int64

	// Scorer, if set, attaches an advisory RPCA anomalousness score to
	// every declaration this tracker fires. It never gates declaration;
	// the sum-over-threshold rule above remains the sole detector.
	Scorer *RPCAScorer

	pastBuckets         []map[uint64]int64 // ring indexed by bucketNum % NumPastBuckets
	sumOverPast         map[uint64]int64
	mostRecentBucketNum int64
	haveMostRecent      bool
	refractoryEndsSec   map[uint64]uint32

	subscribers []Subscriber
}

// NewTracker builds a Tracker for an alert with the given past-bucket depth
// and sum threshold (Alert.trigger_if_sum_gt in the original).
func NewTracker(numPastBuckets int, threshold int64, refractoryPeriodSec int64) *Tracker {
	if numPastBuckets < 1 {
		numPastBuckets = 1
	}
	buckets := make([]map[uint64]int64, numPastBuckets)
	return &Tracker{
		NumPastBuckets:      numPastBuckets,
		Threshold:           threshold,
		RefractoryPeriodSec: refractoryPeriodSec,
		pastBuckets:         buckets,
		sumOverPast:         map[uint64]int64{},
		mostRecentBucketNum: -1,
		refractoryEndsSec:   map[uint64]uint32{},
	}
}

// Subscribe registers a callback fired every time this tracker declares an
// anomaly.
func (t *Tracker) Subscribe(s Subscriber) {
	t.subscribers = append(t.subscribers, s)
}

func (t *Tracker) index(bucketNum int64) int {
	n := int64(t.NumPastBuckets)
	m := bucketNum % n
	if m < 0 {
		m += n
	}
	return int(m)
}

// advanceMostRecentBucketTo moves the ring's cursor to bucketNum, zeroing
// and subtracting from the sum any slots that have aged out.
func (t *Tracker) advanceMostRecentBucketTo(bucketNum int64) {
	if !t.haveMostRecent {
		t.mostRecentBucketNum = bucketNum
		t.haveMostRecent = true
		return
	}
	if bucketNum <= t.mostRecentBucketNum {
		return
	}
	span := bucketNum - t.mostRecentBucketNum
	if span >= int64(t.NumPastBuckets) {
		t.resetStorage()
		t.mostRecentBucketNum = bucketNum
		return
	}
	for b := t.mostRecentBucketNum + 1; b <= bucketNum; b++ {
		idx := t.index(b)
		t.subtractBucketFromSum(t.pastBuckets[idx])
		t.pastBuckets[idx] = nil
	}
	t.mostRecentBucketNum = bucketNum
}

func (t *Tracker) resetStorage() {
	for i := range t.pastBuckets {
		t.pastBuckets[i] = nil
	}
	t.sumOverPast = map[uint64]int64{}
}

func (t *Tracker) addBucketToSum(bucket map[uint64]int64) {
	for h, v := range bucket {
		t.sumOverPast[h] += v
	}
}

func (t *Tracker) subtractBucketFromSum(bucket map[uint64]int64) {
	for h, v := range bucket {
		t.subtractValueFromSum(h, v)
	}
}

func (t *Tracker) subtractValueFromSum(hash uint64, value int64) {
	remaining := t.sumOverPast[hash] - value
	if remaining <= 0 {
		delete(t.sumOverPast, hash)
	} else {
		t.sumOverPast[hash] = remaining
	}
}

// AddPastBucket records the completed bucket's per-dimension values at
// bucketNum, advancing the ring cursor if bucketNum is not already in the
// past.
func (t *Tracker) AddPastBucket(bucketNum int64, values map[uint64]int64) {
	if t.haveMostRecent && bucketNum <= t.mostRecentBucketNum-int64(t.NumPastBuckets) {
		return // too old to affect the sum
	}
	t.advanceMostRecentBucketTo(bucketNum)
	idx := t.index(bucketNum)
	if old := t.pastBuckets[idx]; old != nil {
		t.subtractBucketFromSum(old)
	}
	cp := make(map[uint64]int64, len(values))
	for h, v := range values {
		if v != 0 {
			cp[h] = v
		}
	}
	t.pastBuckets[idx] = cp
	t.addBucketToSum(cp)
}

// SumOverPastBuckets returns the cached sum of all stored past-bucket values
// for the given dimension hash.
func (t *Tracker) SumOverPastBuckets(hash uint64) int64 {
	return t.sumOverPast[hash]
}

func (t *Tracker) isInRefractoryPeriod(nowWallSec int64, hash uint64) bool {
	end, ok := t.refractoryEndsSec[hash]
	return ok && nowWallSec < int64(end)
}

// DetectAndDeclare advances the ring to currBucketNum-1, checks whether
// sum(past buckets) + currentBucketValue exceeds Threshold for key outside
// its refractory period, and if so records the new refractory end and fires
// every subscriber. Returns whether an anomaly was declared.
func (t *Tracker) DetectAndDeclare(timestampNs, nowWallSec, currBucketNum int64, key dimension.Key, currentBucketValue int64) bool {
	return t.detectAndDeclare(timestampNs, nowWallSec, currBucketNum, key.Hash(), currentBucketValue, key)
}

// DetectAndDeclareHash is DetectAndDeclare for a caller that only has the
// dimension hash on hand (e.g. a driver that keys its own producer state by
// hash without retaining the originating dimension.Key). Subscribers fire
// with a zero-value dimension.Key.
func (t *Tracker) DetectAndDeclareHash(timestampNs, nowWallSec, currBucketNum int64, hash uint64, currentBucketValue int64) bool {
	return t.detectAndDeclare(timestampNs, nowWallSec, currBucketNum, hash, currentBucketValue, dimension.Key{})
}

func (t *Tracker) detectAndDeclare(timestampNs, nowWallSec, currBucketNum int64, hash uint64, currentBucketValue int64, key dimension.Key) bool {
	t.advanceMostRecentBucketTo(currBucketNum - 1)
	total := t.sumOverPast[hash] + currentBucketValue
	if total <= t.Threshold {
		return false
	}
	if t.isInRefractoryPeriod(nowWallSec, hash) {
		return false
	}
	t.refractoryEndsSec[hash] = uint32(nowWallSec + t.RefractoryPeriodSec)
	var score Score
	var scoreOK bool
	if t.Scorer != nil {
		score, scoreOK = t.Scorer.Observe(hash, float64(total))
	}
	for _, s := range t.subscribers {
		s(key, total, timestampNs, score, scoreOK)
	}
	return true
}

// RefractoryPeriodEndsSec returns the stored refractory end for key, or 0 if
// none is recorded.
func (t *Tracker) RefractoryPeriodEndsSec(key dimension.Key) uint32 {
	return t.refractoryEndsSec[key.Hash()]
}
