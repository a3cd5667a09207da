// Package bucket implements bucket lifecycle: rollover, partial buckets,
// and the current/past-bucket bookkeeping shared by every producer (§3
// Bucket, §4.5 guardrails).
//
// Structurally modeled on the teacher's Bins map-of-accumulator pattern
// (bin.go, bin_filter.go): a time-keyed map of small structs, each closed
// out and emitted once its window elapses.
package bucket

// Num identifies a bucket relative to a fixed time base: start time =
// timeBase + bucketSizeNs*Num.
type Num int64

// Config carries the fixed time base and bucket size for one producer.
type Config struct {
	TimeBaseNs   int64
	BucketSizeNs int64
}

// NumFor returns the bucket number containing timestampNs. A boundary
// landing exactly on an event ns attributes the event to the new bucket
// (§8 boundary case): NumFor(timeBase + bucketSize) == 1, not 0.
func (c Config) NumFor(timestampNs int64) Num {
	if timestampNs <= c.TimeBaseNs {
		return 0
	}
	elapsed := timestampNs - c.TimeBaseNs
	return Num(elapsed / c.BucketSizeNs)
}

// StartNs returns the start time in nanoseconds of bucket n.
func (c Config) StartNs(n Num) int64 {
	return c.TimeBaseNs + int64(n)*c.BucketSizeNs
}

// EndNs returns the (exclusive) end time in nanoseconds of bucket n.
func (c Config) EndNs(n Num) int64 {
	return c.StartNs(n) + c.BucketSizeNs
}

// Past is an immutable, already-closed bucket ready for reporting. A bucket
// whose duration is less than the full bucket size (Partial) is emitted
// with explicit StartNs/EndNs rather than a bucket number (§3 Bucket).
//
// Value is the bucket's single summary value for Count/Duration/Event
// producers. Gauge buckets additionally populate Values with every sample
// FirstNSamples admitted this bucket (§4.7 "keep the first N distinct
// samples per bucket per dimension"; grounded on
// original_source/statsd/src/metrics/GaugeMetricProducer.h's
// GaugeBucket.mGaugeAtoms, a vector rather than a scalar); Value mirrors
// Values' last entry so single-value consumers (anomaly detection, the
// sliding-sum tracker) keep working unchanged.
type Past struct {
	Num          Num
	StartNs      int64
	EndNs        int64
	Partial      bool
	Value        float64
	Values       []float64 // gauge only; nil for Count/Duration/Event
	ConditionNs  int64     // optional condition-true duration, duration metrics only
	HasCondition bool
}

// NewPast builds a Past bucket for [startNs, endNs), marking it partial iff
// its span is shorter than bucketSizeNs.
func NewPast(cfg Config, num Num, startNs, endNs int64, value float64) Past {
	return Past{
		Num:     num,
		StartNs: startNs,
		EndNs:   endNs,
		Partial: endNs-startNs < cfg.BucketSizeNs,
		Value:   value,
	}
}

// NewGaugePast builds a Past bucket carrying every value FirstNSamples (or
// any other gauge mode) admitted this bucket, not just the last one.
func NewGaugePast(cfg Config, num Num, startNs, endNs int64, values []float64) Past {
	p := Past{
		Num:     num,
		StartNs: startNs,
		EndNs:   endNs,
		Partial: endNs-startNs < cfg.BucketSizeNs,
		Values:  values,
	}
	if len(values) > 0 {
		p.Value = values[len(values)-1]
	}
	return p
}
