// Package report defines the outbound report envelope of §6: a repeated
// envelope keyed by metric id, carrying the metric's bucket layout and its
// per-dimension past-bucket data.
package report

import "github.com/WingsOS/android-packages-modules-StatsD/bucket"

// DimensionEntry is one dimension's worth of past-bucket data within a
// metric's report.
type DimensionEntry struct {
	// DimensionHash and StateValuesHash identify the dimension and, when
	// keyed by a masked position, collapse attribution-chain slot
	// differences into the same entry.
	DimensionHash   uint64
	StateValuesHash uint64
	Past            []bucket.Past
}

// MetricReport is one metric's envelope: declared id, time base and bucket
// size, an optional dimension path (used only when nested dimension layout
// is disabled), the per-dimension entries, and the guardrail/active-status
// sentinel flags.
type MetricReport struct {
	MetricID      int64
	TimeBaseNs    int64
	BucketSizeNs  int64
	DimensionPath []int32 // optional; empty when nested layout is used

	Dimensions []DimensionEntry

	GuardrailHit bool
	Active       bool
}

// Report is the full dump: one envelope per configured metric, including
// metrics with no data.
type Report struct {
	ConfigKey string
	Metrics   []MetricReport
}
