// Package config defines the pre-parsed configuration value tree of §6:
// atom matchers, conditions, metrics, alerts, periodic alarms, slicing
// states, activations, allowed log sources, pull packages, and guardrail
// knobs. Parsing the wire configuration schema itself is an external
// collaborator's job (§1 Non-goals); this package only validates and
// compiles an already-built tree, following the teacher's per-plugin
// ConfigStruct()/Init(config interface{}) error convention
// (detect_filter.go, gather_filter.go).
package config

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/condition"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/matcher"
	"github.com/WingsOS/android-packages-modules-StatsD/producer"
	"github.com/WingsOS/android-packages-modules-StatsD/sampling"
)

// InvariantError is a category-5 "internal invariant break" per §7: a
// programming error the caller must treat as fatal rather than a value to
// route around. It is a sentinel type, not a panic, so a MetricsManager can
// abort just its own failure domain (§7 "Errors never propagate across
// metrics managers").
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string { return "config: invariant violated: " + e.Msg }

// ConfigKey identifies one installed configuration for its lifetime. Two
// keys with the same (UID, Name) are the same logical configuration across
// updates; the embedded uuid distinguishes install generations for
// handles that must stay stable across a configuration's lifetime but not
// across a remove/reinstall (§6 "handles are stable across a
// configuration's lifetime").
type ConfigKey struct {
	UID  int32
	Name string

	instance uuid.UUID
}

// NewConfigKey mints a ConfigKey for a fresh install.
func NewConfigKey(uid int32, name string) ConfigKey {
	return ConfigKey{UID: uid, Name: name, instance: uuid.New()}
}

// String renders the key the way the original config key is logged:
// "<uid>:<name>".
func (k ConfigKey) String() string {
	return fmt.Sprintf("%d:%s", k.UID, k.Name)
}

// Instance returns the install-generation uuid backing this key.
func (k ConfigKey) Instance() uuid.UUID { return k.instance }

// MetricKind selects which of the four producer families a MetricConfig
// compiles to (§9 DESIGN NOTES: "Producer ∈ {Count, Duration(Sum|MaxSparse),
// Event, Gauge}").
type MetricKind int

const (
	KindCount MetricKind = iota
	KindDuration
	KindEvent
	KindGauge
)

// MetricConfig is one declared metric: which matcher produces its "what"
// events, which condition and slicing states it links to, its bucket
// layout, and kind-specific fields.
type MetricConfig struct {
	ID   int64
	Kind MetricKind

	WhatMatcher int // index into Configuration.Matchers

	// DimensionFields extract the "what" slicing dimension from a matched
	// (possibly transformed) atom. ValueFields additionally identify which
	// extracted fields are aggregation values rather than pure slicing
	// dimensions (used by Gauge's push-sampled value and Event's captured
	// fingerprint fields).
	DimensionFields []matcher.Field
	ValueFields     []matcher.Field

	HasCondition bool
	ConditionID  int64
	// ConditionLink translates this metric's "what" dimension into the
	// linked condition's own dimension space (Metric2Condition).
	ConditionLink dimension.ConditionLink

	SlicingStateAtomIDs []int32
	// StateLinks translates this metric's "what" dimension into each
	// linked slicing state's primary key (Metric2State).
	StateLinks []dimension.StateLink

	// TimeBaseNs anchors bucket numbering for this metric (§3 "start time
	// = time base + bucketSize × bucketNum"). An event timestamped at or
	// before TimeBaseNs is discarded rather than folded into bucket zero
	// (§8 boundary case).
	TimeBaseNs   int64
	BucketSizeNs int64

	Guardrails bucket.Guardrails

	// Count-specific.
	SamplingShard sampling.Shard

	// Duration-specific.
	DurationAgg      producer.DurationAggregation
	StartMatcher     int
	StopMatcher      int
	HasStopMatcher   bool
	StopAllMatcher    int
	HasStopAllMatcher bool

	// Event-specific.
	SamplingPercentage int

	// Gauge-specific.
	GaugeMode      producer.GaugeMode
	GaugeN         int
	MaxAtomsPerDim int
	Pulled         bool
	PullAtomTag    int32
	MaxPullDelayNs int64
}

func (m MetricConfig) validate(numMatchers int) error {
	if m.ID == 0 {
		return errors.New("config: metric id must be non-zero")
	}
	if m.WhatMatcher < 0 || m.WhatMatcher >= numMatchers {
		return fmt.Errorf("config: metric %d: what-matcher index %d out of range", m.ID, m.WhatMatcher)
	}
	if m.BucketSizeNs <= 0 {
		return fmt.Errorf("config: metric %d: bucket_size_ns must be greater than zero", m.ID)
	}
	if m.Kind == KindDuration {
		if m.StartMatcher < 0 || m.StartMatcher >= numMatchers {
			return fmt.Errorf("config: metric %d: start-matcher index %d out of range", m.ID, m.StartMatcher)
		}
		if m.HasStopMatcher && (m.StopMatcher < 0 || m.StopMatcher >= numMatchers) {
			return fmt.Errorf("config: metric %d: stop-matcher index %d out of range", m.ID, m.StopMatcher)
		}
	}
	return nil
}

// AlertConfig declares an anomaly subscription over a metric's bucket
// stream (§4.9).
type AlertConfig struct {
	ID                  int64
	MetricID            int64
	NumBuckets          int
	Threshold           int64
	RefractoryPeriodSec int64
	// UseAlarm enables the projected-breach alarm variant for duration
	// metrics (§4.9 "Alarm variant").
	UseAlarm bool

	// EnableRPCAScore attaches an advisory robust-PCA anomalousness score
	// (github.com/berkmancenter/rpca) to every declaration this alert
	// fires, grounded on the teacher's RPCADetector.Init major_frequency/
	// minor_frequency/autodiff plugin config. It never gates declaration;
	// the sum-over-threshold rule above remains the sole detector.
	EnableRPCAScore    bool
	RPCAMajorFrequency int
	RPCAMinorFrequency int
	RPCAAutoDiff       bool
}

// PeriodicAlarmConfig is a recurring wakeup unrelated to any single alert,
// e.g. a scheduled report dump or TTL sweep (§6 configuration "periodic
// alarms" list; ttl_in_seconds guardrail knob).
type PeriodicAlarmConfig struct {
	Name     string
	CronSpec string
}

// ActivationConfig ties a metric's liveness to an activation atom matcher
// firing, with a time-to-live after which the metric goes dormant again.
type ActivationConfig struct {
	MetricID          int64
	ActivationMatcher int
	TTLSec            int64
}

// PullPackageConfig maps a pulled atom's tag to the package uid allowed to
// answer it (§1 Non-goals: the uid-to-package map itself is an external
// collaborator; this just records which tags are pull-capable per
// configuration).
type PullPackageConfig struct {
	AtomTag     int32
	PackageName string
}

// Guardrails carries the process-wide size limits from §6's configuration
// guardrail knobs.
type Guardrails struct {
	MaxMetricsMemoryKB           int64
	SoftMetricsMemoryKB          int64
	PackageCertificateHashSizeBytes int64
	TTLInSeconds                 int64
	PersistLocally               bool
	HashStringsInMetricReport    bool
}

// ConditionConfig names one declared condition tracker so metrics can
// reference it by a stable ID rather than a slice index that would shift
// across configuration updates.
type ConditionConfig struct {
	ID      int64
	Tracker *condition.Tracker
}

// Configuration is the full pre-parsed value tree for one installed
// configuration.
type Configuration struct {
	Key ConfigKey

	Matchers          []matcher.AtomMatcher
	Conditions        []ConditionConfig
	Metrics           []MetricConfig
	Alerts            []AlertConfig
	PeriodicAlarms    []PeriodicAlarmConfig
	SlicingStateAtoms []int32
	Activations       []ActivationConfig
	AllowedLogSources []int32
	PullPackages      []PullPackageConfig

	Guardrails Guardrails
}

// ConfigStruct returns the zero-value defaults for a Configuration, per the
// teacher's pipeline.HasConfigStruct convention (detect_filter.go
// ConfigStruct returning &DetectConfig{Algorithm: "RPCA"}).
func (Configuration) ConfigStruct() interface{} {
	return &Configuration{}
}

// Init validates a fully-built Configuration value tree as a unit: a
// malformed configuration (§7 category 1) is rejected wholesale rather than
// partially applied, and callers must not construct any producer from a
// Configuration that failed Init.
func (c *Configuration) Init(raw interface{}) error {
	cfg, ok := raw.(*Configuration)
	if !ok {
		return &InvariantError{Msg: fmt.Sprintf("config.Init called with %T, want *Configuration", raw)}
	}
	*c = *cfg

	seenConditionIDs := map[int64]bool{}
	for _, cc := range c.Conditions {
		seenConditionIDs[cc.ID] = true
	}

	seenMetricIDs := map[int64]bool{}
	for _, m := range c.Metrics {
		if err := m.validate(len(c.Matchers)); err != nil {
			return err
		}
		if seenMetricIDs[m.ID] {
			return fmt.Errorf("config: duplicate metric id %d", m.ID)
		}
		seenMetricIDs[m.ID] = true
		if m.HasCondition && !seenConditionIDs[m.ConditionID] {
			return fmt.Errorf("config: metric %d references unknown condition id %d", m.ID, m.ConditionID)
		}
	}
	for _, a := range c.Alerts {
		if !seenMetricIDs[a.MetricID] {
			return fmt.Errorf("config: alert %d references unknown metric id %d", a.ID, a.MetricID)
		}
		if a.NumBuckets <= 0 {
			return fmt.Errorf("config: alert %d: num_buckets must be greater than zero", a.ID)
		}
		if a.EnableRPCAScore {
			if a.RPCAMajorFrequency <= 0 || a.RPCAMinorFrequency <= 0 {
				return fmt.Errorf("config: alert %d: rpca major/minor frequency must be greater than zero", a.ID)
			}
			if a.RPCAMinorFrequency%a.RPCAMajorFrequency != 0 {
				return fmt.Errorf("config: alert %d: rpca minor_frequency must be divisible by major_frequency", a.ID)
			}
		}
	}
	for _, act := range c.Activations {
		if !seenMetricIDs[act.MetricID] {
			return fmt.Errorf("config: activation references unknown metric id %d", act.MetricID)
		}
		if act.ActivationMatcher < 0 || act.ActivationMatcher >= len(c.Matchers) {
			return fmt.Errorf("config: activation matcher index %d out of range", act.ActivationMatcher)
		}
	}
	if c.Guardrails.TTLInSeconds < 0 {
		return errors.New("config: ttl_in_seconds must not be negative")
	}
	return nil
}
