// Package manager implements the per-configuration driver of §2 component
// 8: it fans each ingested atom through matcher dispatch, condition
// evaluation, and metric producer notification, owns every producer's and
// anomaly tracker's state, and serves report dumps.
//
// Structurally grounded on the teacher's *Filter types (window_filter.go,
// detect_filter.go, gather_filter.go): a single Init(config) that compiles
// a runtime object graph from a config struct, and a Connect-shaped entry
// point (here OnAtom) invoked per unit of work under one lock (§5
// "Scheduling model": "a per-metrics-manager mutex").
package manager

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/WingsOS/android-packages-modules-StatsD/anomaly"
	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/condition"
	"github.com/WingsOS/android-packages-modules-StatsD/config"
	"github.com/WingsOS/android-packages-modules-StatsD/dimension"
	"github.com/WingsOS/android-packages-modules-StatsD/field"
	"github.com/WingsOS/android-packages-modules-StatsD/matcher"
	"github.com/WingsOS/android-packages-modules-StatsD/producer"
	"github.com/WingsOS/android-packages-modules-StatsD/report"
	"github.com/WingsOS/android-packages-modules-StatsD/sampling"
	"github.com/WingsOS/android-packages-modules-StatsD/state"
	"github.com/WingsOS/android-packages-modules-StatsD/store"
)

// alertTracker pairs one alert's anomaly tracker with either the plain
// Tracker (sum-vs-threshold only) or an AlarmTracker (duration alarm
// variant, §4.9).
type alertTracker struct {
	cfg   config.AlertConfig
	plain *anomaly.Tracker
	alarm *anomaly.AlarmTracker
}

func (a alertTracker) tracker() *anomaly.Tracker {
	if a.alarm != nil {
		return a.alarm.Tracker
	}
	return a.plain
}

// MetricsManager is the per-configuration driver of §2/§5: exactly one
// ingestion path, serialized by mu with configuration mutation and report
// dumps (§5 "Configuration mutation ... and report-dump calls arrive on
// separate threads and are serialized with ingestion by a per-metrics-
// manager mutex").
type MetricsManager struct {
	Stats     *Stats
	Store     store.RestrictedStore
	Scheduler anomaly.Scheduler
	Log       *slog.Logger

	mu sync.Mutex

	key        config.ConfigKey
	cfg        config.Configuration
	dispatcher *matcher.Dispatcher

	conditions   map[int64]*condition.Tracker
	metricByID   map[int64]config.MetricConfig
	producers    map[int64]producer.Producer
	configHashes map[int64]uint64

	stateTrackers map[int32]*state.Tracker

	alerts map[int64]*alertTracker

	activationTTL      map[int64]int64 // metric id -> configured ttl seconds, when activation-gated
	activationMatcher  map[int64]int   // metric id -> atom matcher index that (re)activates it
	activationDeadline map[int64]int64 // metric id -> nowNs after which the metric goes dormant again; 0 = never activated
}

// New builds an empty manager. Install must be called before OnAtom.
func New(stats *Stats, st store.RestrictedStore, sched anomaly.Scheduler, log *slog.Logger) *MetricsManager {
	if log == nil {
		log = slog.Default()
	}
	return &MetricsManager{
		Stats:     stats,
		Store:     st,
		Scheduler: sched,
		Log:       log,
	}
}

// Install compiles cfg into a fresh runtime object graph, replacing
// whatever configuration this manager previously held. Producers created
// during a partial install that then fails are discarded as a unit (§7
// category 1: "Producers already created during partial install are torn
// down" — since we only publish m.producers/m.conditions after every step
// below succeeds, a returned error leaves the manager's previous state, if
// any, untouched).
func (m *MetricsManager) Install(cfg config.Configuration) error {
	if err := (&cfg).Init(&cfg); err != nil {
		return fmt.Errorf("manager: install %s: %w", cfg.Key, err)
	}

	dispatcher := matcher.NewDispatcher(cfg.Matchers)

	conditions := make(map[int64]*condition.Tracker, len(cfg.Conditions))
	for _, cc := range cfg.Conditions {
		conditions[cc.ID] = cc.Tracker
	}

	stateTrackers := map[int32]*state.Tracker{}
	for _, atomID := range cfg.SlicingStateAtoms {
		stateTrackers[atomID] = state.NewTracker(atomID)
	}

	producers := make(map[int64]producer.Producer, len(cfg.Metrics))
	metricByID := make(map[int64]config.MetricConfig, len(cfg.Metrics))
	configHashes := make(map[int64]uint64, len(cfg.Metrics))
	for _, mc := range cfg.Metrics {
		bcfg := bucket.Config{TimeBaseNs: mc.TimeBaseNs, BucketSizeNs: mc.BucketSizeNs}
		var p producer.Producer
		switch mc.Kind {
		case config.KindCount:
			c := producer.NewCount(mc.ID, bcfg, mc.Guardrails)
			if mc.SamplingShard.ShardCount > 0 {
				c.Sampler = &sampling.Shard{ShardCount: mc.SamplingShard.ShardCount, ShardOffset: mc.SamplingShard.ShardOffset}
			}
			p = c
		case config.KindDuration:
			p = producer.NewDuration(mc.ID, bcfg, mc.DurationAgg, mc.Guardrails)
		case config.KindEvent:
			e := producer.NewEvent(mc.ID, bcfg, mc.Guardrails)
			e.SamplingPercentage = mc.SamplingPercentage
			p = e
		case config.KindGauge:
			g := producer.NewGauge(mc.ID, bcfg, mc.Guardrails)
			g.Mode = mc.GaugeMode
			g.N = mc.GaugeN
			g.MaxAtomsPerDim = mc.MaxAtomsPerDim
			g.Pulled = mc.Pulled
			g.PullAtomTag = mc.PullAtomTag
			g.MaxPullDelayNs = mc.MaxPullDelayNs
			p = g
		default:
			return fmt.Errorf("manager: install %s: metric %d: unknown kind %v", cfg.Key, mc.ID, mc.Kind)
		}
		producers[mc.ID] = p
		metricByID[mc.ID] = mc
		configHashes[mc.ID] = hashMetricConfig(mc)
	}

	alerts := make(map[int64]*alertTracker, len(cfg.Alerts))
	for _, ac := range cfg.Alerts {
		at := &alertTracker{cfg: ac}
		t := anomaly.NewTracker(ac.NumBuckets, ac.Threshold, ac.RefractoryPeriodSec)
		if ac.EnableRPCAScore {
			t.Scorer = anomaly.NewRPCAScorer(ac.RPCAMajorFrequency, ac.RPCAMinorFrequency, ac.RPCAAutoDiff)
			alertID := ac.ID
			t.Subscribe(func(key dimension.Key, metricValue, timestampNs int64, score anomaly.Score, scoreOK bool) {
				if !scoreOK {
					return
				}
				if m.Stats != nil {
					m.Stats.RPCAAnomalousness.WithLabelValues(m.key.String(), fmt.Sprintf("%d", alertID)).Set(score.Anomalousness)
				}
				m.Log.Info("anomaly declared", "alert_id", alertID, "metric_value", metricValue,
					"rpca_anomalous", score.Anomalous, "rpca_anomalousness", score.Anomalousness, "rpca_normed", score.Normed)
			})
		}
		if ac.UseAlarm && m.Scheduler != nil {
			at.alarm = anomaly.NewAlarmTracker(t, m.Scheduler)
		} else {
			at.plain = t
		}
		alerts[ac.ID] = at
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = cfg.Key
	m.cfg = cfg
	m.dispatcher = dispatcher
	m.conditions = conditions
	m.stateTrackers = stateTrackers
	m.producers = producers
	m.metricByID = metricByID
	m.configHashes = configHashes
	m.alerts = alerts
	m.activationTTL = map[int64]int64{}
	m.activationMatcher = map[int64]int{}
	m.activationDeadline = map[int64]int64{}
	for _, act := range cfg.Activations {
		m.activationTTL[act.MetricID] = act.TTLSec
		m.activationMatcher[act.MetricID] = act.ActivationMatcher
		m.activationDeadline[act.MetricID] = 0
	}
	m.Log.Info("configuration installed", "config_key", cfg.Key.String(), "metrics", len(cfg.Metrics), "alerts", len(cfg.Alerts))
	return nil
}

// hashMetricConfig implements the getProtoHash-style diffing named in
// SPEC_FULL's SUPPLEMENTED FEATURES: an FNV hash of the metric's resolved
// configuration, used by Update to decide "unchanged, preserve state" vs
// "changed, rebuild" per metric id.
func hashMetricConfig(mc config.MetricConfig) uint64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%+v", mc)
	return h.Sum64()
}

// Update installs newCfg, preserving the producer state of any metric
// whose resolved configuration is byte-for-byte unchanged (same FNV hash)
// and rebuilding the rest, per §1 "configuration updates preserve what
// they can and atomically replace the rest."
func (m *MetricsManager) Update(newCfg config.Configuration) error {
	m.mu.Lock()
	oldProducers := m.producers
	oldHashes := m.configHashes
	m.mu.Unlock()

	if err := m.Install(newCfg); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, newHash := range m.configHashes {
		if oldHash, ok := oldHashes[id]; ok && oldHash == newHash {
			if old, ok := oldProducers[id]; ok {
				m.producers[id] = old
				m.Log.Debug("metric config unchanged, preserving state", "config_key", m.key.String(), "metric_id", id)
			}
		}
	}
	return nil
}

// Remove tears down every alarm and producer this manager owns (§5
// "Cancellation: Configuration removal cancels all outstanding alarms
// owned by that configuration's anomaly trackers", §8 "install(C) followed
// by remove(C) leaves no outstanding alarms and no per-configuration
// state").
func (m *MetricsManager) Remove() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, at := range m.alerts {
		if at.alarm != nil {
			at.alarm.CancelAllAlarms()
		}
	}
	if m.Store != nil {
		if err := m.Store.DropConfig(m.key.String()); err != nil {
			return fmt.Errorf("manager: remove %s: %w", m.key, err)
		}
	}
	m.dispatcher = nil
	m.conditions = nil
	m.producers = nil
	m.metricByID = nil
	m.configHashes = nil
	m.alerts = nil
	m.stateTrackers = nil
	m.activationTTL = nil
	m.activationMatcher = nil
	m.activationDeadline = nil
	m.Log.Info("configuration removed", "config_key", m.key.String())
	return nil
}

// OnAtom is the single ingestion entry point (§5 "a single ingestion
// thread drives all atom processing for a given metrics manager"): matcher
// dispatch, condition re-evaluation, then producer notification, all
// under mu.
func (m *MetricsManager) OnAtom(a field.Atom, nowNs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatcher == nil {
		return // no configuration installed
	}
	if !m.logSourceAllowedLocked(a.SourceUID) {
		if m.Stats != nil {
			m.Stats.AtomsDropped.WithLabelValues(m.key.String(), "log_source").Inc()
		}
		return
	}

	matched, transformed := m.dispatcher.Evaluate(a)
	if len(matched) == 0 {
		return
	}
	if m.Stats != nil {
		m.Stats.MatcherMatches.WithLabelValues(m.key.String()).Add(float64(len(matched)))
		m.Stats.AtomsProcessed.WithLabelValues(m.key.String()).Inc()
	}

	m.refreshActivationsLocked(matched, nowNs)
	m.evaluateConditionsLocked(a, matched, nowNs)
	m.updateStatesLocked(matched, transformed, nowNs)
	m.notifyProducersLocked(matched, transformed, nowNs)
}

// refreshActivationsLocked extends a metric's activation deadline whenever
// its activation matcher fires this atom (§6 "activations": an
// atom-matcher-gated liveness/TTL). A metric with no activation config is
// always live.
func (m *MetricsManager) refreshActivationsLocked(matched map[int]bool, nowNs int64) {
	for metricID, idx := range m.activationMatcher {
		if !matched[idx] {
			continue
		}
		ttlSec := m.activationTTL[metricID]
		m.activationDeadline[metricID] = nowNs + ttlSec*1e9
	}
}

// activationLiveLocked reports whether metricID's producer should receive
// notifications right now: metrics with no activation config are always
// live, activation-gated metrics are dormant until their activation matcher
// has fired at least once and go dormant again once their TTL lapses.
func (m *MetricsManager) activationLiveLocked(metricID int64, nowNs int64) bool {
	deadline, gated := m.activationDeadline[metricID]
	if !gated {
		return true
	}
	return deadline > 0 && nowNs < deadline
}

func (m *MetricsManager) logSourceAllowedLocked(sourceUID int64) bool {
	if len(m.cfg.AllowedLogSources) == 0 {
		return true
	}
	for _, uid := range m.cfg.AllowedLogSources {
		if int64(uid) == sourceUID {
			return true
		}
	}
	return false
}

// evaluateConditionsLocked re-evaluates every combinational condition and
// dispatches simple-condition transitions, fanning resulting changes to
// every producer linked by ConditionID (§4.3, §4.5 lifecycle).
func (m *MetricsManager) evaluateConditionsLocked(a field.Atom, matched map[int]bool, nowNs int64) {
	for condID, tr := range m.conditions {
		var changes condition.ChangeSet
		switch tr.Kind {
		case condition.KindSimple:
			st := tr.Simple
			dim := dimension.Key{Values: a.Values}
			matchedStart := matched[st.StartMatcher]
			matchedStop := st.HasStop && matched[st.StopMatcher]
			matchedStopAll := st.HasStopAll && matched[st.StopAllMatcher]
			if !matchedStart && !matchedStop && !matchedStopAll {
				continue
			}
			changes = st.Evaluate(dim, matchedStart, matchedStop, matchedStopAll)
		case condition.KindCombinational:
			changes = tr.Combinational.Evaluate()
		}
		if len(changes.TrueNow) == 0 && len(changes.FalseNow) == 0 {
			continue
		}
		m.fanConditionChangeLocked(condID, changes, nowNs)
	}
}

func (m *MetricsManager) fanConditionChangeLocked(condID int64, changes condition.ChangeSet, nowNs int64) {
	for _, mc := range m.metricByID {
		if !mc.HasCondition || mc.ConditionID != condID {
			continue
		}
		p := m.producers[mc.ID]
		if p == nil {
			continue
		}
		for _, dim := range changes.TrueNow {
			p.OnConditionChanged(producer.ConditionChange{TimestampNs: nowNs, Dimension: dim, NewValue: true})
			if d, isDuration := p.(*producer.Duration); isDuration {
				m.syncAlarmsLocked(mc, d, dimension.MetricKey{What: dim}.Hash(), dim, nowNs)
			}
		}
		for _, dim := range changes.FalseNow {
			p.OnConditionChanged(producer.ConditionChange{TimestampNs: nowNs, Dimension: dim, NewValue: false})
			if d, isDuration := p.(*producer.Duration); isDuration {
				m.syncAlarmsLocked(mc, d, dimension.MetricKey{What: dim}.Hash(), dim, nowNs)
			}
		}
	}
}

// updateStatesLocked feeds any matched atom that is itself a slicing-state
// atom into its state.Tracker, then notifies producers linked to that
// state atom via a StateChange event.
func (m *MetricsManager) updateStatesLocked(matched map[int]bool, transformed map[int]field.Atom, nowNs int64) {
	for atomID, tracker := range m.stateTrackers {
		for idx := range matched {
			a, ok := transformed[idx]
			if !ok || a.Tag != atomID {
				continue
			}
			primaryKey := dimension.Key{Values: a.Values}
			values := dimension.Key{Values: a.Values}
			tracker.Update(primaryKey, values)
			m.fanStateChangeLocked(atomID, primaryKey, values, nowNs)
		}
	}
}

func (m *MetricsManager) fanStateChangeLocked(atomID int32, primaryKey, values dimension.Key, nowNs int64) {
	for _, mc := range m.metricByID {
		linked := false
		for _, id := range mc.SlicingStateAtomIDs {
			if id == atomID {
				linked = true
				break
			}
		}
		if !linked {
			continue
		}
		p := m.producers[mc.ID]
		if p == nil {
			continue
		}
		p.OnStateChanged(producer.StateChange{TimestampNs: nowNs, PrimaryKey: primaryKey, NewValues: values})
	}
}

// notifyProducersLocked delivers matched "what" events to every metric
// whose WhatMatcher fired, resolving the metric's dimension key and, for
// duration metrics, dispatching to NoteStart/NoteStop/NoteStopAll directly
// since those aren't part of the homogeneous Producer interface (§9
// "Dispatch by tag ... callers type-switch on the concrete ... value").
func (m *MetricsManager) notifyProducersLocked(matched map[int]bool, transformed map[int]field.Atom, nowNs int64) {
	for _, mc := range m.metricByID {
		a, ok := transformed[mc.WhatMatcher]
		if !ok || !matched[mc.WhatMatcher] {
			continue
		}
		if nowNs <= mc.TimeBaseNs {
			// §8 boundary case: an event at or before the time base is
			// discarded, not folded into bucket zero.
			if m.Stats != nil {
				m.Stats.AtomsDropped.WithLabelValues(m.key.String(), "before_time_base").Inc()
			}
			continue
		}
		if !m.activationLiveLocked(mc.ID, nowNs) {
			if m.Stats != nil {
				m.Stats.AtomsDropped.WithLabelValues(m.key.String(), "activation_dormant").Inc()
			}
			continue
		}
		p := m.producers[mc.ID]
		if p == nil {
			continue
		}
		whatKey, valueIdx, ok := matcher.FilterDimensionAndValues(mc.DimensionFields, mc.ValueFields, a)
		if !ok {
			continue
		}
		stateValues := m.resolveStateValuesLocked(mc, whatKey)

		if d, isDuration := p.(*producer.Duration); isDuration {
			mk := dimension.MetricKey{What: whatKey, StateValues: stateValues}
			switch {
			case mc.HasStopAllMatcher && matched[mc.StopAllMatcher]:
				d.NoteStopAll(nowNs)
			case matched[mc.StartMatcher]:
				d.NoteStart(mk, nowNs)
			case mc.HasStopMatcher && matched[mc.StopMatcher]:
				d.NoteStop(mk, nowNs)
			}
			m.syncAlarmsLocked(mc, d, mk.Hash(), mk.What, nowNs)
			continue
		}

		p.OnMatchedEvent(producer.MatchedEvent{
			TimestampNs:  nowNs,
			AtomTag:      a.Tag,
			What:         whatKey,
			StateValues:  stateValues,
			ValueIndices: valueIdx,
		})
	}
}

func (m *MetricsManager) resolveStateValuesLocked(mc config.MetricConfig, whatKey dimension.Key) dimension.Key {
	var out dimension.Key
	for _, link := range mc.StateLinks {
		tracker, ok := m.stateTrackers[link.StateAtomID]
		if !ok {
			continue
		}
		primaryKey := dimension.DimensionForState(whatKey, link)
		if values, ok := tracker.Query(primaryKey); ok {
			out.Values = append(out.Values, values.Values...)
		}
	}
	return out
}

// syncAlarmsLocked starts or stops the projected-breach alarm (§4.9 "Alarm
// variant") for every UseAlarm alert linked to mc, reflecting hash's Sum
// accumulation state right after a NoteStart/NoteStop/OnConditionChanged
// call. A duration accumulating uninterrupted advances its running value in
// lockstep with wall time, so while active the breach instant can be
// projected exactly; StopAlarm cancels the projection once the interval
// pauses or ends, since the value stops advancing on its own from there.
func (m *MetricsManager) syncAlarmsLocked(mc config.MetricConfig, d *producer.Duration, hash uint64, key dimension.Key, nowNs int64) {
	if d.Aggregation != producer.Sum {
		return
	}
	for _, at := range m.alerts {
		if at.cfg.MetricID != mc.ID || at.alarm == nil {
			continue
		}
		bucketCfg := bucket.Config{TimeBaseNs: mc.TimeBaseNs, BucketSizeNs: mc.BucketSizeNs}
		currBucketNum := int64(bucketCfg.NumFor(nowNs))
		if !d.IsActive(hash) {
			at.alarm.StopAlarm(context.Background(), key)
			continue
		}
		current, ok := d.CurrentValue(hash, nowNs)
		if !ok {
			continue
		}
		remaining := at.cfg.Threshold - at.tracker().SumOverPastBuckets(hash) - current
		if remaining <= 0 {
			if at.tracker().DetectAndDeclareHash(nowNs, nowNs/1e9, currBucketNum, hash, current) && m.Stats != nil {
				m.Stats.AnomaliesFired.WithLabelValues(m.key.String(), fmt.Sprintf("%d", at.cfg.ID)).Inc()
			}
			at.alarm.StopAlarm(context.Background(), key)
			continue
		}
		projectedBreachNs := nowNs + remaining
		at.alarm.StartAlarm(context.Background(), mc.ID, key, projectedBreachNs, at.cfg.Threshold+1, currBucketNum)
	}
}

// FlushAndDetect closes any bucket that has aged out as of nowNs for every
// producer, then runs anomaly detection over each alert's linked metric
// (§4.9 "On bucket rollover ... the anomaly tracker consumes those to
// detect threshold breaches").
func (m *MetricsManager) FlushAndDetect(nowNs, nowWallSec int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.producers {
		p.FlushIfNeeded(nowNs)
	}
	for _, at := range m.alerts {
		mc, ok := m.metricByID[at.cfg.MetricID]
		if !ok {
			continue
		}
		p := m.producers[mc.ID]
		if p == nil {
			continue
		}
		past := p.DumpAndClear(false)
		bucketCfg := bucket.Config{TimeBaseNs: mc.TimeBaseNs, BucketSizeNs: mc.BucketSizeNs}
		currBucketNum := bucketCfg.NumFor(nowNs)
		tracker := at.tracker()
		for h, entries := range past {
			for _, entry := range entries {
				tracker.AddPastBucket(int64(entry.Num), map[uint64]int64{h: int64(entry.Value)})
			}
			currentPartial, _ := p.CurrentValue(h, nowNs)
			if tracker.DetectAndDeclareHash(nowNs, nowWallSec, int64(currBucketNum), h, currentPartial) {
				if m.Stats != nil {
					m.Stats.AnomaliesFired.WithLabelValues(m.key.String(), fmt.Sprintf("%d", at.cfg.ID)).Inc()
				}
			}
		}
	}
}

// DumpReport serializes every producer's past buckets into the outbound
// report envelope (§6 "Outbound report"), clearing them if clear is true.
func (m *MetricsManager) DumpReport(clear bool) report.Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := report.Report{ConfigKey: m.key.String()}
	for id, mc := range m.metricByID {
		p := m.producers[id]
		if p == nil {
			continue
		}
		byDim := p.DumpAndClear(clear)
		mr := report.MetricReport{
			MetricID:     mc.ID,
			TimeBaseNs:   mc.TimeBaseNs,
			BucketSizeNs: mc.BucketSizeNs,
			GuardrailHit: p.GuardrailHit(),
			Active:       len(byDim) > 0,
		}
		for h, past := range byDim {
			mr.Dimensions = append(mr.Dimensions, report.DimensionEntry{
				DimensionHash: h,
				Past:          past,
			})
		}
		r.Metrics = append(r.Metrics, mr)
	}
	if m.Stats != nil {
		m.Stats.ReportsDumped.WithLabelValues(m.key.String()).Inc()
	}
	return r
}

// PullReceived delivers a puller's asynchronous response to the gauge
// producer that requested it. Pending responses for a removed
// configuration are dropped by virtue of the manager (and its producers)
// no longer existing (§5 "Cancellation").
func (m *MetricsManager) PullReceived(ctx context.Context, metricID int64, mk dimension.MetricKey, nowNs int64) {
	m.mu.Lock()
	p, ok := m.producers[metricID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if g, isGauge := p.(*producer.Gauge); isGauge {
		g.PullNow(ctx, mk, nowNs)
	}
}
