package manager

import "github.com/prometheus/client_golang/prometheus"

// Stats is the injectable statistics dependency named in §9 DESIGN NOTES
// ("the statistics singleton (StatsdStats) ... should be expressed as
// explicit dependencies injected into the metrics manager at construction,
// defaulting to a shared process-wide instance for production and
// per-test instances for tests"). Every counter is labeled by config key so
// a shared *Stats can serve multiple MetricsManagers.
type Stats struct {
	AtomsProcessed    *prometheus.CounterVec
	AtomsDropped      *prometheus.CounterVec
	GuardrailHits     *prometheus.CounterVec
	MatcherMatches    *prometheus.CounterVec
	AnomaliesFired    *prometheus.CounterVec
	PullFailures      *prometheus.CounterVec
	ReportsDumped     *prometheus.CounterVec
	RPCAAnomalousness *prometheus.GaugeVec
}

// NewStats registers a fresh set of counters against reg. Passing a
// per-test *prometheus.Registry (rather than prometheus.DefaultRegisterer)
// gives each test its own namespace, per §9's "per-test instances for
// tests" guidance.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		AtomsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "atoms_processed_total",
			Help: "Atoms successfully dispatched to at least one matcher.",
		}, []string{"config_key"}),
		AtomsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "atoms_dropped_total",
			Help: "Atoms dropped before dispatch (stale timestamp, disallowed log source).",
		}, []string{"config_key", "reason"}),
		GuardrailHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "guardrail_hits_total",
			Help: "Hard dimension/memory guardrail hits by metric.",
		}, []string{"config_key", "metric_id"}),
		MatcherMatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "matcher_matches_total",
			Help: "Successful atom matcher evaluations.",
		}, []string{"config_key"}),
		AnomaliesFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "anomalies_fired_total",
			Help: "Anomaly declarations by alert.",
		}, []string{"config_key", "alert_id"}),
		PullFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "pull_failures_total",
			Help: "Gauge pull invocations that errored or missed their deadline.",
		}, []string{"config_key", "metric_id"}),
		ReportsDumped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "statsd", Name: "reports_dumped_total",
			Help: "Report dump calls served.",
		}, []string{"config_key"}),
		RPCAAnomalousness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "statsd", Name: "anomaly_rpca_anomalousness",
			Help: "Most recent advisory RPCA anomalousness score attached to a declaration, by alert.",
		}, []string{"config_key", "alert_id"}),
	}
	reg.MustRegister(
		s.AtomsProcessed, s.AtomsDropped, s.GuardrailHits,
		s.MatcherMatches, s.AnomaliesFired, s.PullFailures, s.ReportsDumped,
		s.RPCAAnomalousness,
	)
	return s
}
