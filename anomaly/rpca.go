package anomaly

import (
	"github.com/berkmancenter/rpca"
)

// RPCAScorer attaches an advisory robust-PCA anomalousness score to
// already-declared anomalies. It never gates declaration itself — Tracker's
// sum-over-threshold rule remains the sole detector — it only enriches the
// declaration with a score a downstream consumer can rank by.
//
// Grounded on the teacher's RPCADetector (rpca_detector.go): a per-series
// sliding window of length MinorFrequency fed to rpca.FindAnomalies with the
// same MajorFrequency/AutoDiff options.
type RPCAScorer struct {
	MajorFrequency int
	MinorFrequency int
	AutoDiff       bool

	series map[uint64][]float64
}

func NewRPCAScorer(majorFrequency, minorFrequency int, autoDiff bool) *RPCAScorer {
	return &RPCAScorer{
		MajorFrequency: majorFrequency,
		MinorFrequency: minorFrequency,
		AutoDiff:       autoDiff,
		series:         map[uint64][]float64{},
	}
}

// Score is the advisory result attached to a declared anomaly.
type Score struct {
	Anomalous     bool
	Anomalousness float64
	Normed        float64
}

// Observe appends value to hash's sliding window and, once the window has
// accumulated MinorFrequency points, returns a Score for the most recent
// point; ok is false while the window is still filling. hash identifies the
// series (a dimension.Key.Hash(), or the bare hash a hash-only caller such
// as Tracker.DetectAndDeclareHash already keys its own state by) rather than
// a dimension.Key directly, so per-dimension windows never collapse onto
// each other when only the hash is available.
func (r *RPCAScorer) Observe(hash uint64, value float64) (score Score, ok bool) {
	if r.MajorFrequency <= 0 || r.MinorFrequency <= 0 {
		return Score{}, false
	}
	win := append(r.series[hash], value)
	if len(win) > r.MinorFrequency {
		win = win[len(win)-r.MinorFrequency:]
	}
	r.series[hash] = win
	if len(win) < r.MinorFrequency {
		return Score{}, false
	}

	anoms := rpca.FindAnomalies(win, rpca.Frequency(r.MajorFrequency), rpca.AutoDiff(r.AutoDiff))
	i := len(anoms.Values) - 1
	return Score{
		Anomalous:     anoms.Positions[i],
		Anomalousness: anoms.Values[i],
		Normed:        anoms.NormedValues[i],
	}, true
}
