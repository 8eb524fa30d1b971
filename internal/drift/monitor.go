// Package drift evaluates recent scoring behavior against a statistical
// baseline to decide whether the active model has degraded.
package drift

import (
	"math"
	"sort"
)

const (
	// DefaultMinSamples guards against evaluating noise: below this the
	// monitor reports an explicit insufficient-data no-op.
	DefaultMinSamples = 20
	// DefaultThreshold is the outlier fraction above which drift is
	// declared.
	DefaultThreshold = 0.35

	// Robust z-score cut-off for flagging a single sample as an outlier.
	outlierZ = 3.5
	// Scale factor relating MAD to the standard deviation of a normal
	// distribution.
	madScale = 0.6745
)

// Monitor computes the outlier fraction of a recent score window.
type Monitor struct {
	MinSamples int
	Threshold  float64
}

// NewMonitor returns a monitor with the default window guard and
// threshold.
func NewMonitor() *Monitor {
	return &Monitor{MinSamples: DefaultMinSamples, Threshold: DefaultThreshold}
}

// Evaluation is the outcome of one drift check.
type Evaluation struct {
	DriftScore    float64
	DriftDetected bool
	// Evaluated is false when the window was too small to judge.
	Evaluated bool
	Samples   int
}

// Evaluate flags samples whose robust z-score (median/MAD) exceeds the
// cut-off and reports the flagged fraction as the drift score. The
// computation is deterministic for a fixed input sequence.
func (m *Monitor) Evaluate(scores []float64) Evaluation {
	if len(scores) < m.MinSamples {
		return Evaluation{Samples: len(scores)}
	}

	med := median(scores)

	deviations := make([]float64, len(scores))
	for i, s := range scores {
		deviations[i] = math.Abs(s - med)
	}
	mad := median(deviations)

	outliers := 0
	for _, s := range scores {
		if isOutlier(s, med, mad) {
			outliers++
		}
	}

	score := float64(outliers) / float64(len(scores))
	return Evaluation{
		DriftScore:    score,
		DriftDetected: score > m.Threshold,
		Evaluated:     true,
		Samples:       len(scores),
	}
}

func isOutlier(v, med, mad float64) bool {
	if mad == 0 {
		// Degenerate window: everything sits on the median; anything
		// that doesn't is an outlier.
		return math.Abs(v-med) > 1e-9
	}
	return madScale*math.Abs(v-med)/mad > outlierZ
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
