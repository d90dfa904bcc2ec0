// Package confidence turns reranker scores into a calibrated confidence level.
package confidence

import "math"

// Level is a discretized confidence.
type Level string

const (
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// Result is the confidence derived from a set of reranked passages.
type Result struct {
	Level Level   `json:"level"`
	Score float64 `json:"score"`
}

// None is the result for an empty candidate set and for degraded answers.
var None = Result{Level: Low, Score: 0}

// Calibration maps a relevance model's raw score range onto [0, 1].
// The defaults fit ms-marco cross-encoders, whose logits fall roughly in [-10, 10].
// A different scoring model needs its own Offset and Span.
type Calibration struct {
	Offset float64
	Span   float64
	// Window is how many of the top scores are averaged
	Window int
	High   float64
	Medium float64
}

// DefaultCalibration returns the ms-marco calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		Offset: 10,
		Span:   20,
		Window: 3,
		High:   0.7,
		Medium: 0.4,
	}
}

// Estimator computes confidence from rerank scores.
type Estimator struct {
	cal Calibration
}

// NewEstimator creates an estimator. Non-positive Span or Window fall back to defaults.
func NewEstimator(cal Calibration) *Estimator {
	def := DefaultCalibration()
	if cal.Span <= 0 {
		cal.Span = def.Span
	}
	if cal.Window <= 0 {
		cal.Window = def.Window
	}
	return &Estimator{cal: cal}
}

// Estimate averages the first Window scores, which must already be in
// descending rerank order, and normalizes the average.
func (e *Estimator) Estimate(scores []float64) Result {
	if len(scores) == 0 {
		return None
	}

	n := min(len(scores), e.cal.Window)
	var sum float64
	for _, s := range scores[:n] {
		sum += s
	}
	avg := sum / float64(n)

	score := clamp((avg+e.cal.Offset)/e.cal.Span, 0, 1)
	return Result{Level: e.Classify(score), Score: score}
}

// Classify buckets a normalized score. Thresholds are exclusive.
func (e *Estimator) Classify(score float64) Level {
	switch {
	case score > e.cal.High:
		return High
	case score > e.cal.Medium:
		return Medium
	default:
		return Low
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
