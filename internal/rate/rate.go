// Package rate maintains an exponentially-weighted estimate of frame
// processing throughput.
package rate

const (
	// Blend weights for the exponential moving average. Heavy history
	// weighting keeps the reported fps stable under per-frame jitter.
	historyWeight = 0.9
	sampleWeight  = 0.1
)

// Estimator smooths instantaneous processing rates into a single scalar.
// It tracks recent throughput, not a ceiling: the estimate moves in both
// directions.
//
// Estimator is not safe for concurrent use; it is owned by the frame
// pipeline.
type Estimator struct {
	estimate float64
	seeded   bool
}

// NewEstimator returns an Estimator with no samples. The first sample seeds
// the estimate directly instead of being blended against zero.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Update folds one elapsed-time sample (in seconds) into the estimate and
// returns the smoothed rate. A non-positive elapsed time contributes an
// instantaneous rate of 0 rather than a division fault.
func (e *Estimator) Update(elapsedSeconds float64) float64 {
	instantaneous := 0.0
	if elapsedSeconds > 0 {
		instantaneous = 1.0 / elapsedSeconds
	}

	if !e.seeded {
		e.estimate = instantaneous
		e.seeded = true
	} else {
		e.estimate = historyWeight*e.estimate + sampleWeight*instantaneous
	}
	return e.estimate
}

// Estimate returns the current smoothed rate (0 before any sample).
func (e *Estimator) Estimate() float64 {
	return e.estimate
}
