package chroma

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// DefaultFilterSize is the default number of observations averaged
const DefaultFilterSize = 32

// RunningAverage keeps the last filterSize (class, weight) observations and a
// per-class running sum of their weights.
//
// Every stored weight is pre-divided by filterSize, so accumulator[c] is the
// mean contribution of class c over the window rather than a sum. Invariant:
// accumulator[c] == sum of weights[i] where classes[i] == c.
//
// Observe is O(1): the slot under the pointer is evicted from its class before
// the new observation is written and added. Nothing is allocated after
// construction.
type RunningAverage struct {
	accumulator [NumClasses]float64
	classes     []uint8
	weights     []float64
	pointer     int
	threshold   float64
}

// NewRunningAverage creates a smoother over filterSize observations.
// Best reports no detection while the leading class is below threshold.
func NewRunningAverage(filterSize int, threshold float64) (*RunningAverage, error) {
	if filterSize <= 0 {
		return nil, fmt.Errorf("filter size must be positive, got %d", filterSize)
	}

	return &RunningAverage{
		classes:   make([]uint8, filterSize),
		weights:   make([]float64, filterSize),
		threshold: threshold,
	}, nil
}

// Observe records one observation, evicting the oldest one. A NaN or infinite
// weight is ignored; it would stay in the accumulator after its eviction.
func (ra *RunningAverage) Observe(class int, weight float64) {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return
	}
	class = Normalize(class)
	p := ra.pointer

	ra.accumulator[ra.classes[p]] -= ra.weights[p]

	ra.classes[p] = uint8(class)
	ra.weights[p] = weight / float64(len(ra.weights))
	ra.accumulator[class] += ra.weights[p]

	ra.pointer = (p + 1) % len(ra.weights)
}

// Best returns the class with the highest accumulated weight and that weight.
// Ties go to the lowest class. ok is false when the weight is below the
// threshold ("no detection").
func (ra *RunningAverage) Best() (class int, weight float64, ok bool) {
	class = floats.MaxIdx(ra.accumulator[:])
	weight = ra.accumulator[class]
	return class, weight, weight >= ra.threshold
}

// Accumulator returns the running mean weight of a class
func (ra *RunningAverage) Accumulator(class int) float64 {
	return ra.accumulator[Normalize(class)]
}

// Reset zeroes the ring buffers, accumulators and pointer
func (ra *RunningAverage) Reset() {
	ra.accumulator = [NumClasses]float64{}
	for i := range ra.weights {
		ra.classes[i] = 0
		ra.weights[i] = 0
	}
	ra.pointer = 0
}

// SetThreshold changes the detection threshold. Estimator confidences are not
// comparable, so callers switch thresholds together with a Reset.
func (ra *RunningAverage) SetThreshold(threshold float64) {
	ra.threshold = threshold
}

// Threshold returns the current detection threshold
func (ra *RunningAverage) Threshold() float64 {
	return ra.threshold
}

// FilterSize returns the window length
func (ra *RunningAverage) FilterSize() int {
	return len(ra.weights)
}
