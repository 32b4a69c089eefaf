package util

import (
	"math"
)

// --------------------------------------------------------------------------
// Sample Statistics
// --------------------------------------------------------------------------

// Stats summarizes a sample of float64 values. It is used for the anomaly
// detector's sliding windows, the cache's inter-access interval features and
// the storage engine's value size reporting.
type Stats struct {
	Count        int     `json:"count"`
	Mean         float64 `json:"mean"`
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
}

// NewStats computes mean, population standard deviation, minimum and maximum
// of the given values. An empty sample yields the zero Stats.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	// calculate sum for mean
	var sum float64
	for _, v := range values {
		sum += v

		// update min and max while iterating
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	// calculate mean
	mean := sum / float64(len(values))

	// calculate sum of squared differences from mean
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// calculate standard deviation (population formula)
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	return Stats{
		Count:        len(values),
		Mean:         mean,
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
	}
}

// ZScore returns how many standard deviations the given value lies above the
// sample mean. The boolean is false when the sample has no spread (zero
// standard deviation), in which case no meaningful score exists.
func (s Stats) ZScore(value float64) (float64, bool) {
	if s.StdDeviation <= 0 {
		return 0, false
	}
	return (value - s.Mean) / s.StdDeviation, true
}

// Mean is a convenience shortcut for the mean of a sample.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
