package app

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	defaultMinPower = -120.0
	defaultMaxPower = -20.0

	// Below this many values the full range is used instead of percentiles.
	minimumSampleCount = 20
)

// PowerBounds is the vertical range of a chart in dB.
type PowerBounds struct {
	Min  float64
	Max  float64
	Mean float64
}

func defaultPowerBounds() PowerBounds {
	return PowerBounds{
		Min:  defaultMinPower,
		Max:  defaultMaxPower,
		Mean: (defaultMinPower + defaultMaxPower) / 2,
	}
}

// NewPowerBounds computes bounds from the [p, 1-p] percentiles of values,
// widened to at least minRange dB, plus a 10% margin. Non-finite values are
// ignored.
func NewPowerBounds(values []float64, p, minRange float64) PowerBounds {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return defaultPowerBounds()
	}
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if len(sorted) >= minimumSampleCount && p > 0 {
		lo = stat.Quantile(p, stat.Empirical, sorted, nil)
		hi = stat.Quantile(1-p, stat.Empirical, sorted, nil)
	}

	if hi-lo < minRange {
		center := (hi + lo) / 2
		lo, hi = center-minRange/2, center+minRange/2
	}

	margin := (hi - lo) / 10
	return PowerBounds{
		Min:  math.Floor(lo - margin),
		Max:  math.Ceil(hi + margin),
		Mean: stat.Mean(sorted, nil),
	}
}

// Override replaces the bounds with manual limits where given.
func (b PowerBounds) Override(minPower, maxPower *float64) PowerBounds {
	if minPower != nil {
		b.Min = *minPower
	}
	if maxPower != nil {
		b.Max = *maxPower
	}
	if b.Max <= b.Min {
		b.Max = b.Min + 1
	}
	return b
}
