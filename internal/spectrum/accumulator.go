package spectrum

import (
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
)

// Reduction selects the per-bin statistic computed across repeated frames.
type Reduction string

const (
	// ReduceMean is the default: arithmetic mean per bin.
	ReduceMean Reduction = "mean"
	// ReduceMax keeps the per-bin maximum, which keeps narrow spurs visible.
	ReduceMax Reduction = "max"
)

var validReductions = map[Reduction]struct{}{
	ReduceMean: {},
	ReduceMax:  {},
}

func (r Reduction) String() string {
	return string(r)
}

// Validate checks that r is a known reduction. The zero value means ReduceMean.
func (r Reduction) Validate() error {
	if r == "" {
		return nil
	}
	if _, ok := validReductions[r]; !ok {
		return fault.NewConfigError("spectrum.Reduction: invalid reduction: %s", r)
	}
	return nil
}

// Accumulator reduces repeated power frames of one center frequency to a
// single power-per-bin array. Frames are folded in as they arrive, so memory
// does not grow with the number of averages.
type Accumulator struct {
	reduction Reduction
	acc       []float64
	n         int
}

// NewAccumulator creates an accumulator for frames of fftLen bins.
func NewAccumulator(fftLen int, reduction Reduction) (*Accumulator, error) {
	if fftLen <= 0 {
		return nil, fault.NewConfigError("spectrum.Accumulator: frame length must be positive: %d", fftLen)
	}
	if reduction == "" {
		reduction = ReduceMean
	}
	if err := reduction.Validate(); err != nil {
		return nil, err
	}

	return &Accumulator{
		reduction: reduction,
		acc:       make([]float64, fftLen),
	}, nil
}

// Add folds one frame of linear power values into the running statistic.
func (a *Accumulator) Add(frame []float64) error {
	if len(frame) != len(a.acc) {
		return fault.NewConfigError("spectrum.Accumulator: frame length %d, expected %d", len(frame), len(a.acc))
	}
	for i, v := range frame {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fault.NewNumericalError(fault.Context{Segment: -1}, "non-finite power %g in bin %d of frame %d", v, i, a.n)
		}
	}

	a.n++
	switch a.reduction {
	case ReduceMax:
		if a.n == 1 {
			copy(a.acc, frame)
			return nil
		}
		for i, v := range frame {
			a.acc[i] = max(a.acc[i], v)
		}

	default:
		// Running mean: m_n = m_{n-1} + (x - m_{n-1}) / n
		inv := 1 / float64(a.n)
		for i, v := range frame {
			a.acc[i] += (v - a.acc[i]) * inv
		}
	}

	return nil
}

// Count returns the number of frames folded in since the last Reset.
func (a *Accumulator) Count() int {
	return a.n
}

// Result returns a copy of the reduced power array.
func (a *Accumulator) Result() ([]float64, error) {
	if a.n == 0 {
		return nil, fault.NewNumericalError(fault.Context{Segment: -1}, "no frames accumulated")
	}
	out := make([]float64, len(a.acc))
	copy(out, a.acc)
	return out, nil
}

// Reset clears the accumulator for the next center frequency.
func (a *Accumulator) Reset() {
	clear(a.acc)
	a.n = 0
}
