package spectrum

import (
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"gonum.org/v1/gonum/dsp/window"
	"gonum.org/v1/gonum/floats"
)

// DefaultImpedance is the system impedance in ohms used to convert power to dBm.
const DefaultImpedance = 50.0

// WindowKind names a spectral window.
type WindowKind string

const (
	FlatTop        WindowKind = "flattop"
	Hann           WindowKind = "hann"
	BlackmanHarris WindowKind = "blackman-harris"
	Rectangular    WindowKind = "rectangular"
)

var windowFuncs = map[WindowKind]func([]float64) []float64{
	FlatTop:        window.FlatTop,
	Hann:           window.Hann,
	BlackmanHarris: window.BlackmanHarris,
	Rectangular:    window.Rectangular,
}

func (k WindowKind) String() string {
	return string(k)
}

// Validate checks that k is a known window. The zero value means FlatTop.
func (k WindowKind) Validate() error {
	if k == "" {
		return nil
	}
	if _, ok := windowFuncs[k]; !ok {
		return fault.NewConfigError("spectrum.WindowKind: invalid window: %s", k)
	}
	return nil
}

// WindowTaps returns n taps of the given window.
func WindowTaps(kind WindowKind, n int) ([]float64, error) {
	if kind == "" {
		kind = FlatTop
	}
	fn, ok := windowFuncs[kind]
	if !ok {
		return nil, fault.NewConfigError("spectrum.WindowKind: invalid window: %s", kind)
	}
	if n <= 0 {
		return nil, fault.NewConfigError("spectrum.WindowTaps: length must be positive: %d", n)
	}

	taps := make([]float64, n)
	for i := range taps {
		taps[i] = 1
	}
	return fn(taps), nil
}

// PowerScalar returns the dB offset that converts raw FFT bin power to dBm
// across impedance: -10*log10(len(taps) * sum(w^2) * impedance).
//
// No receiver gain compensation is applied; callers that need absolute power
// apply a scale factor from a power calibration run.
func PowerScalar(taps []float64, impedance float64) (float64, error) {
	if len(taps) == 0 {
		return 0, fault.NewConfigError("spectrum.PowerScalar: empty window")
	}
	if impedance <= 0 {
		return 0, fault.NewConfigError("spectrum.PowerScalar: impedance must be positive: %g", impedance)
	}

	energy := floats.Dot(taps, taps)
	if energy <= 0 {
		return 0, fault.NewNumericalError(fault.Context{Segment: -1}, "window energy %g is not positive", energy)
	}

	return -10 * math.Log10(float64(len(taps))*energy*impedance), nil
}

// ENBW returns the equivalent noise bandwidth in Hz of a window at sampleRate:
// fs * sum(w^2) / sum(w)^2. For a discrete system this is the resolution
// bandwidth of a bin.
func ENBW(taps []float64, sampleRate float64) float64 {
	s := floats.Sum(taps)
	if s == 0 {
		return math.Inf(1)
	}
	return sampleRate * floats.Dot(taps, taps) / (s * s)
}

// NENBW returns ENBW normalized to the bin width, in bins.
func NENBW(taps []float64) float64 {
	return ENBW(taps, float64(len(taps)))
}
