package compression

import (
	"errors"
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"gonum.org/v1/gonum/stat"
)

// Point is one step of an amplitude sweep.
type Point struct {
	Requested float64 // Amplitude at the DUT input in dBm
	Measured  float64 // Power reported by the receiver in dBm
}

// Result is the compression point of one test frequency. When Reached is
// false, Amplitude is the ceiling: compression did not occur within the sweep.
type Result struct {
	Frequency float64
	Amplitude float64
	Reached   bool
}

// Trend is the small-signal linear fit: Measured = Intercept + Slope*Requested.
type Trend struct {
	Intercept float64
	Slope     float64
}

// At evaluates the trend at amplitude.
func (t Trend) At(amplitude float64) float64 {
	return t.Intercept + t.Slope*amplitude
}

// Detector finds the 1 dB compression point of one test frequency from a
// stream of sweep points. Create a new Detector per frequency.
type Detector struct {
	cfg       Config
	frequency float64

	points []Point
	trend  *Trend
	result *Result
}

func NewDetector(cfg Config, frequency float64) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, frequency: frequency}, nil
}

// Observe adds the next sweep point. It returns done = true together with the
// compression point once the measurement departs from the fitted trend by at
// least the threshold. Points must arrive in increasing requested amplitude.
func (d *Detector) Observe(p Point) (Result, bool, error) {
	if d.result != nil {
		return *d.result, true, nil
	}

	ctx := fault.At(d.frequency).WithAmplitude(p.Requested)

	if math.IsNaN(p.Measured) || math.IsInf(p.Measured, 0) {
		return Result{}, false, fault.NewNumericalError(ctx, "non-finite measurement %g", p.Measured)
	}
	if p.Requested >= d.cfg.Ceiling {
		return Result{}, false, fault.NewConfigError("compression.Detector: requested %g dBm at or above ceiling %g dBm", p.Requested, d.cfg.Ceiling)
	}
	if n := len(d.points); n > 0 && p.Requested <= d.points[n-1].Requested {
		return Result{}, false, fault.NewConfigError("compression.Detector: requested amplitude %g does not increase past %g", p.Requested, d.points[n-1].Requested)
	}

	d.points = append(d.points, p)

	if d.trend == nil {
		if len(d.points) == d.cfg.Warmup {
			t, err := fit(d.points)
			if err != nil {
				return Result{}, false, fault.NewNumericalError(ctx, "%v", err)
			}
			d.trend = &t
		}
		return Result{}, false, nil
	}

	residual := d.trend.At(p.Requested) - p.Measured
	if math.Abs(residual) >= d.cfg.Threshold {
		d.result = &Result{Frequency: d.frequency, Amplitude: p.Requested, Reached: true}
		return *d.result, true, nil
	}

	return Result{}, false, nil
}

// NotReached returns the sentinel result reported when the sweep ends at the
// ceiling without compression.
func (d *Detector) NotReached() Result {
	return Result{Frequency: d.frequency, Amplitude: d.cfg.Ceiling, Reached: false}
}

// Trend returns the fitted trend, false before the warm-up completes.
func (d *Detector) Trend() (Trend, bool) {
	if d.trend == nil {
		return Trend{}, false
	}
	return *d.trend, true
}

// Points returns a copy of the observed points.
func (d *Detector) Points() []Point {
	out := make([]Point, len(d.points))
	copy(out, d.points)
	return out
}

func fit(points []Point) (Trend, error) {
	if len(points) < 2 {
		return Trend{}, errors.New("linear fit needs at least 2 points")
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.Requested, p.Measured
	}

	if v := stat.Variance(xs, nil); !(v > 0) {
		return Trend{}, errors.New("linear fit over constant amplitudes")
	}

	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) || math.IsNaN(beta) || math.IsInf(beta, 0) {
		return Trend{}, errors.New("linear fit has non-finite coefficients")
	}

	return Trend{Intercept: alpha, Slope: beta}, nil
}
