// Package calibration computes the power scale factor that maps a receiver's
// uncalibrated readings onto a reference power meter's absolute scale.
package calibration

import (
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"gonum.org/v1/gonum/stat"
)

// DefaultImpedance is the system impedance in ohms.
const DefaultImpedance = 50.0

// Pair is one matched measurement: the reference meter and the device under
// test observing the same signal, both in dBm.
type Pair struct {
	Reference float64 `json:"reference"`
	Device    float64 `json:"device"`
}

// DBmToVolts converts power in dBm to RMS voltage across r ohms.
func DBmToVolts(dbm, r float64) float64 {
	return math.Sqrt(math.Pow(10, dbm/10) * 1e-3 * r)
}

// VoltsToDBm converts RMS voltage across r ohms to power in dBm.
func VoltsToDBm(v, r float64) float64 {
	return 10 * math.Log10(v*v/(r*1e-3))
}

// ScaleFactor returns mean(V_reference) / mean(V_device) for two equal-length
// sequences of dBm readings.
func ScaleFactor(reference, device []float64, r float64) (float64, error) {
	if len(reference) == 0 {
		return 0, fault.NewConfigError("calibration.ScaleFactor: no measurements")
	}
	if len(reference) != len(device) {
		return 0, fault.NewConfigError("calibration.ScaleFactor: %d reference and %d device measurements", len(reference), len(device))
	}
	if !(r > 0) {
		return 0, fault.NewConfigError("calibration.ScaleFactor: impedance must be positive: %g", r)
	}

	refV, err := toVolts(reference, r, "reference")
	if err != nil {
		return 0, err
	}
	devV, err := toVolts(device, r, "device")
	if err != nil {
		return 0, err
	}

	num, den := stat.Mean(refV, nil), stat.Mean(devV, nil)
	if !(den > 0) {
		return 0, fault.NewNumericalError(fault.Context{Segment: -1}, "device mean voltage %g is not positive", den)
	}

	k := num / den
	if !(k > 0) || math.IsInf(k, 0) {
		return 0, fault.NewNumericalError(fault.Context{Segment: -1}, "scale factor %g is not a positive finite number", k)
	}
	return k, nil
}

// ScalePairs is ScaleFactor over paired readings.
func ScalePairs(pairs []Pair, r float64) (float64, error) {
	reference := make([]float64, len(pairs))
	device := make([]float64, len(pairs))
	for i, p := range pairs {
		reference[i], device[i] = p.Reference, p.Device
	}
	return ScaleFactor(reference, device, r)
}

// Apply maps a device reading in dBm onto the reference scale.
func Apply(dbm, factor, r float64) float64 {
	return VoltsToDBm(DBmToVolts(dbm, r)*factor, r)
}

// MeanPowerDBm returns the mean power of IQ samples in dBm after scaling each
// sample by factor: 30 + 10*log10(mean(|k*x|^2) / r).
func MeanPowerDBm(samples []complex128, factor, r float64) (float64, error) {
	if len(samples) == 0 {
		return 0, fault.NewConfigError("calibration.MeanPowerDBm: no samples")
	}
	if !(r > 0) {
		return 0, fault.NewConfigError("calibration.MeanPowerDBm: impedance must be positive: %g", r)
	}

	var sum float64
	for _, s := range samples {
		re, im := real(s)*factor, imag(s)*factor
		sum += re*re + im*im
	}
	ms := sum / float64(len(samples))

	if !(ms > 0) || math.IsInf(ms, 0) {
		return 0, fault.NewNumericalError(fault.Context{Segment: -1}, "mean square %g of %d samples is not positive", ms, len(samples))
	}
	return 30 + 10*math.Log10(ms/r), nil
}

func toVolts(dbm []float64, r float64, name string) ([]float64, error) {
	out := make([]float64, len(dbm))
	for i, v := range dbm {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fault.NewNumericalError(fault.Context{Segment: -1}, "%s measurement %d is not finite: %g", name, i, v)
		}
		out[i] = DBmToVolts(v, r)
	}
	return out, nil
}
