package instrument

import (
	"context"
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
)

// Guard wraps an AmplitudeSource and refuses any level that would put more
// than Ceiling dBm at the input of the device under test. A refused level
// never reaches the wrapped source.
type Guard struct {
	AmplitudeSource

	ceiling     float64
	attenuation float64
	frequency   float64
}

// NewGuard creates a Guard. attenuation is the inline attenuation in dB
// between the generator and the DUT.
func NewGuard(src AmplitudeSource, ceiling, attenuation float64) (*Guard, error) {
	if src == nil {
		return nil, fault.NewConfigError("instrument.Guard: amplitude source is required")
	}
	if math.IsNaN(ceiling) || math.IsInf(ceiling, 0) {
		return nil, fault.NewConfigError("instrument.Guard: ceiling must be finite: %g", ceiling)
	}
	if math.IsNaN(attenuation) || attenuation < 0 {
		return nil, fault.NewConfigError("instrument.Guard: attenuation must not be negative: %g", attenuation)
	}

	return &Guard{AmplitudeSource: src, ceiling: ceiling, attenuation: attenuation}, nil
}

// Check returns a SafetyViolation if generator level dbm is not allowed.
func (g *Guard) Check(dbm float64) error {
	atDUT := dbm - g.attenuation
	if math.IsNaN(dbm) || atDUT > g.ceiling {
		return &fault.SafetyViolation{
			Requested:   dbm,
			Ceiling:     g.ceiling,
			Attenuation: g.attenuation,
			Context:     fault.At(g.frequency).WithAmplitude(atDUT),
		}
	}
	return nil
}

// SetAmplitude sets the generator level after checking it against the ceiling.
func (g *Guard) SetAmplitude(ctx context.Context, dbm float64) error {
	if err := g.Check(dbm); err != nil {
		return err
	}
	return g.AmplitudeSource.SetAmplitude(ctx, dbm)
}

// SetDUTAmplitude sets the generator so that dbm arrives at the DUT input.
func (g *Guard) SetDUTAmplitude(ctx context.Context, dbm float64) error {
	return g.SetAmplitude(ctx, dbm+g.attenuation)
}

func (g *Guard) SetFrequency(ctx context.Context, hz float64) error {
	if err := g.AmplitudeSource.SetFrequency(ctx, hz); err != nil {
		return err
	}
	g.frequency = hz
	return nil
}
