package compression

import (
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
)

// Config drives the amplitude sweep of one test frequency. All levels are at
// the input of the device under test.
type Config struct {
	Floor       float64 `yaml:"floor" json:"floor"`             // First requested amplitude in dBm
	Ceiling     float64 `yaml:"ceiling" json:"ceiling"`         // Protection ceiling in dBm, never requested
	Step        float64 `yaml:"step" json:"step"`               // Amplitude increment in dB
	Warmup      int     `yaml:"warmup" json:"warmup"`           // Points used to fit the linear trend
	Threshold   float64 `yaml:"threshold" json:"threshold"`     // Deviation from the trend that marks compression, dB
	Attenuation float64 `yaml:"attenuation" json:"attenuation"` // Inline attenuation between generator and DUT, dB
}

// DefaultConfig returns the conventional P1dB sweep: -60 dBm to -15 dBm in
// 1 dB steps, 10 warm-up points and a 1 dB threshold.
func DefaultConfig() Config {
	return Config{
		Floor:     -60,
		Ceiling:   -15,
		Step:      1,
		Warmup:    10,
		Threshold: 1,
	}
}

func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"floor":       c.Floor,
		"ceiling":     c.Ceiling,
		"step":        c.Step,
		"threshold":   c.Threshold,
		"attenuation": c.Attenuation,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fault.NewConfigError("compression.Config: %s must be finite", name)
		}
	}
	if c.Floor >= c.Ceiling {
		return fault.NewConfigError("compression.Config: floor %g must be below ceiling %g", c.Floor, c.Ceiling)
	}
	if c.Step <= 0 {
		return fault.NewConfigError("compression.Config: step must be positive: %g", c.Step)
	}
	if c.Threshold <= 0 {
		return fault.NewConfigError("compression.Config: threshold must be positive: %g", c.Threshold)
	}
	if c.Attenuation < 0 {
		return fault.NewConfigError("compression.Config: attenuation must not be negative: %g", c.Attenuation)
	}
	if c.Warmup < 2 {
		return fault.NewConfigError("compression.Config: warmup needs at least 2 points for a fit: %d", c.Warmup)
	}
	if n := len(c.Amplitudes()); n <= c.Warmup {
		return fault.NewConfigError("compression.Config: sweep has %d points, not more than warmup %d", n, c.Warmup)
	}
	return nil
}

// Amplitudes returns the requested amplitudes Floor, Floor+Step, ... strictly
// below Ceiling.
func (c Config) Amplitudes() []float64 {
	if c.Step <= 0 || c.Floor >= c.Ceiling {
		return nil
	}

	var out []float64
	for i := 0; ; i++ {
		a := c.Floor + float64(i)*c.Step
		if a >= c.Ceiling {
			break
		}
		out = append(out, a)
	}
	return out
}

// GeneratorLevel returns the signal generator level that puts amplitude at
// the DUT input.
func (c Config) GeneratorLevel(amplitude float64) float64 {
	return amplitude + c.Attenuation
}
