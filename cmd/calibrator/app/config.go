package app

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/roman-kulish/radio-calibration/internal/compression"
	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/instrument/scpi"
	"github.com/roman-kulish/radio-calibration/internal/instrument/sim"
	"github.com/roman-kulish/radio-calibration/internal/metrics"
	"github.com/roman-kulish/radio-calibration/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-calibration/internal/sdr/rtl"
	"github.com/roman-kulish/radio-calibration/internal/sdr/uhd"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
	"gopkg.in/yaml.v3"
)

const (
	RadioUHD    RadioType = "uhd"
	RadioHackRF RadioType = "hackrf"
	RadioRTLSDR RadioType = "rtl"
	RadioSim    RadioType = "sim"
)

type RadioType string

const (
	defaultStorageDir  = "data"
	defaultStorageFile = "calibration.sqlite"
)

// Config represents the main application configuration
type Config struct {
	Settings    Settings          `yaml:"settings" json:"settings"`
	Radio       RadioConfig       `yaml:"radio" json:"radio"`
	Instruments InstrumentsConfig `yaml:"instruments" json:"instruments"`
	DANL        DANLConfig        `yaml:"danl" json:"danl"`
	P1dB        P1dBConfig        `yaml:"p1db" json:"p1db"`
	PowerCal    PowerCalConfig    `yaml:"powerCal" json:"powerCal"`
	Settle      SettleConfig      `yaml:"settle" json:"settle"`
	Storage     StorageConfig     `yaml:"storage" json:"storage"`
	Metrics     metrics.Config    `yaml:"metrics" json:"metrics"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel slog.Level `yaml:"logLevel" json:"logLevel"`
}

// RadioConfig describes the receiver under test and how it is tuned.
type RadioConfig struct {
	Type       RadioType            `yaml:"type" json:"type"`
	ID         string               `yaml:"id" json:"id"`                 // Device identifier recorded with each run
	SampleRate float64              `yaml:"sampleRate" json:"sampleRate"` // Hz
	Range      sweep.FrequencyRange `yaml:"range" json:"range"`           // Tunable range; the simulator reports its own
	LOOffset   float64              `yaml:"loOffset" json:"loOffset"`     // Hz
	IntegerN   bool                 `yaml:"integerN" json:"integerN"`
	Skip       int                  `yaml:"skip" json:"skip"`       // Samples discarded after tuning
	Samples    int                  `yaml:"samples" json:"samples"` // Samples per time-domain power reading
	Window     spectrum.WindowKind  `yaml:"window" json:"window"`
	TempDir    string               `yaml:"tempDir" json:"tempDir"` // Capture file directory (default: OS temp dir)

	UHD    uhd.Config    `yaml:"uhd" json:"uhd"`
	HackRF hackrf.Config `yaml:"hackrf" json:"hackrf"`
	RTL    rtl.Config    `yaml:"rtl" json:"rtl"`
	Sim    sim.Config    `yaml:"sim" json:"sim"`
}

// InstrumentsConfig holds the SCPI instruments of the bench. A procedure
// only requires the instruments it drives.
type InstrumentsConfig struct {
	Timeout   Duration              `yaml:"timeout" json:"timeout"` // Per-command timeout
	Generator *scpi.GeneratorConfig `yaml:"generator" json:"generator"`
	Meter     *scpi.MeterConfig     `yaml:"meter" json:"meter"`
	Switch    *scpi.SwitchConfig    `yaml:"switch" json:"switch"`
}

// DANLConfig drives the displayed average noise level sweep.
type DANLConfig struct {
	Range     *sweep.FrequencyRange `yaml:"range" json:"range"` // Default: the receiver's range
	FFTLen    int                   `yaml:"fftLen" json:"fftLen"`
	Overlap   float64               `yaml:"overlap" json:"overlap"`
	Averages  int                   `yaml:"averages" json:"averages"`
	Reduction spectrum.Reduction    `yaml:"reduction" json:"reduction"`
}

// P1dBConfig drives the compression test.
type P1dBConfig struct {
	compression.Config `yaml:",inline"`

	Frequencies []float64 `yaml:"frequencies" json:"frequencies"` // Explicit test frequencies in Hz
	GridOffset  float64   `yaml:"gridOffset" json:"gridOffset"`   // First grid frequency above the range start
	GridStep    float64   `yaml:"gridStep" json:"gridStep"`       // Grid spacing
	ScaleFactor float64   `yaml:"scaleFactor" json:"scaleFactor"` // Applied to every time-domain reading
}

// PowerCalConfig drives the power calibration.
type PowerCalConfig struct {
	Frequency               float64  `yaml:"frequency" json:"frequency"`                             // Hz
	Amplitude               float64  `yaml:"amplitude" json:"amplitude"`                             // Generator level in dBm
	Measurements            int      `yaml:"measurements" json:"measurements"`                       // Reference/device pairs
	TimeBetweenMeasurements Duration `yaml:"timeBetweenMeasurements" json:"timeBetweenMeasurements"` // Cycle period
}

// SettleConfig holds the settling delays of every measurement step.
type SettleConfig struct {
	Initial   Duration `yaml:"initial" json:"initial"`     // After RF on
	Tune      Duration `yaml:"tune" json:"tune"`           // After tuning the receiver
	Switch    Duration `yaml:"switch" json:"switch"`       // After switching the RF path
	Amplitude Duration `yaml:"amplitude" json:"amplitude"` // After an amplitude change
	RFOff     Duration `yaml:"rfOff" json:"rfOff"`         // After RF off
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory" json:"dataDirectory"`
	File          string `yaml:"file" json:"file"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	settle := NewDuration(2 * time.Second)

	return &Config{
		Settings: Settings{LogLevel: slog.LevelInfo},
		Radio: RadioConfig{
			SampleRate: 10e6,
			Skip:       1_000,
			Samples:    100_000,
			Window:     spectrum.FlatTop,
			Sim:        sim.DefaultConfig(),
		},
		Instruments: InstrumentsConfig{
			Timeout: NewDuration(scpi.DefaultTimeout),
		},
		DANL: DANLConfig{
			FFTLen:    4096,
			Overlap:   0.25,
			Averages:  10,
			Reduction: spectrum.ReduceMean,
		},
		P1dB: P1dBConfig{
			Config:      compression.DefaultConfig(),
			GridOffset:  50e6,
			GridStep:    200e6,
			ScaleFactor: 1,
		},
		PowerCal: PowerCalConfig{
			Frequency:               1e9,
			Amplitude:               -30,
			Measurements:            10,
			TimeBetweenMeasurements: NewDuration(10 * time.Second),
		},
		Settle: SettleConfig{
			Initial:   settle,
			Tune:      NewDuration(100 * time.Millisecond),
			Switch:    settle,
			Amplitude: settle,
			RFOff:     settle,
		},
		Storage: StorageConfig{
			DataDirectory: defaultStorageDir,
			File:          defaultStorageFile,
		},
	}
}

// LoadConfig reads and validates the YAML configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"radio", c.Radio.Validate},
		{"instruments", c.Instruments.Validate},
		{"danl", func() error { return c.DANL.Validate(c.Radio.SampleRate) }},
		{"p1db", c.P1dB.Validate},
		{"powerCal", c.PowerCal.Validate},
		{"powerCal", c.checkPowerCalLevel},
		{"settle", c.Settle.Validate},
		{"storage", c.Storage.Validate},
		{"metrics", c.Metrics.Validate},
	}
	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// ValidateFor checks that the bench can run test.
func (c *Config) ValidateFor(test spectrum.TestType) error {
	switch test {
	case spectrum.TestDANL, spectrum.TestP1dB, spectrum.TestPowerCal:
	default:
		return fmt.Errorf("app.Config: unknown test type '%s'", test)
	}

	if test == spectrum.TestPowerCal {
		if err := c.checkPowerCalLevel(); err != nil {
			return err
		}
	}

	if c.Radio.Type == RadioSim {
		return nil
	}

	switch test {
	case spectrum.TestP1dB:
		if c.Instruments.Generator == nil {
			return errors.New("app.Config: p1db requires a signal generator")
		}

	case spectrum.TestPowerCal:
		if c.Instruments.Generator == nil || c.Instruments.Meter == nil || c.Instruments.Switch == nil {
			return errors.New("app.Config: powerCal requires a signal generator, a power meter and a switch")
		}
	}
	return nil
}

func (c *RadioConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("app.RadioConfig: sample rate must be positive: %g given", c.SampleRate)
	}
	if c.Skip < 0 {
		return fmt.Errorf("app.RadioConfig: skip must not be negative: %d given", c.Skip)
	}
	if c.Samples <= 0 {
		return fmt.Errorf("app.RadioConfig: samples must be positive: %d given", c.Samples)
	}
	if math.IsNaN(c.LOOffset) || math.IsInf(c.LOOffset, 0) {
		return fmt.Errorf("app.RadioConfig: LO offset must be finite: %g given", c.LOOffset)
	}
	if err := c.Window.Validate(); err != nil {
		return err
	}

	switch c.Type {
	case RadioUHD:
		if err := c.UHD.Validate(); err != nil {
			return err
		}
	case RadioHackRF:
		if err := c.HackRF.Validate(); err != nil {
			return err
		}
	case RadioRTLSDR:
		if err := c.RTL.Validate(); err != nil {
			return err
		}
	case RadioSim:
		sc := c.Sim
		sc.SampleRate = c.SampleRate
		return sc.Validate()
	default:
		return fmt.Errorf("app.RadioConfig: unknown type '%s'", c.Type)
	}

	return c.Range.Validate()
}

func (c *InstrumentsConfig) Validate() error {
	if err := c.Timeout.Validate("timeout"); err != nil {
		return err
	}
	if c.Generator != nil {
		if err := c.Generator.Validate(); err != nil {
			return err
		}
	}
	if c.Meter != nil {
		if err := c.Meter.Validate(); err != nil {
			return err
		}
	}
	if c.Switch != nil {
		if err := c.Switch.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (c *DANLConfig) Validate(sampleRate float64) error {
	if err := c.PlanConfig(sampleRate).Validate(); err != nil {
		return err
	}
	if c.Range != nil {
		if err := c.Range.Validate(); err != nil {
			return err
		}
	}
	if c.Averages <= 0 {
		return fmt.Errorf("app.DANLConfig: averages must be positive: %d given", c.Averages)
	}
	return c.Reduction.Validate()
}

// PlanConfig returns the sweep parameters for a receiver at sampleRate.
func (c *DANLConfig) PlanConfig(sampleRate float64) sweep.PlanConfig {
	return sweep.PlanConfig{FFTLen: c.FFTLen, Overlap: c.Overlap, SampleRate: sampleRate}
}

func (c *P1dBConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	for _, f := range c.Frequencies {
		if !(f > 0) || math.IsInf(f, 0) {
			return fmt.Errorf("app.P1dBConfig: test frequency must be positive: %g given", f)
		}
	}
	if len(c.Frequencies) == 0 && (c.GridOffset < 0 || !(c.GridStep > 0)) {
		return fmt.Errorf("app.P1dBConfig: invalid frequency grid: offset %g, step %g", c.GridOffset, c.GridStep)
	}
	if !(c.ScaleFactor > 0) || math.IsInf(c.ScaleFactor, 0) {
		return fmt.Errorf("app.P1dBConfig: scale factor must be positive: %g given", c.ScaleFactor)
	}
	return nil
}

// TestFrequencies returns the configured frequencies, or a grid starting
// GridOffset above r.Start every GridStep strictly below r.Stop.
func (c *P1dBConfig) TestFrequencies(r sweep.FrequencyRange) []float64 {
	if len(c.Frequencies) > 0 {
		out := make([]float64, len(c.Frequencies))
		copy(out, c.Frequencies)
		return out
	}

	var out []float64
	for i := 0; ; i++ {
		f := r.Start + c.GridOffset + float64(i)*c.GridStep
		if f >= r.Stop {
			break
		}
		out = append(out, f)
	}
	return out
}

func (c *PowerCalConfig) Validate() error {
	if !(c.Frequency > 0) || math.IsInf(c.Frequency, 0) {
		return fmt.Errorf("app.PowerCalConfig: frequency must be positive: %g given", c.Frequency)
	}
	if math.IsNaN(c.Amplitude) || math.IsInf(c.Amplitude, 0) {
		return fmt.Errorf("app.PowerCalConfig: amplitude must be finite: %g given", c.Amplitude)
	}
	if c.Measurements <= 0 {
		return fmt.Errorf("app.PowerCalConfig: measurements must be positive: %d given", c.Measurements)
	}
	return c.TimeBetweenMeasurements.Validate("timeBetweenMeasurements")
}

// checkPowerCalLevel rejects a calibration tone that would arrive at the DUT
// above the protection ceiling.
func (c *Config) checkPowerCalLevel() error {
	atDUT := c.PowerCal.Amplitude - c.P1dB.Attenuation
	if atDUT > c.P1dB.Ceiling {
		return &fault.SafetyViolation{
			Requested:   c.PowerCal.Amplitude,
			Ceiling:     c.P1dB.Ceiling,
			Attenuation: c.P1dB.Attenuation,
			Context:     fault.At(c.PowerCal.Frequency).WithAmplitude(atDUT),
		}
	}
	return nil
}

func (c *SettleConfig) Validate() error {
	for name, d := range map[string]Duration{
		"initial":   c.Initial,
		"tune":      c.Tune,
		"switch":    c.Switch,
		"amplitude": c.Amplitude,
		"rfOff":     c.RFOff,
	} {
		if err := d.Validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (c *StorageConfig) Validate() error {
	if c.File == "" {
		return errors.New("app.StorageConfig: file is required")
	}
	return nil
}
