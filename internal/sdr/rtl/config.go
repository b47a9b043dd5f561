package rtl

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roman-kulish/radio-calibration/internal/sdr"
)

const (
	// Tuner sample rate bands accepted by librtlsdr
	LowRateMin  = 225_001
	LowRateMax  = 300_000
	HighRateMin = 900_001
	HighRateMax = 3_200_000
)

// Usage from man page:
// https://manpages.debian.org/bookworm/rtl-sdr/rtl_sdr.1.en.html

/*
	rtlConfig := rtl.Config{
		DeviceIndex: 0,
		Gain:        ptr(29.7),
		PPMError:    1,
	}
	// Executes: rtl_sdr -f 100000000 -s 2400000 -n 41960 -d 0 -g 29.7 -p 1 /tmp/capture-1.iq
*/

// Config is the `rtl_sdr` tool configuration
type Config struct {
	DeviceIndex int      `yaml:"deviceIndex" json:"deviceIndex"` // -d device_index (default: 0)
	Gain        *float64 `yaml:"gain" json:"gain"`               // -g tuner_gain in dB (default: automatic)
	PPMError    int      `yaml:"ppmError" json:"ppmError"`       // -p ppm_error (default: 0)
	BiasTee     bool     `yaml:"biasTee" json:"biasTee"`         // -T enable bias-tee (default: off)
}

func (c *Config) Validate() error {
	if c.DeviceIndex < 0 {
		return fmt.Errorf("rtl.Config: device index must not be negative: %d", c.DeviceIndex)
	}
	if c.Gain != nil && *c.Gain < 0 {
		return fmt.Errorf("rtl.Config: gain must not be negative: %g given", *c.Gain)
	}
	return nil
}

// Args returns the command line arguments for `rtl_sdr`
func (c *Config) Args(capture sdr.Capture) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if capture.Path == "" {
		return nil, errors.New("rtl.Config: capture path is required")
	}
	if capture.NumSamples <= 0 {
		return nil, fmt.Errorf("rtl.Config: number of samples must be positive: %d given", capture.NumSamples)
	}

	sr := capture.SampleRate
	if !(sr >= LowRateMin && sr <= LowRateMax) && !(sr >= HighRateMin && sr <= HighRateMax) {
		return nil, fmt.Errorf("rtl.Config: unsupported sample rate: %g", sr)
	}
	if capture.LOOffset != 0 || capture.IntegerN {
		return nil, errors.New("rtl.Config: LO offset and integer-N tuning are not supported")
	}

	args := []string{
		"-f", strconv.FormatInt(int64(capture.CenterFreq), 10),
		"-s", strconv.FormatInt(int64(sr), 10),
		"-n", strconv.Itoa(capture.NumSamples),
		"-d", strconv.Itoa(c.DeviceIndex), // 0 is the default device index
	}

	if c.Gain != nil {
		args = append(args, "-g", strconv.FormatFloat(*c.Gain, 'f', -1, 64))
	}

	if c.PPMError != 0 {
		args = append(args, "-p", strconv.Itoa(c.PPMError))
	}

	if c.BiasTee {
		args = append(args, "-T")
	}

	args = append(args, capture.Path)

	return args, nil
}
