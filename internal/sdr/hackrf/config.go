package hackrf

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/roman-kulish/radio-calibration/internal/sdr"
)

const (
	MaxLNAGain  = 40
	MaxVGAGain  = 62
	LNAGainStep = 8
	VGAGainStep = 2

	MinSampleRate = 2_000_000
	MaxSampleRate = 20_000_000
)

// Usage from man page:
// https://manpages.debian.org/bookworm/hackrf/hackrf_transfer.1.en.html

/*
	hackrfConfig := hackrf.Config{
		LNAGain: ptr(16),
		VGAGain: ptr(20),
	}
	// Executes: hackrf_transfer -r /tmp/capture-1.iq -f 100000000 -s 10000000 -n 41960 -l 16 -g 20
*/

// Config is a struct for configuring the `hackrf_transfer` tool in receive mode
type Config struct {
	SerialNumber string `yaml:"serialNumber" json:"serialNumber"` // -d serial_number Serial number of desired HackRF

	LNAGain *int `yaml:"lnaGain" json:"lnaGain"` // -l gain_db LNA (IF) gain, 0-40dB, 8dB steps
	VGAGain *int `yaml:"vgaGain" json:"vgaGain"` // -g gain_db VGA (baseband) gain, 0-62dB, 2dB steps

	BasebandFilter int64 `yaml:"basebandFilter" json:"basebandFilter"` // -b baseband filter bandwidth in Hz

	EnableAmp    bool `yaml:"enableAmp" json:"enableAmp"`       // -a amp_enable RX RF amplifier 1=Enable, 0=Disable
	AntennaPower bool `yaml:"antennaPower" json:"antennaPower"` // -p antenna_enable Antenna port power, 1=Enable, 0=Disable
}

func (c *Config) Validate() error {
	// LNA gain validation (0-40dB in 8dB steps)
	if c.LNAGain != nil {
		if *c.LNAGain < 0 || *c.LNAGain > MaxLNAGain {
			return fmt.Errorf("hackrf.Config: LNA gain must be between 0 and 40 dB: %d given", *c.LNAGain)
		}
		if *c.LNAGain%LNAGainStep != 0 {
			return errors.New("hackrf.Config: LNA gain must be a multiple of 8 dB")
		}
	}

	// VGA gain validation (0-62dB in 2dB steps)
	if c.VGAGain != nil {
		if *c.VGAGain < 0 || *c.VGAGain > MaxVGAGain {
			return fmt.Errorf("hackrf.Config: VGA gain must be between 0 and 62 dB: %d given", *c.VGAGain)
		}
		if *c.VGAGain%VGAGainStep != 0 {
			return errors.New("hackrf.Config: VGA gain must be a multiple of 2 dB")
		}
	}

	if c.BasebandFilter < 0 {
		return fmt.Errorf("hackrf.Config: baseband filter must not be negative: %d given", c.BasebandFilter)
	}

	return nil
}

// Args builds the command line arguments for `hackrf_transfer`
func (c *Config) Args(capture sdr.Capture) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if capture.Path == "" {
		return nil, errors.New("hackrf.Config: capture path is required")
	}
	if capture.NumSamples <= 0 {
		return nil, fmt.Errorf("hackrf.Config: number of samples must be positive: %d given", capture.NumSamples)
	}
	if capture.SampleRate < MinSampleRate || capture.SampleRate > MaxSampleRate {
		return nil, fmt.Errorf("hackrf.Config: sample rate must be between 2 and 20 MS/s: %g given", capture.SampleRate)
	}

	// hackrf_transfer always tunes the LO to the center frequency.
	if capture.LOOffset != 0 {
		return nil, errors.New("hackrf.Config: LO offset is not supported")
	}
	if capture.IntegerN {
		return nil, errors.New("hackrf.Config: integer-N tuning is not supported")
	}

	args := []string{
		"-r", capture.Path,
		"-f", strconv.FormatInt(int64(capture.CenterFreq), 10),
		"-s", strconv.FormatInt(int64(capture.SampleRate), 10),
		"-n", strconv.Itoa(capture.NumSamples),
	}

	if c.SerialNumber != "" {
		args = append(args, "-d", c.SerialNumber)
	}

	if c.LNAGain != nil {
		args = append(args, "-l", strconv.Itoa(*c.LNAGain))
	}

	if c.VGAGain != nil {
		args = append(args, "-g", strconv.Itoa(*c.VGAGain))
	}

	if c.BasebandFilter > 0 {
		args = append(args, "-b", strconv.FormatInt(c.BasebandFilter, 10))
	}

	if c.EnableAmp {
		args = append(args, "-a", "1")
	}

	if c.AntennaPower {
		args = append(args, "-p", "1")
	}

	return args, nil
}
