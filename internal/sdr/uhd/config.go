package uhd

import (
	"fmt"
	"strconv"

	"github.com/roman-kulish/radio-calibration/internal/sdr"
)

const (
	SampleTypeFloat SampleType = "float" // fc32 on the wire to the host
	SampleTypeShort SampleType = "short" // sc16
)

var sampleFormats = map[SampleType]sdr.Format{
	SampleTypeFloat: sdr.FormatCF32,
	SampleTypeShort: sdr.FormatCS16,
}

// SampleType is the host sample type written by `rx_samples_to_file`.
type SampleType string

func (s SampleType) String() string {
	return string(s)
}

/*
	uhdConfig := uhd.Config{
		DeviceArgs: "type=b200,serial=30F1234",
		Gain:       ptr(30.0),
		Antenna:    "RX2",
	}
	// Executes: rx_samples_to_file --args type=b200,serial=30F1234 --file /tmp/capture-1.iq
	//   --type float --rate 10000000 --freq 100000000 --nsamps 41960 --gain 30 --ant RX2
*/

// Config is the `rx_samples_to_file` tool configuration
type Config struct {
	DeviceArgs string     `yaml:"deviceArgs" json:"deviceArgs"` // --args device address, e.g. "type=b200,serial=..."
	SampleType SampleType `yaml:"sampleType" json:"sampleType"` // --type float|short (default: float)
	Gain       *float64   `yaml:"gain" json:"gain"`             // --gain RF gain in dB
	Antenna    string     `yaml:"antenna" json:"antenna"`       // --ant antenna port
	Subdev     string     `yaml:"subdev" json:"subdev"`         // --subdev subdevice specification
	Bandwidth  float64    `yaml:"bandwidth" json:"bandwidth"`   // --bw analog frontend filter bandwidth in Hz
	Channel    *int       `yaml:"channel" json:"channel"`       // --channel
	Setup      float64    `yaml:"setup" json:"setup"`           // --setup seconds of setup time before streaming
	ClockRate  float64    `yaml:"clockRate" json:"clockRate"`   // master clock rate, passed through --args
}

func (c *Config) Validate() error {
	if c.SampleType != "" {
		if _, ok := sampleFormats[c.SampleType]; !ok {
			return fmt.Errorf("uhd.Config: invalid sample type: %s", c.SampleType)
		}
	}
	if c.Gain != nil && *c.Gain < 0 {
		return fmt.Errorf("uhd.Config: gain must not be negative: %g given", *c.Gain)
	}
	if c.Bandwidth < 0 {
		return fmt.Errorf("uhd.Config: bandwidth must not be negative: %g given", c.Bandwidth)
	}
	if c.Channel != nil && *c.Channel < 0 {
		return fmt.Errorf("uhd.Config: channel must not be negative: %d given", *c.Channel)
	}
	if c.Setup < 0 {
		return fmt.Errorf("uhd.Config: setup time must not be negative: %g given", c.Setup)
	}
	if c.ClockRate < 0 {
		return fmt.Errorf("uhd.Config: clock rate must not be negative: %g given", c.ClockRate)
	}
	return nil
}

// Format returns the sample format of the capture files.
func (c *Config) Format() sdr.Format {
	if c.SampleType == "" {
		return sdr.FormatCF32
	}
	return sampleFormats[c.SampleType]
}

// Args builds the command line arguments for `rx_samples_to_file`
func (c *Config) Args(capture sdr.Capture) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if capture.Path == "" {
		return nil, fmt.Errorf("uhd.Config: capture path is required")
	}
	if capture.NumSamples <= 0 {
		return nil, fmt.Errorf("uhd.Config: number of samples must be positive: %d given", capture.NumSamples)
	}

	sampleType := c.SampleType
	if sampleType == "" {
		sampleType = SampleTypeFloat
	}

	devArgs := c.DeviceArgs
	if c.ClockRate > 0 {
		if devArgs != "" {
			devArgs += ","
		}
		devArgs += "master_clock_rate=" + formatFloat(c.ClockRate)
	}

	var args []string
	if devArgs != "" {
		args = append(args, "--args", devArgs)
	}

	args = append(args,
		"--file", capture.Path,
		"--type", sampleType.String(),
		"--rate", formatFloat(capture.SampleRate),
		"--freq", formatFloat(capture.CenterFreq),
		"--nsamps", strconv.Itoa(capture.NumSamples),
	)

	if capture.LOOffset != 0 {
		args = append(args, "--lo-offset", formatFloat(capture.LOOffset))
	}

	if capture.IntegerN {
		args = append(args, "--int-n")
	}

	if c.Gain != nil {
		args = append(args, "--gain", formatFloat(*c.Gain))
	}

	if c.Antenna != "" {
		args = append(args, "--ant", c.Antenna)
	}

	if c.Subdev != "" {
		args = append(args, "--subdev", c.Subdev)
	}

	if c.Bandwidth > 0 {
		args = append(args, "--bw", formatFloat(c.Bandwidth))
	}

	if c.Channel != nil {
		args = append(args, "--channel", strconv.Itoa(*c.Channel))
	}

	if c.Setup > 0 {
		args = append(args, "--setup", formatFloat(c.Setup))
	}

	return args, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
