package scpi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const valueVerb = "%s"

// GeneratorConfig configures a signal generator. Frequency and Amplitude are
// templates with a single %s replaced by the value in Hz and dBm.
type GeneratorConfig struct {
	Address   string        `yaml:"address" json:"address"`
	Timeout   time.Duration `yaml:"-" json:"-"`
	Init      []string      `yaml:"init" json:"init"`           // Sent after preset, e.g. modulation off
	Preset    string        `yaml:"preset" json:"preset"`       // Return to power-on state
	RFOn      string        `yaml:"rfOn" json:"rfOn"`           // Enable RF output
	RFOff     string        `yaml:"rfOff" json:"rfOff"`         // Disable RF output
	Frequency string        `yaml:"frequency" json:"frequency"` // Frequency template
	Amplitude string        `yaml:"amplitude" json:"amplitude"` // Amplitude template
	Identify  string        `yaml:"identify" json:"identify"`   // Optional identification query
}

// DefaultGeneratorConfig returns SCPI-1999 commands understood by most
// signal generators.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		Init:      []string{":OUTPut:MODulation:STATe OFF"},
		Preset:    ":SYSTem:PRESet",
		RFOn:      ":OUTPut:STATe ON",
		RFOff:     ":OUTPut:STATe OFF",
		Frequency: ":FREQuency %sHZ",
		Amplitude: ":POWer %sDBM",
		Identify:  "*IDN?",
	}
}

func (c *GeneratorConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("scpi.GeneratorConfig: address is required")
	}
	for name, cmd := range map[string]string{"preset": c.Preset, "rfOn": c.RFOn, "rfOff": c.RFOff} {
		if strings.TrimSpace(cmd) == "" {
			return fmt.Errorf("scpi.GeneratorConfig: %s command is required", name)
		}
	}
	if err := validateTemplate("frequency", c.Frequency); err != nil {
		return fmt.Errorf("scpi.GeneratorConfig: %w", err)
	}
	if err := validateTemplate("amplitude", c.Amplitude); err != nil {
		return fmt.Errorf("scpi.GeneratorConfig: %w", err)
	}
	return nil
}

// MeterConfig configures a power meter that reports in dBm.
type MeterConfig struct {
	Address string        `yaml:"address" json:"address"`
	Timeout time.Duration `yaml:"-" json:"-"`
	Init    []string      `yaml:"init" json:"init"`       // Sent once after connecting
	Measure string        `yaml:"measure" json:"measure"` // Query returning one reading in dBm
}

// DefaultMeterConfig returns commands for a meter in remote mode reading
// ASCII dBm at the double measurement rate.
func DefaultMeterConfig() MeterConfig {
	return MeterConfig{
		Init: []string{
			"SYSTem:REMote",
			"UNIT1:POWer DBM",
			"FORMat ASCii",
			"FORMat:BORDer NORMal",
			"SENSe:MRATe DOUBle",
		},
		Measure: "MEASure?",
	}
}

func (c *MeterConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("scpi.MeterConfig: address is required")
	}
	if strings.TrimSpace(c.Measure) == "" {
		return fmt.Errorf("scpi.MeterConfig: measure query is required")
	}
	return nil
}

// SwitchConfig configures an RF path switch driver.
type SwitchConfig struct {
	Address               string        `yaml:"address" json:"address"`
	Timeout               time.Duration `yaml:"-" json:"-"`
	SelectReference       string        `yaml:"selectReference" json:"selectReference"`
	SelectDeviceUnderTest string        `yaml:"selectDeviceUnderTest" json:"selectDeviceUnderTest"`
}

func (c *SwitchConfig) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("scpi.SwitchConfig: address is required")
	}
	if strings.TrimSpace(c.SelectReference) == "" || strings.TrimSpace(c.SelectDeviceUnderTest) == "" {
		return fmt.Errorf("scpi.SwitchConfig: both path commands are required")
	}
	return nil
}

func validateTemplate(name, tmpl string) error {
	if n := strings.Count(tmpl, valueVerb); n != 1 {
		return fmt.Errorf("%s template must contain exactly one %s: %q", name, valueVerb, tmpl)
	}
	return nil
}

// render substitutes v into a command template.
func render(tmpl string, v float64) string {
	return strings.Replace(tmpl, valueVerb, strconv.FormatFloat(v, 'f', -1, 64), 1)
}
