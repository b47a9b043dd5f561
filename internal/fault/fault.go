package fault

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// Context identifies the measurement step an error belongs to. Zero-valued
// fields are omitted from the error message.
type Context struct {
	Band      string  // Band label, e.g. "70 MHz-140 MHz"
	Segment   int     // Segment index within the band, -1 if not applicable
	Frequency float64 // Frequency in Hz
	Amplitude float64 // Requested amplitude in dBm
	HasAmp    bool
}

// At returns a Context for a frequency.
func At(freq float64) Context {
	return Context{Segment: -1, Frequency: freq}
}

// AtSegment returns a Context for a segment of a band.
func AtSegment(band string, segment int, freq float64) Context {
	return Context{Band: band, Segment: segment, Frequency: freq}
}

// WithAmplitude returns a copy of the Context carrying a requested amplitude.
func (c Context) WithAmplitude(dbm float64) Context {
	c.Amplitude = dbm
	c.HasAmp = true
	return c
}

func (c Context) String() string {
	var parts []string
	if c.Band != "" {
		parts = append(parts, "band="+c.Band)
	}
	if c.Segment >= 0 && c.Band != "" {
		parts = append(parts, fmt.Sprintf("segment=%d", c.Segment))
	}
	if c.Frequency > 0 {
		parts = append(parts, "freq="+humanize.SIWithDigits(c.Frequency, 6, "Hz"))
	}
	if c.HasAmp {
		parts = append(parts, fmt.Sprintf("amplitude=%.2fdBm", c.Amplitude))
	}
	return strings.Join(parts, " ")
}

func withContext(msg string, c Context) string {
	if s := c.String(); s != "" {
		return msg + " (" + s + ")"
	}
	return msg
}

// ConfigError reports an invalid configuration detected before any hardware
// interaction.
type ConfigError struct {
	msg string
}

func NewConfigError(format string, args ...any) *ConfigError {
	return &ConfigError{fmt.Sprintf(format, args...)}
}

func (e *ConfigError) Error() string {
	return e.msg
}

// SafetyViolation reports a requested amplitude above the protection ceiling.
// It is raised before any instrument command is sent.
type SafetyViolation struct {
	Requested   float64 // Generator level in dBm
	Ceiling     float64 // Protection ceiling at the DUT input in dBm
	Attenuation float64 // Inline attenuation in dB
	Context     Context
}

func (e *SafetyViolation) Error() string {
	msg := fmt.Sprintf("safety violation: generator level %.2fdBm exceeds ceiling %.2fdBm with %.2fdB attenuation",
		e.Requested, e.Ceiling, e.Attenuation)
	return withContext(msg, e.Context)
}

// AcquisitionError reports a collaborator that failed to return a valid frame.
type AcquisitionError struct {
	Context Context
	Err     error
}

func NewAcquisitionError(c Context, err error) *AcquisitionError {
	return &AcquisitionError{Context: c, Err: err}
}

func (e *AcquisitionError) Error() string {
	return withContext("acquisition failed", e.Context) + ": " + e.Err.Error()
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// NumericalError reports a degenerate numerical input: non-positive power fed
// to a logarithm, a fit with insufficient points, or non-finite values.
type NumericalError struct {
	msg     string
	Context Context
}

func NewNumericalError(c Context, format string, args ...any) *NumericalError {
	return &NumericalError{msg: fmt.Sprintf(format, args...), Context: c}
}

func (e *NumericalError) Error() string {
	return withContext("numerical degeneracy: "+e.msg, e.Context)
}
