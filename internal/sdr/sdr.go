package sdr

import (
	"context"
	"os/exec"
)

// Capture describes one finite IQ acquisition by an external capture tool.
type Capture struct {
	CenterFreq float64 // Hz
	SampleRate float64 // Samples per second
	NumSamples int     // Samples to record, including discarded ones
	LOOffset   float64 // Hz
	IntegerN   bool
	Path       string // File the tool writes raw IQ to
}

// Handler builds the command line of one capture tool. Each handler knows
// the tool's flags and the sample format it writes.
type Handler interface {
	Cmd(ctx context.Context, c Capture) (*exec.Cmd, error)
	Format() Format
	Device() string
}

// CmdArgsBuilder is implemented by tool configurations.
type CmdArgsBuilder interface {
	Args(c Capture) ([]string, error)
}
