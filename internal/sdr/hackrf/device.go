package hackrf

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/roman-kulish/radio-calibration/internal/sdr"
)

const (
	Runtime = "hackrf_transfer"
	Device  = "HackRF"
)

// handler struct represents a HackRF handler
type handler struct {
	binPath string
	config  Config
}

// New creates a new HackRF handler
func New(config Config) (sdr.Handler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	binPath, err := sdr.FindRuntime(Runtime)
	if err != nil {
		return nil, fmt.Errorf("error finding runtime: %w", err)
	}

	return &handler{binPath, config}, nil
}

// Cmd returns an exec.Cmd recording one capture
func (h handler) Cmd(ctx context.Context, c sdr.Capture) (*exec.Cmd, error) {
	args, err := h.config.Args(c)
	if err != nil {
		return nil, fmt.Errorf("error creating args: %w", err)
	}
	return exec.CommandContext(ctx, h.binPath, args...), nil
}

// Format returns the sample format written by the tool: signed 8 bit IQ
func (h handler) Format() sdr.Format {
	return sdr.FormatCS8
}

// Device returns the device type
func (h handler) Device() string {
	return Device
}
