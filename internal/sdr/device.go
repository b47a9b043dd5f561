package sdr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

var (
	// ErrNotTuned is returned when acquiring before the first Tune.
	ErrNotTuned = errors.New("device is not tuned")

	// ErrBrokenPipe is returned when there's an error reading the tool's stderr
	ErrBrokenPipe = errors.New("broken pipe")
)

// WithLogger sets the logger for the device
func WithLogger(logger *slog.Logger) func(d *Device) {
	return func(d *Device) {
		d.logger = logger.With(
			slog.String("device", d.handler.Device()),
			slog.String("deviceID", d.deviceID),
		)
	}
}

// WithWindow sets the window used to compute power spectra
func WithWindow(kind spectrum.WindowKind) func(d *Device) {
	return func(d *Device) {
		d.window = kind
	}
}

// WithTempDir sets the directory capture files are written to
func WithTempDir(dir string) func(d *Device) {
	return func(d *Device) {
		d.tempDir = dir
	}
}

// Device is a receiver driven by an external capture tool: every acquisition
// runs the tool once to record a finite block of IQ samples to a temporary
// file, which is then decoded. Device implements instrument.Receiver.
type Device struct {
	deviceID   string
	handler    Handler
	sampleRate float64
	freqRange  sweep.FrequencyRange

	window  spectrum.WindowKind
	tempDir string
	logger  *slog.Logger

	mu        sync.Mutex
	tune      instrument.TuneRequest
	tuned     bool
	pipelines map[int]*spectrum.Pipeline
}

var _ instrument.Receiver = (*Device)(nil)

// NewDevice creates a new Device instance with a discard logger
func NewDevice(deviceID string, h Handler, sampleRate float64, freqRange sweep.FrequencyRange, options ...func(d *Device)) (*Device, error) {
	if err := h.Format().Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sdr.Device: sample rate must be positive: %g given", sampleRate)
	}
	if err := freqRange.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	d := Device{
		deviceID:   deviceID,
		handler:    h,
		sampleRate: sampleRate,
		freqRange:  freqRange,
		window:     spectrum.FlatTop,
		logger:     logger,
		pipelines:  make(map[int]*spectrum.Pipeline),
	}

	for _, option := range options {
		option(&d)
	}

	if err := d.window.Validate(); err != nil {
		return nil, err
	}

	return &d, nil
}

// ID returns the device identifier.
func (d *Device) ID() string {
	return d.deviceID
}

// SupportedRange returns the configured tuning range of the device.
func (d *Device) SupportedRange(ctx context.Context) (sweep.FrequencyRange, error) {
	return d.freqRange, nil
}

// Tune records the tuning for subsequent captures. Capture tools tune when
// they start, so the request is validated here and applied per acquisition.
func (d *Device) Tune(ctx context.Context, req instrument.TuneRequest) error {
	if req.CenterFreq < d.freqRange.Start || req.CenterFreq > d.freqRange.Stop {
		return fmt.Errorf("center frequency %s outside %s-%s",
			humanize.SIWithDigits(req.CenterFreq, 3, "Hz"),
			humanize.SIWithDigits(d.freqRange.Start, 3, "Hz"),
			humanize.SIWithDigits(d.freqRange.Stop, 3, "Hz"))
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.tune = req
	d.tuned = true
	return nil
}

// AcquireSamples runs one capture of skip+n samples and returns the last n.
func (d *Device) AcquireSamples(ctx context.Context, skip, n int) ([]complex128, error) {
	if skip < 0 || n <= 0 {
		return nil, fmt.Errorf("invalid sample counts: skip %d, n %d", skip, n)
	}

	d.mu.Lock()
	tune, tuned := d.tune, d.tuned
	d.mu.Unlock()

	if !tuned {
		return nil, ErrNotTuned
	}

	samples, err := d.capture(ctx, tune, skip+n)
	if err != nil {
		return nil, err
	}
	return samples[skip:], nil
}

// AcquirePowerSpectrum captures req.NumAverages frames and returns their
// averaged, fft-shifted power.
func (d *Device) AcquirePowerSpectrum(ctx context.Context, req instrument.SpectrumRequest) ([]float64, error) {
	p, err := d.pipeline(req.FFTLen)
	if err != nil {
		return nil, err
	}
	if req.NumAverages <= 0 {
		return nil, fmt.Errorf("number of averages must be positive: %d", req.NumAverages)
	}

	samples, err := d.AcquireSamples(ctx, req.Skip, req.FFTLen*req.NumAverages)
	if err != nil {
		return nil, err
	}

	acc, err := spectrum.NewAccumulator(req.FFTLen, spectrum.ReduceMean)
	if err != nil {
		return nil, err
	}
	if err = p.Process(samples, req.NumAverages, acc); err != nil {
		return nil, err
	}
	return acc.Result()
}

func (d *Device) pipeline(fftLen int) (*spectrum.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if p, ok := d.pipelines[fftLen]; ok {
		return p, nil
	}
	p, err := spectrum.NewPipeline(fftLen, d.window)
	if err != nil {
		return nil, err
	}
	d.pipelines[fftLen] = p
	return p, nil
}

// capture runs the tool and decodes its output file.
func (d *Device) capture(ctx context.Context, tune instrument.TuneRequest, n int) ([]complex128, error) {
	f, err := os.CreateTemp(d.tempDir, "capture-*.iq")
	if err != nil {
		return nil, fmt.Errorf("error creating capture file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	cmd, err := d.handler.Cmd(ctx, Capture{
		CenterFreq: tune.CenterFreq,
		SampleRate: d.sampleRate,
		NumSamples: n,
		LOOffset:   tune.LOOffset,
		IntegerN:   tune.IntegerN,
		Path:       path,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating command: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("error creating stderr pipe: %w", err)
	}

	d.logger.Debug("starting capture",
		slog.String("freq", humanize.SIWithDigits(tune.CenterFreq, 6, "Hz")),
		slog.Int("samples", n))

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("error starting command: %w", err)
	}

	done := make(chan error, 1)
	go d.handleStderr(stderr, done)

	stderrErr := <-done
	if err = cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("command exited with error: %w", err)
	}
	if stderrErr != nil {
		return nil, stderrErr
	}

	out, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening capture file: %w", err)
	}
	defer out.Close()

	samples, err := DecodeIQ(bufio.NewReader(out), d.handler.Format(), n)
	if err != nil {
		return nil, fmt.Errorf("error decoding capture: %w", err)
	}
	return samples, nil
}

// handleStderr reads from stderr and logs the tool's diagnostics.
func (d *Device) handleStderr(stderr io.Reader, done chan<- error) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		d.logger.Debug(fmt.Sprintf("%s >> %s", d.handler.Device(), line))
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
		done <- fmt.Errorf("%w: error reading stderr: %w", ErrBrokenPipe, err)
		return
	}

	done <- nil
}
