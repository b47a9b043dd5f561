// Package instrument defines the bench collaborators used by the measurement
// procedures: the receiver under test, the signal generator, the reference
// power meter and the RF path switch.
package instrument

import (
	"context"
	"time"

	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// TuneRequest describes how the receiver is tuned to a center frequency.
type TuneRequest struct {
	CenterFreq float64 // Hz
	LOOffset   float64 // Hz, moves the LO away from the center to keep the DC spur out of band
	IntegerN   bool    // Integer-N synthesizer mode, lower phase noise where supported
}

// SpectrumRequest describes one averaged power spectrum acquisition.
type SpectrumRequest struct {
	FFTLen      int // Bins per frame
	NumAverages int // Frames averaged per spectrum
	Skip        int // Samples discarded after tuning
}

// FrequencyRangeProvider reports the receiver's tunable range.
type FrequencyRangeProvider interface {
	SupportedRange(ctx context.Context) (sweep.FrequencyRange, error)
}

// SampleAcquirer tunes the receiver and returns captured data.
type SampleAcquirer interface {
	Tune(ctx context.Context, req TuneRequest) error
	// AcquirePowerSpectrum returns fft-shifted linear power per bin, averaged
	// over req.NumAverages frames.
	AcquirePowerSpectrum(ctx context.Context, req SpectrumRequest) ([]float64, error)
	// AcquireSamples discards skip samples and returns the next n.
	AcquireSamples(ctx context.Context, skip, n int) ([]complex128, error)
}

// Receiver is the radio under test.
type Receiver interface {
	FrequencyRangeProvider
	SampleAcquirer
}

// ReferenceMeterReader reads the reference power meter.
type ReferenceMeterReader interface {
	Measure(ctx context.Context) (float64, error) // dBm
}

// AmplitudeSource is the signal generator.
type AmplitudeSource interface {
	SetAmplitude(ctx context.Context, dbm float64) error
	SetFrequency(ctx context.Context, hz float64) error
	RFOn(ctx context.Context) error
	RFOff(ctx context.Context) error
	// Preset returns the generator to its power-on state.
	Preset(ctx context.Context) error
}

// PathSwitch routes the generator output to the reference meter or the
// device under test.
type PathSwitch interface {
	SelectReference(ctx context.Context) error
	SelectDeviceUnderTest(ctx context.Context) error
}

// Settle blocks for d or until ctx is done. Settle delays give the hardware
// time to reach a steady state and are part of every measurement step.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
