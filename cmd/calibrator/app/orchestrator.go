package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/radio-calibration/internal/calibration"
	"github.com/roman-kulish/radio-calibration/internal/compression"
	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// WithLogger sets the logger for the orchestrator
func WithLogger(logger *slog.Logger) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// Orchestrator runs the measurement procedures on a bench. Every step is
// sequential: tune or set the generator, settle, then acquire.
type Orchestrator struct {
	bench  instrument.Bench
	guard  *instrument.Guard
	config *Config
	logger *slog.Logger
}

// NewOrchestrator creates a new Orchestrator. guard is the bench's amplitude
// source and may be nil when no procedure drives the generator.
func NewOrchestrator(bench instrument.Bench, guard *instrument.Guard, config *Config, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		bench:  bench,
		guard:  guard,
		config: config,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

func (o *Orchestrator) settle(ctx context.Context, d Duration) error {
	return instrument.Settle(ctx, d.Std())
}

func (o *Orchestrator) tune(ctx context.Context, freq float64) error {
	return o.bench.Receiver.Tune(ctx, instrument.TuneRequest{
		CenterFreq: freq,
		LOOffset:   o.config.Radio.LOOffset,
		IntegerN:   o.config.Radio.IntegerN,
	})
}

// readPower acquires a block of samples and returns its mean power in dBm.
func (o *Orchestrator) readPower(ctx context.Context, c fault.Context, factor float64) (float64, error) {
	samples, err := o.bench.Receiver.AcquireSamples(ctx, o.config.Radio.Skip, o.config.Radio.Samples)
	if err != nil {
		return 0, fault.NewAcquisitionError(c, err)
	}
	dbm, err := calibration.MeanPowerDBm(samples, factor, calibration.DefaultImpedance)
	if err != nil {
		var ne *fault.NumericalError
		if errors.As(err, &ne) {
			ne.Context = c
		}
		return 0, err
	}
	return dbm, nil
}

func (o *Orchestrator) requireGenerator() error {
	if o.guard == nil {
		return fault.NewConfigError("app.Orchestrator: procedure requires a signal generator")
	}
	return nil
}

// DANLRange returns the configured DANL range, or the receiver range with
// the top lowered by half the sample rate so every segment can be tuned.
func (o *Orchestrator) DANLRange(ctx context.Context) (sweep.FrequencyRange, error) {
	if r := o.config.DANL.Range; r != nil {
		return *r, nil
	}

	r, err := o.bench.Receiver.SupportedRange(ctx)
	if err != nil {
		return sweep.FrequencyRange{}, fault.NewAcquisitionError(fault.Context{Segment: -1}, err)
	}
	r.Stop -= o.config.Radio.SampleRate / 2
	return r, r.Validate()
}

// DANL sweeps the configured range with the generator off and passes every
// stitched band to sink as soon as it is complete.
func (o *Orchestrator) DANL(ctx context.Context, sink func(*spectrum.Stitched, *sweep.Plan) error) error {
	cfg := o.config.DANL
	planCfg := cfg.PlanConfig(o.config.Radio.SampleRate)

	r, err := o.DANLRange(ctx)
	if err != nil {
		return err
	}
	bands, err := sweep.Octaves(r)
	if err != nil {
		return err
	}

	taps, err := spectrum.WindowTaps(o.config.Radio.Window, cfg.FFTLen)
	if err != nil {
		return err
	}
	scalar, err := spectrum.PowerScalar(taps, spectrum.DefaultImpedance)
	if err != nil {
		return err
	}

	o.logger.Info("starting DANL sweep",
		slog.String("start", humanize.SIWithDigits(r.Start, 3, "Hz")),
		slog.String("stop", humanize.SIWithDigits(r.Stop, 3, "Hz")),
		slog.Int("bands", len(bands)),
		slog.String("window", o.config.Radio.Window.String()),
		slog.String("rbw", humanize.SIWithDigits(spectrum.ENBW(taps, planCfg.SampleRate), 3, "Hz")),
		slog.Float64("nenbw", spectrum.NENBW(taps)))

	if o.bench.Source != nil {
		if err = o.bench.Source.RFOff(ctx); err != nil {
			return fault.NewAcquisitionError(fault.Context{Segment: -1}, err)
		}
	}

	for _, band := range bands {
		plan, err := sweep.NewPlan(band, planCfg)
		if err != nil {
			return err
		}

		stitched, err := o.sweepBand(ctx, plan, scalar)
		if err != nil {
			return err
		}
		if err = sink(stitched, plan); err != nil {
			return fmt.Errorf("handling band %s: %w", band, err)
		}
	}

	return nil
}

func (o *Orchestrator) sweepBand(ctx context.Context, plan *sweep.Plan, scalar float64) (*spectrum.Stitched, error) {
	stitcher, err := spectrum.NewStitcher(plan, scalar)
	if err != nil {
		return nil, err
	}

	label := plan.Band.String()
	req := instrument.SpectrumRequest{
		FFTLen:      plan.Config.FFTLen,
		NumAverages: o.config.DANL.Averages,
		Skip:        o.config.Radio.Skip,
	}

	o.logger.Info("sweeping band",
		slog.String("band", label),
		slog.Int("segments", plan.NumSegments),
		slog.String("step", humanize.SIWithDigits(plan.Step, 3, "Hz")))

	for i, fc := range plan.CenterFreqs {
		c := fault.AtSegment(label, i, fc)

		if err = o.tune(ctx, fc); err != nil {
			return nil, fault.NewAcquisitionError(c, err)
		}
		if err = o.settle(ctx, o.config.Settle.Tune); err != nil {
			return nil, err
		}

		var power []float64
		if o.config.DANL.Reduction == spectrum.ReduceMax {
			// Receivers average; a max reduction is built from single frames.
			if power, err = o.maxSpectrum(ctx, req, c); err != nil {
				return nil, err
			}
		} else if power, err = o.bench.Receiver.AcquirePowerSpectrum(ctx, req); err != nil {
			return nil, fault.NewAcquisitionError(c, err)
		}

		if err = stitcher.Add(spectrum.Segment{Index: i, CenterFreq: fc, Power: power}); err != nil {
			return nil, err
		}
	}

	return stitcher.Spectrum()
}

// maxSpectrum acquires NumAverages single-frame spectra and keeps the
// highest value of every bin.
func (o *Orchestrator) maxSpectrum(ctx context.Context, req instrument.SpectrumRequest, c fault.Context) ([]float64, error) {
	acc, err := spectrum.NewAccumulator(req.FFTLen, spectrum.ReduceMax)
	if err != nil {
		return nil, err
	}

	single := req
	single.NumAverages = 1
	for i := 0; i < req.NumAverages; i++ {
		frame, err := o.bench.Receiver.AcquirePowerSpectrum(ctx, single)
		if err != nil {
			return nil, fault.NewAcquisitionError(c, err)
		}
		if err = acc.Add(frame); err != nil {
			return nil, err
		}
	}
	return acc.Result()
}

// P1dBFrequencies returns the test frequencies of the compression test.
func (o *Orchestrator) P1dBFrequencies(ctx context.Context) ([]float64, error) {
	r, err := o.bench.Receiver.SupportedRange(ctx)
	if err != nil {
		return nil, fault.NewAcquisitionError(fault.Context{Segment: -1}, err)
	}

	freqs := o.config.P1dB.TestFrequencies(r)
	if len(freqs) == 0 {
		return nil, fault.NewConfigError("app.P1dBConfig: no test frequencies in %g-%g Hz", r.Start, r.Stop)
	}
	return freqs, nil
}

// P1dB runs the compression test at every test frequency and returns one
// point per frequency.
func (o *Orchestrator) P1dB(ctx context.Context) ([]spectrum.CompressionPoint, error) {
	if err := o.requireGenerator(); err != nil {
		return nil, err
	}

	freqs, err := o.P1dBFrequencies(ctx)
	if err != nil {
		return nil, err
	}

	o.logger.Info("starting P1dB test",
		slog.Int("frequencies", len(freqs)),
		slog.Float64("floor", o.config.P1dB.Floor),
		slog.Float64("ceiling", o.config.P1dB.Ceiling),
		slog.Float64("attenuation", o.config.P1dB.Attenuation))

	points := make([]spectrum.CompressionPoint, 0, len(freqs))
	for _, fc := range freqs {
		res, err := o.compressionAt(ctx, fc)
		if err != nil {
			return nil, err
		}
		points = append(points, spectrum.CompressionPoint{
			Frequency: res.Frequency,
			Amplitude: res.Amplitude,
			Reached:   res.Reached,
		})
	}
	return points, nil
}

func (o *Orchestrator) compressionAt(ctx context.Context, fc float64) (compression.Result, error) {
	cfg := o.config.P1dB
	freq := humanize.SIWithDigits(fc, 3, "Hz")

	det, err := compression.NewDetector(cfg.Config, fc)
	if err != nil {
		return compression.Result{}, err
	}
	amplitudes := cfg.Amplitudes()

	if err = o.tune(ctx, fc); err != nil {
		return compression.Result{}, fault.NewAcquisitionError(fault.At(fc), err)
	}
	if err = o.guard.SetFrequency(ctx, fc); err != nil {
		return compression.Result{}, fault.NewAcquisitionError(fault.At(fc), err)
	}
	if err = o.guard.SetDUTAmplitude(ctx, amplitudes[0]); err != nil {
		return compression.Result{}, o.generatorError(fault.At(fc).WithAmplitude(amplitudes[0]), err)
	}

	o.logger.Info("signal generator RF on", slog.String("freq", freq))
	if err = o.guard.RFOn(ctx); err != nil {
		return compression.Result{}, fault.NewAcquisitionError(fault.At(fc), err)
	}
	if err = o.settle(ctx, o.config.Settle.Initial); err != nil {
		return compression.Result{}, err
	}

	result, found := det.NotReached(), false
	for _, a := range amplitudes {
		c := fault.At(fc).WithAmplitude(a)

		if err = o.guard.SetDUTAmplitude(ctx, a); err != nil {
			return compression.Result{}, o.generatorError(c, err)
		}
		if err = o.settle(ctx, o.config.Settle.Amplitude); err != nil {
			return compression.Result{}, err
		}

		measured, err := o.readPower(ctx, c, cfg.ScaleFactor)
		if err != nil {
			return compression.Result{}, err
		}

		o.logger.Debug("compression step",
			slog.String("freq", freq),
			slog.Float64("requested", a),
			slog.Float64("measured", measured))

		if result, found, err = det.Observe(compression.Point{Requested: a, Measured: measured}); err != nil {
			return compression.Result{}, err
		}
		if found {
			break
		}
	}

	if found {
		o.logger.Info("detected P1dB", slog.String("freq", freq), slog.Float64("amplitude", result.Amplitude))
	} else {
		result = det.NotReached()
		o.logger.Warn("P1dB not reached below ceiling", slog.String("freq", freq), slog.Float64("ceiling", result.Amplitude))
	}

	o.logger.Info("signal generator RF off", slog.String("freq", freq))
	if err = o.guard.RFOff(ctx); err != nil {
		return compression.Result{}, fault.NewAcquisitionError(fault.At(fc), err)
	}
	if err = o.settle(ctx, o.config.Settle.RFOff); err != nil {
		return compression.Result{}, err
	}

	return result, nil
}

// generatorError keeps safety violations as they are and wraps other
// generator failures.
func (o *Orchestrator) generatorError(c fault.Context, err error) error {
	var sv *fault.SafetyViolation
	if errors.As(err, &sv) {
		return err
	}
	return fault.NewAcquisitionError(c, err)
}

// PowerCalResult is the outcome of a power calibration.
type PowerCalResult struct {
	Pairs       []spectrum.PowerPair
	ScaleFactor float64
}

// PowerCal alternates reference meter and device readings of the same tone
// and computes the scale factor. Each cycle is padded to the configured
// period; overruns are logged.
func (o *Orchestrator) PowerCal(ctx context.Context) (*PowerCalResult, error) {
	if err := o.requireGenerator(); err != nil {
		return nil, err
	}
	if o.bench.Meter == nil || o.bench.Switch == nil {
		return nil, fault.NewConfigError("app.Orchestrator: power calibration requires a power meter and a switch")
	}

	cfg := o.config.PowerCal
	if err := o.guard.Check(cfg.Amplitude); err != nil {
		return nil, err
	}
	base := fault.At(cfg.Frequency).WithAmplitude(cfg.Amplitude)

	if err := o.tune(ctx, cfg.Frequency); err != nil {
		return nil, fault.NewAcquisitionError(base, err)
	}
	if err := o.guard.SetFrequency(ctx, cfg.Frequency); err != nil {
		return nil, fault.NewAcquisitionError(base, err)
	}
	if err := o.guard.SetAmplitude(ctx, cfg.Amplitude); err != nil {
		return nil, o.generatorError(base, err)
	}

	o.logger.Info("signal generator RF on",
		slog.String("freq", humanize.SIWithDigits(cfg.Frequency, 3, "Hz")),
		slog.Float64("amplitude", cfg.Amplitude))
	if err := o.guard.RFOn(ctx); err != nil {
		return nil, fault.NewAcquisitionError(base, err)
	}
	if err := o.settle(ctx, o.config.Settle.Initial); err != nil {
		return nil, err
	}

	pairs := make([]spectrum.PowerPair, 0, cfg.Measurements)
	for i := 0; i < cfg.Measurements; i++ {
		start := time.Now()

		pair, err := o.measurePair(ctx, base)
		if err != nil {
			return nil, err
		}
		pairs = append(pairs, pair)

		o.logger.Info("power measurement",
			slog.Int("n", i+1),
			slog.Float64("reference", pair.Reference),
			slog.Float64("device", pair.Device))

		if i == cfg.Measurements-1 {
			break
		}

		remaining := cfg.TimeBetweenMeasurements.Std() - time.Since(start)
		if remaining < 0 {
			o.logger.Warn("measurement overran its period",
				slog.Int("n", i+1),
				slog.Duration("overrun", -remaining))
			continue
		}
		if err = instrument.Settle(ctx, remaining); err != nil {
			return nil, err
		}
	}

	factor, err := calibration.ScalePairs(toCalibrationPairs(pairs), calibration.DefaultImpedance)
	if err != nil {
		return nil, err
	}

	o.logger.Info("computed scale factor", slog.Float64("scaleFactor", factor))
	return &PowerCalResult{Pairs: pairs, ScaleFactor: factor}, nil
}

func (o *Orchestrator) measurePair(ctx context.Context, c fault.Context) (spectrum.PowerPair, error) {
	var pair spectrum.PowerPair

	if err := o.bench.Switch.SelectReference(ctx); err != nil {
		return pair, fault.NewAcquisitionError(c, err)
	}
	if err := o.settle(ctx, o.config.Settle.Switch); err != nil {
		return pair, err
	}

	ref, err := o.bench.Meter.Measure(ctx)
	if err != nil {
		return pair, fault.NewAcquisitionError(c, err)
	}

	if err = o.bench.Switch.SelectDeviceUnderTest(ctx); err != nil {
		return pair, fault.NewAcquisitionError(c, err)
	}
	if err = o.settle(ctx, o.config.Settle.Switch); err != nil {
		return pair, err
	}

	dev, err := o.readPower(ctx, c, 1)
	if err != nil {
		return pair, err
	}

	pair.Reference, pair.Device = ref, dev
	return pair, nil
}

func toCalibrationPairs(pairs []spectrum.PowerPair) []calibration.Pair {
	out := make([]calibration.Pair, len(pairs))
	for i, p := range pairs {
		out[i] = calibration.Pair{Reference: p.Reference, Device: p.Device}
	}
	return out
}
