// Package sim provides a simulated bench: a signal generator, a reference
// power meter, an RF switch and a receiver in front of a device under test
// with linear gain, a noise floor and a compression knee. It is used for dry
// runs and tests.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sync"

	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// ErrInjected is returned by acquisitions after Config.FailAfter captures.
var ErrInjected = errors.New("sim: injected acquisition failure")

// Config describes the simulated hardware.
type Config struct {
	Range       sweep.FrequencyRange `yaml:"range" json:"range"`
	SampleRate  float64              `yaml:"sampleRate" json:"sampleRate"`   // Hz
	Gain        float64              `yaml:"gain" json:"gain"`               // Small-signal gain of the receiver chain, dB
	Knee        float64              `yaml:"knee" json:"knee"`               // Input level where compression starts, dBm
	KneeTilt    float64              `yaml:"kneeTilt" json:"kneeTilt"`       // Change of Knee per GHz above 1 GHz, dB
	Compression float64              `yaml:"compression" json:"compression"` // Incremental gain above the knee, 0..1
	NoiseFloor  float64              `yaml:"noiseFloor" json:"noiseFloor"`   // Noise power over the sample rate, dBm
	ScaleError  float64              `yaml:"scaleError" json:"scaleError"`   // Voltage ratio by which the receiver under-reads
	Attenuation float64              `yaml:"attenuation" json:"attenuation"` // Inline attenuation after the generator, dB
	Seed        uint64               `yaml:"seed" json:"seed"`
	FailAfter   int                  `yaml:"failAfter" json:"failAfter"` // Fail every acquisition after this many, 0 never
}

// DefaultConfig returns a receiver covering 70 MHz to 6 GHz at 10 MS/s with
// a P1dB of roughly -27 dBm at 1 GHz.
func DefaultConfig() Config {
	return Config{
		Range:       sweep.FrequencyRange{Start: 70e6, Stop: 6e9},
		SampleRate:  10e6,
		Gain:        0,
		Knee:        -30,
		KneeTilt:    -1,
		Compression: 0.3,
		NoiseFloor:  -90,
		ScaleError:  1,
		Seed:        1,
	}
}

func (c Config) Validate() error {
	if err := c.Range.Validate(); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sim.Config: sample rate must be positive: %g given", c.SampleRate)
	}
	if c.Compression < 0 || c.Compression > 1 {
		return fmt.Errorf("sim.Config: compression must be in [0, 1]: %g given", c.Compression)
	}
	if c.ScaleError <= 0 {
		return fmt.Errorf("sim.Config: scale error must be positive: %g given", c.ScaleError)
	}
	if c.Attenuation < 0 {
		return fmt.Errorf("sim.Config: attenuation must not be negative: %g given", c.Attenuation)
	}
	return nil
}

type path int

const (
	pathDUT path = iota
	pathReference
)

// Bench implements every collaborator of instrument.Bench. It is safe for
// concurrent use, although procedures drive it from one goroutine.
type Bench struct {
	cfg Config

	mu        sync.Mutex
	rng       *rand.Rand
	center    float64
	tuned     bool
	genFreq   float64
	genLevel  float64
	rfOn      bool
	path      path
	captures  int
	closed    bool
	maxAtDUT  float64
	presets   int
	rfOffs    int
	pipelines map[int]*spectrum.Pipeline
}

func New(cfg Config) (*Bench, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Bench{
		cfg:       cfg,
		rng:       rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)),
		genLevel:  math.Inf(-1),
		maxAtDUT:  math.Inf(-1),
		pipelines: make(map[int]*spectrum.Pipeline),
	}, nil
}

// Bench returns the simulator wired into every role of an instrument.Bench.
func (b *Bench) Bench() instrument.Bench {
	return instrument.Bench{Receiver: b, Source: b, Meter: b, Switch: b}
}

func (b *Bench) SupportedRange(ctx context.Context) (sweep.FrequencyRange, error) {
	return b.cfg.Range, nil
}

func (b *Bench) Tune(ctx context.Context, req instrument.TuneRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.CenterFreq < b.cfg.Range.Start || req.CenterFreq > b.cfg.Range.Stop {
		return fmt.Errorf("sim: center frequency %g Hz outside %g-%g Hz", req.CenterFreq, b.cfg.Range.Start, b.cfg.Range.Stop)
	}
	b.center = req.CenterFreq
	b.tuned = true
	return nil
}

func (b *Bench) AcquireSamples(ctx context.Context, skip, n int) ([]complex128, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.acquire(ctx, n); err != nil {
		return nil, err
	}

	// Discarded samples still advance the noise source.
	for i := 0; i < skip; i++ {
		b.rng.NormFloat64()
		b.rng.NormFloat64()
	}
	return b.samples(n), nil
}

func (b *Bench) AcquirePowerSpectrum(ctx context.Context, req instrument.SpectrumRequest) ([]float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if req.NumAverages <= 0 {
		return nil, fmt.Errorf("sim: number of averages must be positive: %d", req.NumAverages)
	}
	if err := b.acquire(ctx, req.FFTLen); err != nil {
		return nil, err
	}

	p, ok := b.pipelines[req.FFTLen]
	if !ok {
		var err error
		if p, err = spectrum.NewPipeline(req.FFTLen, spectrum.FlatTop); err != nil {
			return nil, err
		}
		b.pipelines[req.FFTLen] = p
	}

	acc, err := spectrum.NewAccumulator(req.FFTLen, spectrum.ReduceMean)
	if err != nil {
		return nil, err
	}
	if err := p.Process(b.samples(req.FFTLen*req.NumAverages), req.NumAverages, acc); err != nil {
		return nil, err
	}
	return acc.Result()
}

func (b *Bench) acquire(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.closed {
		return errors.New("sim: receiver closed")
	}
	if !b.tuned {
		return errors.New("sim: receiver not tuned")
	}
	if n <= 0 {
		return fmt.Errorf("sim: sample count must be positive: %d", n)
	}
	b.captures++
	if b.cfg.FailAfter > 0 && b.captures > b.cfg.FailAfter {
		return ErrInjected
	}
	return nil
}

// samples generates n IQ samples: complex Gaussian noise at the noise floor
// plus the generator tone when it reaches the receiver.
func (b *Bench) samples(n int) []complex128 {
	out := make([]complex128, n)

	// Per-component standard deviation for total noise power P into 50 ohms.
	sigma := math.Sqrt(dbmToWatts(b.cfg.NoiseFloor) * spectrum.DefaultImpedance / 2)

	var amp, omega float64
	if in, ok := b.inputLevel(); ok && b.path == pathDUT {
		offset := b.genFreq - b.center
		if math.Abs(offset) < b.cfg.SampleRate/2 {
			amp = math.Sqrt(dbmToWatts(b.response(in)) * spectrum.DefaultImpedance)
			omega = 2 * math.Pi * offset / b.cfg.SampleRate
		}
	}

	k := 1 / b.cfg.ScaleError
	for i := range out {
		noise := complex(sigma*b.rng.NormFloat64(), sigma*b.rng.NormFloat64())
		tone := complex(amp, 0) * cmplx.Exp(complex(0, omega*float64(i)))
		out[i] = (tone + noise) * complex(k, 0)
	}
	return out
}

// inputLevel returns the level at the DUT input when the generator is on.
func (b *Bench) inputLevel() (float64, bool) {
	if !b.rfOn {
		return 0, false
	}
	return b.genLevel - b.cfg.Attenuation, true
}

// response maps the DUT input level to the output level seen by the receiver.
func (b *Bench) response(in float64) float64 {
	knee := b.cfg.Knee + b.cfg.KneeTilt*(b.genFreq-1e9)/1e9
	if in <= knee {
		return in + b.cfg.Gain
	}
	return knee + b.cfg.Gain + (in-knee)*b.cfg.Compression
}

// Measure reads the reference power meter.
func (b *Bench) Measure(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if in, ok := b.inputLevel(); ok && b.path == pathReference {
		return in, nil
	}
	return b.cfg.NoiseFloor, nil
}

func (b *Bench) SelectReference(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = pathReference
	return ctx.Err()
}

func (b *Bench) SelectDeviceUnderTest(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = pathDUT
	return ctx.Err()
}

func (b *Bench) SetAmplitude(ctx context.Context, dbm float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.genLevel = dbm
	if in := dbm - b.cfg.Attenuation; in > b.maxAtDUT {
		b.maxAtDUT = in
	}
	return ctx.Err()
}

func (b *Bench) SetFrequency(ctx context.Context, hz float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.genFreq = hz
	return ctx.Err()
}

func (b *Bench) RFOn(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rfOn = true
	return ctx.Err()
}

func (b *Bench) RFOff(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rfOn = false
	b.rfOffs++
	return nil
}

func (b *Bench) Preset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rfOn = false
	b.genLevel = math.Inf(-1)
	b.presets++
	return nil
}

func (b *Bench) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// State is a snapshot of the simulated instruments.
type State struct {
	RFOn     bool
	Closed   bool
	Captures int
	Presets  int
	RFOffs   int
	MaxAtDUT float64 // Highest level ever requested at the DUT input, dBm
}

func (b *Bench) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		RFOn:     b.rfOn,
		Closed:   b.closed,
		Captures: b.captures,
		Presets:  b.presets,
		RFOffs:   b.rfOffs,
		MaxAtDUT: b.maxAtDUT,
	}
}

func dbmToWatts(dbm float64) float64 {
	return math.Pow(10, (dbm-30)/10)
}
