package app

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/instrument/sim"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
	"gonum.org/v1/gonum/stat"
)

// newTestConfig returns a small, fast configuration for the simulated bench.
func newTestConfig(t *testing.T) *Config {
	t.Helper()

	c := NewConfig()
	c.Radio.Type = RadioSim
	c.Radio.SampleRate = 1e6
	c.Radio.Samples = 4096
	c.Radio.Skip = 16
	c.Radio.Sim.Attenuation = 10

	c.DANL.Range = &sweep.FrequencyRange{Start: 100e6, Stop: 300e6}
	c.DANL.FFTLen = 64
	c.DANL.Averages = 2

	c.P1dB.Attenuation = 10
	c.P1dB.Frequencies = []float64{1e9}

	c.PowerCal.Frequency = 1e9
	c.PowerCal.Amplitude = -30
	c.PowerCal.Measurements = 3
	c.PowerCal.TimeBetweenMeasurements = Duration(0)

	c.Settle = SettleConfig{}
	c.Storage.DataDirectory = t.TempDir()

	if err := c.Validate(); err != nil {
		t.Fatalf("Invalid test config: %v", err)
	}
	return c
}

// newTestOrchestrator opens a session on a simulated bench the way Run does.
func newTestOrchestrator(t *testing.T, config *Config) (*Orchestrator, *sim.Bench, *instrument.Session) {
	t.Helper()

	bench, _, err := createSimBench(config)
	if err != nil {
		t.Fatalf("Failed to create bench: %v", err)
	}
	simBench := bench.Receiver.(*sim.Bench)

	guard, err := instrument.NewGuard(bench.Source, config.P1dB.Ceiling, config.P1dB.Attenuation)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}
	bench.Source = guard

	session, err := instrument.Open(context.Background(), bench)
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	return NewOrchestrator(session.Bench(), guard, config), simBench, session
}

func collectDANL(t *testing.T, o *Orchestrator) ([]*spectrum.Stitched, []*sweep.Plan) {
	t.Helper()

	var bands []*spectrum.Stitched
	var plans []*sweep.Plan
	err := o.DANL(context.Background(), func(s *spectrum.Stitched, plan *sweep.Plan) error {
		bands = append(bands, s)
		plans = append(plans, plan)
		return nil
	})
	if err != nil {
		t.Fatalf("DANL failed: %v", err)
	}
	return bands, plans
}

func TestOrchestrator_DANL(t *testing.T) {
	config := newTestConfig(t)
	o, b, _ := newTestOrchestrator(t, config)

	bands, plans := collectDANL(t, o)
	if len(bands) != 2 {
		t.Fatalf("Expected 2 bands, got %d", len(bands))
	}

	// Noise power per bin: total noise in watts spread over the fft length.
	expected := config.Radio.Sim.NoiseFloor - 30 - 10*math.Log10(float64(config.DANL.FFTLen))

	for i, s := range bands {
		plan := plans[i]
		if len(s.Power) != plan.NumBins() || len(s.Freqs) != plan.NumBins() {
			t.Fatalf("Band %s: expected %d bins, got %d", s.Band, plan.NumBins(), len(s.Power))
		}
		if s.Freqs[0] < s.Band.Start || s.Freqs[len(s.Freqs)-1] > s.Band.Stop+plan.Step {
			t.Errorf("Band %s: bins %g-%g outside band", s.Band, s.Freqs[0], s.Freqs[len(s.Freqs)-1])
		}
		for j := 1; j < len(s.Freqs); j++ {
			if s.Freqs[j] <= s.Freqs[j-1] {
				t.Fatalf("Band %s: frequencies not increasing at %d", s.Band, j)
			}
		}
		if mean := stat.Mean(s.Power, nil); math.Abs(mean-expected) > 3 {
			t.Errorf("Band %s: mean noise %.2f, expected %.2f", s.Band, mean, expected)
		}
	}

	if b.State().RFOn {
		t.Error("RF must be off during a DANL sweep")
	}
}

func TestOrchestrator_DANLMaxReduction(t *testing.T) {
	meanCfg := newTestConfig(t)
	meanCfg.DANL.Averages = 4
	o, _, _ := newTestOrchestrator(t, meanCfg)
	meanBands, _ := collectDANL(t, o)

	maxCfg := newTestConfig(t)
	maxCfg.DANL.Averages = 4
	maxCfg.DANL.Reduction = spectrum.ReduceMax
	o, b, _ := newTestOrchestrator(t, maxCfg)
	maxBands, plans := collectDANL(t, o)

	for i := range maxBands {
		meanPower := stat.Mean(meanBands[i].Power, nil)
		maxPower := stat.Mean(maxBands[i].Power, nil)
		if maxPower <= meanPower {
			t.Errorf("Band %s: max reduction %.2f not above mean %.2f", maxBands[i].Band, maxPower, meanPower)
		}
	}

	// One capture per frame and segment.
	want := 0
	for _, p := range plans {
		want += p.NumSegments * maxCfg.DANL.Averages
	}
	if got := b.State().Captures; got != want {
		t.Errorf("Expected %d captures, got %d", want, got)
	}
}

func TestOrchestrator_DANLAcquisitionFailure(t *testing.T) {
	config := newTestConfig(t)
	config.Radio.Sim.FailAfter = 3
	o, _, _ := newTestOrchestrator(t, config)

	err := o.DANL(context.Background(), func(*spectrum.Stitched, *sweep.Plan) error { return nil })

	var ae *fault.AcquisitionError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected AcquisitionError, got %v", err)
	}
	if !errors.Is(err, sim.ErrInjected) {
		t.Errorf("Expected the injected failure to be wrapped, got %v", err)
	}
	if ae.Context.Segment != 3 || ae.Context.Band == "" {
		t.Errorf("Expected failure at segment 3 of the first band, got %+v", ae.Context)
	}
}

func TestOrchestrator_P1dB(t *testing.T) {
	config := newTestConfig(t)
	o, b, _ := newTestOrchestrator(t, config)

	points, err := o.P1dB(context.Background())
	if err != nil {
		t.Fatalf("P1dB failed: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("Expected 1 point, got %d", len(points))
	}

	// Knee at -30 dBm with 0.3 dB/dB above it: the residual first reaches
	// 1 dB at -28 dBm.
	p := points[0]
	if !p.Reached || p.Frequency != 1e9 || p.Amplitude != -28 {
		t.Errorf("Expected P1dB reached at -28 dBm at 1 GHz, got %+v", p)
	}

	state := b.State()
	if state.RFOn {
		t.Error("RF must be off after the test")
	}
	if state.MaxAtDUT > config.P1dB.Ceiling {
		t.Errorf("DUT saw %.2f dBm above ceiling %.2f dBm", state.MaxAtDUT, config.P1dB.Ceiling)
	}
	if state.MaxAtDUT != -28 {
		t.Errorf("Sweep must stop at the compression point, DUT saw %.2f dBm", state.MaxAtDUT)
	}
}

func TestOrchestrator_P1dBNotReached(t *testing.T) {
	config := newTestConfig(t)
	config.Radio.Sim.Compression = 1
	o, b, _ := newTestOrchestrator(t, config)

	points, err := o.P1dB(context.Background())
	if err != nil {
		t.Fatalf("P1dB failed: %v", err)
	}

	p := points[0]
	if p.Reached || p.Amplitude != config.P1dB.Ceiling {
		t.Errorf("Expected not reached with the ceiling as amplitude, got %+v", p)
	}

	// The ceiling itself is never requested.
	if seen := b.State().MaxAtDUT; seen >= config.P1dB.Ceiling {
		t.Errorf("DUT saw %.2f dBm, ceiling is %.2f dBm", seen, config.P1dB.Ceiling)
	}
}

func TestOrchestrator_PowerCal(t *testing.T) {
	config := newTestConfig(t)
	config.Radio.Sim.ScaleError = 2
	o, b, _ := newTestOrchestrator(t, config)

	res, err := o.PowerCal(context.Background())
	if err != nil {
		t.Fatalf("PowerCal failed: %v", err)
	}
	if len(res.Pairs) != config.PowerCal.Measurements {
		t.Fatalf("Expected %d pairs, got %d", config.PowerCal.Measurements, len(res.Pairs))
	}

	for i, p := range res.Pairs {
		if p.Reference != -40 {
			t.Errorf("Pair %d: expected reference -40 dBm, got %.3f", i, p.Reference)
		}
		if math.Abs(p.Device-(-40-20*math.Log10(2))) > 0.1 {
			t.Errorf("Pair %d: expected device %.3f dBm, got %.3f", i, -40-20*math.Log10(2), p.Device)
		}
	}

	if math.Abs(res.ScaleFactor-2) > 0.01 {
		t.Errorf("Expected scale factor 2, got %g", res.ScaleFactor)
	}

	if !b.State().RFOn {
		t.Error("Power calibration leaves RF on until the session closes")
	}
}

// recordingReceiver and recordingSource log every command sent to the bench.
type recordingReceiver struct {
	instrument.Receiver
	calls *[]string
}

func (r recordingReceiver) Tune(ctx context.Context, req instrument.TuneRequest) error {
	*r.calls = append(*r.calls, "rx.Tune")
	return r.Receiver.Tune(ctx, req)
}

func (r recordingReceiver) AcquirePowerSpectrum(ctx context.Context, req instrument.SpectrumRequest) ([]float64, error) {
	*r.calls = append(*r.calls, "rx.AcquirePowerSpectrum")
	return r.Receiver.AcquirePowerSpectrum(ctx, req)
}

func (r recordingReceiver) AcquireSamples(ctx context.Context, skip, n int) ([]complex128, error) {
	*r.calls = append(*r.calls, "rx.AcquireSamples")
	return r.Receiver.AcquireSamples(ctx, skip, n)
}

type recordingSource struct {
	instrument.AmplitudeSource
	calls *[]string
}

func (s recordingSource) SetAmplitude(ctx context.Context, dbm float64) error {
	*s.calls = append(*s.calls, "gen.SetAmplitude")
	return s.AmplitudeSource.SetAmplitude(ctx, dbm)
}

func (s recordingSource) SetFrequency(ctx context.Context, hz float64) error {
	*s.calls = append(*s.calls, "gen.SetFrequency")
	return s.AmplitudeSource.SetFrequency(ctx, hz)
}

func (s recordingSource) RFOn(ctx context.Context) error {
	*s.calls = append(*s.calls, "gen.RFOn")
	return s.AmplitudeSource.RFOn(ctx)
}

type recordingSwitch struct {
	instrument.PathSwitch
	calls *[]string
}

func (s recordingSwitch) SelectReference(ctx context.Context) error {
	*s.calls = append(*s.calls, "switch.SelectReference")
	return s.PathSwitch.SelectReference(ctx)
}

func (s recordingSwitch) SelectDeviceUnderTest(ctx context.Context) error {
	*s.calls = append(*s.calls, "switch.SelectDeviceUnderTest")
	return s.PathSwitch.SelectDeviceUnderTest(ctx)
}

func TestOrchestrator_SafetyViolation(t *testing.T) {
	config := newTestConfig(t)
	config.PowerCal.Amplitude = -3 // -13 dBm at the DUT, ceiling -15 dBm

	bench, _, err := createSimBench(config)
	if err != nil {
		t.Fatalf("Failed to create bench: %v", err)
	}
	b := bench.Receiver.(*sim.Bench)

	var calls []string
	bench.Receiver = recordingReceiver{Receiver: bench.Receiver, calls: &calls}
	bench.Switch = recordingSwitch{PathSwitch: bench.Switch, calls: &calls}

	guard, err := instrument.NewGuard(recordingSource{AmplitudeSource: bench.Source, calls: &calls},
		config.P1dB.Ceiling, config.P1dB.Attenuation)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}
	bench.Source = guard

	session, err := instrument.Open(context.Background(), bench)
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	o := NewOrchestrator(session.Bench(), guard, config)
	_, err = o.PowerCal(context.Background())

	var sv *fault.SafetyViolation
	if !errors.As(err, &sv) {
		t.Fatalf("Expected SafetyViolation, got %v", err)
	}
	if sv.Requested != -3 || sv.Ceiling != -15 || sv.Attenuation != 10 {
		t.Errorf("Unexpected violation %+v", sv)
	}
	if len(calls) != 0 {
		t.Errorf("No instrument command may precede the violation, got %v", calls)
	}
	if seen := b.State().MaxAtDUT; !math.IsInf(seen, -1) {
		t.Errorf("Refused level must not reach the generator, DUT saw %.2f dBm", seen)
	}

	if err = session.Close(); err != nil {
		t.Fatalf("Failed to close session: %v", err)
	}
	state := b.State()
	if state.RFOn || !state.Closed {
		t.Errorf("Bench not shut down: %+v", state)
	}
}

func TestOrchestrator_RequiresGenerator(t *testing.T) {
	config := newTestConfig(t)
	bench, _, err := createSimBench(config)
	if err != nil {
		t.Fatalf("Failed to create bench: %v", err)
	}

	o := NewOrchestrator(bench, nil, config)

	var ce *fault.ConfigError
	if _, err = o.P1dB(context.Background()); !errors.As(err, &ce) {
		t.Errorf("Expected ConfigError from P1dB, got %v", err)
	}
	if _, err = o.PowerCal(context.Background()); !errors.As(err, &ce) {
		t.Errorf("Expected ConfigError from PowerCal, got %v", err)
	}
}

func TestOrchestrator_DANLRange(t *testing.T) {
	config := newTestConfig(t)
	config.DANL.Range = nil
	o, _, _ := newTestOrchestrator(t, config)

	r, err := o.DANLRange(context.Background())
	if err != nil {
		t.Fatalf("Failed to get range: %v", err)
	}

	supported := config.Radio.Sim.Range
	if r.Start != supported.Start || r.Stop != supported.Stop-config.Radio.SampleRate/2 {
		t.Errorf("Unexpected DANL range %+v", r)
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	config := newTestConfig(t)
	o, _, _ := newTestOrchestrator(t, config)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.P1dB(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
