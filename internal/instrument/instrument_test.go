package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// recorder is an AmplitudeSource, meter, switch and receiver that records
// every call.
type recorder struct {
	calls     []string
	presetErr error
	closed    int
}

func (r *recorder) SetAmplitude(ctx context.Context, dbm float64) error {
	r.calls = append(r.calls, "amplitude")
	return nil
}

func (r *recorder) SetFrequency(ctx context.Context, hz float64) error {
	r.calls = append(r.calls, "frequency")
	return nil
}

func (r *recorder) RFOn(ctx context.Context) error {
	r.calls = append(r.calls, "rfon")
	return nil
}

func (r *recorder) RFOff(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.calls = append(r.calls, "rfoff")
	return nil
}

func (r *recorder) Preset(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.calls = append(r.calls, "preset")
	return r.presetErr
}

func (r *recorder) SupportedRange(ctx context.Context) (sweep.FrequencyRange, error) {
	return sweep.FrequencyRange{Start: 70e6, Stop: 6e9}, nil
}

func (r *recorder) Tune(ctx context.Context, req TuneRequest) error { return nil }

func (r *recorder) AcquirePowerSpectrum(ctx context.Context, req SpectrumRequest) ([]float64, error) {
	return make([]float64, req.FFTLen), nil
}

func (r *recorder) AcquireSamples(ctx context.Context, skip, n int) ([]complex128, error) {
	return make([]complex128, n), nil
}

func (r *recorder) Measure(ctx context.Context) (float64, error) {
	r.calls = append(r.calls, "measure")
	return -40, nil
}

func (r *recorder) Close() error {
	r.closed++
	return nil
}

func TestGuard_RejectsAboveCeiling(t *testing.T) {
	src := &recorder{}
	g, err := NewGuard(src, -15, 0)
	if err != nil {
		t.Fatalf("Failed to create guard: %v", err)
	}
	_ = g.SetFrequency(context.Background(), 1e9)
	src.calls = nil

	err = g.SetAmplitude(context.Background(), -10)

	var violation *fault.SafetyViolation
	if !errors.As(err, &violation) {
		t.Fatalf("Expected SafetyViolation, got %v", err)
	}
	if violation.Requested != -10 || violation.Ceiling != -15 {
		t.Errorf("Unexpected violation fields: %+v", violation)
	}
	if violation.Context.Frequency != 1e9 {
		t.Errorf("Expected frequency in context, got %+v", violation.Context)
	}
	if len(src.calls) != 0 {
		t.Errorf("No instrument write expected, got %v", src.calls)
	}
}

func TestGuard_Attenuation(t *testing.T) {
	src := &recorder{}
	g, _ := NewGuard(src, -15, 20)

	// -10 dBm at the generator is -30 dBm at the DUT
	if err := g.SetAmplitude(context.Background(), -10); err != nil {
		t.Errorf("Expected -10 dBm to pass with 20 dB attenuation: %v", err)
	}
	if err := g.SetDUTAmplitude(context.Background(), -16); err != nil {
		t.Errorf("Expected -16 dBm at the DUT to pass: %v", err)
	}
	if err := g.SetDUTAmplitude(context.Background(), -14); err == nil {
		t.Error("Expected -14 dBm at the DUT to be refused")
	}
	if len(src.calls) != 2 {
		t.Errorf("Expected 2 writes, got %v", src.calls)
	}
}

func TestGuard_AtCeiling(t *testing.T) {
	g, _ := NewGuard(&recorder{}, -15, 0)
	if err := g.SetAmplitude(context.Background(), -15); err != nil {
		t.Errorf("The ceiling itself is allowed: %v", err)
	}
}

func TestSession_CloseAfterCancel(t *testing.T) {
	src := &recorder{}
	meter := &recorder{}

	ctx, cancel := context.WithCancel(context.Background())
	s, err := Open(ctx, Bench{Receiver: &recorder{}, Source: src, Meter: meter})
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}

	cancel()
	if err := s.Close(); err != nil {
		t.Fatalf("Close must succeed after cancellation: %v", err)
	}

	expected := []string{"preset", "rfoff", "rfoff", "preset"}
	if len(src.calls) != len(expected) {
		t.Fatalf("Expected calls %v, got %v", expected, src.calls)
	}
	for i := range expected {
		if src.calls[i] != expected[i] {
			t.Errorf("Call %d: expected %s, got %s", i, expected[i], src.calls[i])
		}
	}
	if src.closed != 1 || meter.closed != 1 {
		t.Errorf("Expected every closer closed once, got source %d meter %d", src.closed, meter.closed)
	}

	_ = s.Close()
	if src.closed != 1 {
		t.Error("Close must be idempotent")
	}
}

func TestSession_GuardedSource(t *testing.T) {
	src := &recorder{}
	g, _ := NewGuard(src, -15, 0)

	s, err := Open(context.Background(), Bench{Receiver: src, Source: g})
	if err != nil {
		t.Fatalf("Failed to open session: %v", err)
	}
	_ = s.Close()

	if src.closed != 1 {
		t.Errorf("Guarded source must be closed exactly once, got %d", src.closed)
	}
}

func TestSession_OpenFailureShutsDown(t *testing.T) {
	src := &recorder{presetErr: errors.New("instrument busy")}

	_, err := Open(context.Background(), Bench{Receiver: &recorder{}, Source: src})
	if err == nil {
		t.Fatal("Expected error from Open")
	}
	if src.closed != 1 {
		t.Error("Expected source closed after failed Open")
	}
	if src.calls[len(src.calls)-2] != "rfoff" {
		t.Errorf("Expected RF off during shutdown, got %v", src.calls)
	}
}

func TestSettle(t *testing.T) {
	if err := Settle(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := Settle(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Settle did not return on cancellation")
	}
}

func TestCloseBench(t *testing.T) {
	src := &recorder{}
	meter := &recorder{}
	g, _ := NewGuard(src, -15, 0)

	if err := CloseBench(Bench{Receiver: src, Source: g, Meter: meter}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if src.closed != 1 || meter.closed != 1 {
		t.Errorf("Expected every closer closed once, got source %d meter %d", src.closed, meter.closed)
	}
	if len(src.calls) != 0 || len(meter.calls) != 0 {
		t.Errorf("Closing must not send commands, got %v %v", src.calls, meter.calls)
	}
}
