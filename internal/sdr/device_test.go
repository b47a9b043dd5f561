package sdr

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"strconv"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
	"gonum.org/v1/gonum/floats"
)

// fakeHandler runs this test binary as the capture tool.
type fakeHandler struct {
	mode     string
	captures []Capture
}

func (h *fakeHandler) Cmd(ctx context.Context, c Capture) (*exec.Cmd, error) {
	h.captures = append(h.captures, c)

	cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperCapture", "--",
		h.mode, c.Path, strconv.Itoa(c.NumSamples))
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	return cmd, nil
}

func (h *fakeHandler) Format() Format { return FormatCF32 }

func (h *fakeHandler) Device() string { return "fake" }

// TestHelperCapture is not a real test: it is the capture tool started by
// fakeHandler. It writes a tone at bin 4 of a 64 point FFT: the first sample
// index of every capture is marked with amplitude 0 so skipping can be seen.
func TestHelperCapture(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	defer os.Exit(0)

	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	mode, path := args[1], args[2]
	n, _ := strconv.Atoi(args[3])

	fmt.Fprintln(os.Stderr, "fake tool starting")

	if mode == "fail" {
		fmt.Fprintln(os.Stderr, "no device found")
		os.Exit(1)
	}
	if mode == "short" {
		n /= 2
	}

	f, err := os.Create(path)
	if err != nil {
		os.Exit(2)
	}
	w := bufio.NewWriter(f)
	for i := 0; i < n; i++ {
		amp := 1.0
		if i == 0 {
			amp = 0
		}
		phase := 2 * math.Pi * 4 * float64(i) / 64
		_ = binary.Write(w, binary.LittleEndian, float32(amp*math.Cos(phase)))
		_ = binary.Write(w, binary.LittleEndian, float32(amp*math.Sin(phase)))
	}
	_ = w.Flush()
	_ = f.Close()
}

func newTestDevice(t *testing.T, mode string) (*Device, *fakeHandler) {
	t.Helper()
	h := &fakeHandler{mode: mode}
	d, err := NewDevice("test-0", h, 1e6, sweep.FrequencyRange{Start: 70e6, Stop: 6e9}, WithTempDir(t.TempDir()))
	if err != nil {
		t.Fatalf("Failed to create device: %v", err)
	}
	return d, h
}

func TestDevice_AcquireSamples(t *testing.T) {
	d, h := newTestDevice(t, "ok")
	ctx := context.Background()

	if _, err := d.AcquireSamples(ctx, 0, 16); !errors.Is(err, ErrNotTuned) {
		t.Fatalf("Expected ErrNotTuned, got %v", err)
	}

	if err := d.Tune(ctx, instrument.TuneRequest{CenterFreq: 100e6, LOOffset: 2e6, IntegerN: true}); err != nil {
		t.Fatalf("Failed to tune: %v", err)
	}

	samples, err := d.AcquireSamples(ctx, 1, 128)
	if err != nil {
		t.Fatalf("Failed to acquire: %v", err)
	}
	if len(samples) != 128 {
		t.Fatalf("Expected 128 samples, got %d", len(samples))
	}
	if math.Abs(real(samples[0])*real(samples[0])+imag(samples[0])*imag(samples[0])-1) > 1e-6 {
		t.Errorf("Skipped sample must not be returned, got %v", samples[0])
	}

	c := h.captures[0]
	if c.NumSamples != 129 || c.CenterFreq != 100e6 || c.LOOffset != 2e6 || !c.IntegerN || c.SampleRate != 1e6 {
		t.Errorf("Unexpected capture request %+v", c)
	}
	if _, err := os.Stat(c.Path); !os.IsNotExist(err) {
		t.Error("Capture file must be removed")
	}
}

func TestDevice_AcquirePowerSpectrum(t *testing.T) {
	d, _ := newTestDevice(t, "ok")
	ctx := context.Background()
	_ = d.Tune(ctx, instrument.TuneRequest{CenterFreq: 1e9})

	power, err := d.AcquirePowerSpectrum(ctx, instrument.SpectrumRequest{FFTLen: 64, NumAverages: 3, Skip: 1})
	if err != nil {
		t.Fatalf("Failed to acquire spectrum: %v", err)
	}
	if len(power) != 64 {
		t.Fatalf("Expected 64 bins, got %d", len(power))
	}
	if idx := floats.MaxIdx(power); idx != 32+4 {
		t.Errorf("Expected tone at shifted bin 36, got %d", idx)
	}
}

func TestDevice_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("tool exits with error", func(t *testing.T) {
		d, _ := newTestDevice(t, "fail")
		_ = d.Tune(ctx, instrument.TuneRequest{CenterFreq: 1e9})
		if _, err := d.AcquireSamples(ctx, 0, 16); err == nil {
			t.Error("Expected error")
		}
	})

	t.Run("short capture", func(t *testing.T) {
		d, _ := newTestDevice(t, "short")
		_ = d.Tune(ctx, instrument.TuneRequest{CenterFreq: 1e9})
		if _, err := d.AcquireSamples(ctx, 0, 16); !errors.Is(err, ErrShortCapture) {
			t.Errorf("Expected ErrShortCapture, got %v", err)
		}
	})

	t.Run("tune out of range", func(t *testing.T) {
		d, _ := newTestDevice(t, "ok")
		if err := d.Tune(ctx, instrument.TuneRequest{CenterFreq: 10e6}); err == nil {
			t.Error("Expected error")
		}
	})
}
