package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/instrument/sim"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestStore(t *testing.T, config *Config) *storage.SqliteStore {
	t.Helper()
	store := storage.NewSqliteStore(filepath.Join(config.Storage.DataDirectory, config.Storage.File))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	config := newTestConfig(t)
	config.Radio.Sim.ScaleError = 2

	for _, test := range []spectrum.TestType{spectrum.TestDANL, spectrum.TestP1dB, spectrum.TestPowerCal} {
		if err := Run(ctx, config, test, discardLogger()); err != nil {
			t.Fatalf("Run %s failed: %v", test, err)
		}
	}

	store := openTestStore(t, config)

	runs, err := store.Runs(ctx)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("Expected 3 runs, got %d", len(runs))
	}
	for _, r := range runs {
		if r.DeviceType != string(RadioSim) || r.DeviceID != "sim-0" || r.Config == nil {
			t.Errorf("Unexpected run record %+v", r)
		}
	}

	t.Run("danl", func(t *testing.T) {
		bands, err := store.Spectrum(ctx, runs[0].ID)
		if err != nil {
			t.Fatalf("Failed to read spectrum: %v", err)
		}
		if len(bands) != 2 {
			t.Fatalf("Expected 2 bands, got %d", len(bands))
		}
		if bands[0].Band.Start != 100e6 || bands[1].Band.Stop != 300e6 {
			t.Errorf("Unexpected bands %v, %v", bands[0].Band, bands[1].Band)
		}
		for _, b := range bands {
			if len(b.Points) == 0 || b.Points[0].BinWidth != config.Radio.SampleRate/float64(config.DANL.FFTLen) {
				t.Errorf("Band %s: unexpected points", b.Band)
			}
		}
	})

	t.Run("p1db", func(t *testing.T) {
		points, err := store.Compression(ctx, runs[1].ID)
		if err != nil {
			t.Fatalf("Failed to read compression: %v", err)
		}
		if len(points) != 1 || !points[0].Reached || points[0].Amplitude != -28 {
			t.Errorf("Unexpected compression points %+v", points)
		}
	})

	t.Run("pcal", func(t *testing.T) {
		pairs, err := store.PowerPairs(ctx, runs[2].ID)
		if err != nil {
			t.Fatalf("Failed to read power pairs: %v", err)
		}
		if len(pairs) != config.PowerCal.Measurements {
			t.Errorf("Expected %d pairs, got %d", config.PowerCal.Measurements, len(pairs))
		}

		factor, err := store.ScaleFactor(ctx, runs[2].ID)
		if err != nil {
			t.Fatalf("Failed to read scale factor: %v", err)
		}
		if math.Abs(factor-2) > 0.01 {
			t.Errorf("Expected scale factor 2, got %g", factor)
		}
	})
}

func TestRun_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown test", func(t *testing.T) {
		config := newTestConfig(t)
		if err := Run(ctx, config, "sweep", discardLogger()); err == nil || !strings.Contains(err.Error(), "unknown test type") {
			t.Errorf("Expected unknown test type error, got %v", err)
		}
	})

	t.Run("missing storage directory", func(t *testing.T) {
		config := newTestConfig(t)
		config.Storage.DataDirectory = filepath.Join(t.TempDir(), "missing")
		if err := Run(ctx, config, spectrum.TestDANL, discardLogger()); err == nil || !strings.Contains(err.Error(), "does not exist") {
			t.Errorf("Expected missing directory error, got %v", err)
		}
	})

	t.Run("failed run is recorded", func(t *testing.T) {
		config := newTestConfig(t)
		config.Radio.Sim.FailAfter = 1

		err := Run(ctx, config, spectrum.TestDANL, discardLogger())
		if err == nil || !strings.Contains(err.Error(), "run 1 failed") {
			t.Fatalf("Expected run failure, got %v", err)
		}

		store := openTestStore(t, config)
		runs, err := store.Runs(ctx)
		if err != nil {
			t.Fatalf("Failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("Expected 1 run, got %d", len(runs))
		}
		if _, err = store.Spectrum(ctx, runs[0].ID); !errors.Is(err, storage.ErrNoData) {
			t.Errorf("Expected ErrNoData, got %v", err)
		}
	})
}

func TestGuardBench(t *testing.T) {
	t.Run("guarded", func(t *testing.T) {
		config := newTestConfig(t)
		bench, _, err := createSimBench(config)
		if err != nil {
			t.Fatalf("Failed to create bench: %v", err)
		}

		guard, err := guardBench(&bench, config)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if guard == nil || bench.Source != guard {
			t.Error("Expected the generator behind the guard")
		}
	})

	t.Run("invalid guard closes the bench", func(t *testing.T) {
		config := newTestConfig(t)
		config.P1dB.Attenuation = -1
		bench, _, err := createSimBench(config)
		if err != nil {
			t.Fatalf("Failed to create bench: %v", err)
		}
		b := bench.Receiver.(*sim.Bench)

		_, err = guardBench(&bench, config)
		var ce *fault.ConfigError
		if !errors.As(err, &ce) {
			t.Fatalf("Expected ConfigError, got %v", err)
		}
		if !b.State().Closed {
			t.Error("Expected the bench closed after a failed guard")
		}
	})
}
