package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/metrics"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/storage"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

const pushTimeout = 10 * time.Second

// Run executes one calibration procedure: it connects the bench, records a
// run, measures, and stores and exports the results. The bench is always
// returned to a safe state before Run returns.
func Run(ctx context.Context, config *Config, test spectrum.TestType, logger *slog.Logger) (err error) {
	if err = config.ValidateFor(test); err != nil {
		return err
	}

	store, err := createStorage(&config.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	bench, device, err := createBench(ctx, config, logger)
	if err != nil {
		return fmt.Errorf("failed to create bench: %w", err)
	}

	guard, err := guardBench(&bench, config)
	if err != nil {
		return err
	}

	session, err := instrument.Open(ctx, bench,
		instrument.WithSessionLogger(logger),
		instrument.WithShutdownTimeout(config.Instruments.Timeout.Std()*2))
	if err != nil {
		return fmt.Errorf("failed to open bench: %w", err)
	}
	defer func() {
		err = errors.Join(err, session.Close())
	}()

	run, err := store.CreateRun(ctx, test, device.Type, device.ID, config)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	logger = logger.With(slog.String("run", run.UUID), slog.String("test", string(test)))
	logger.Info("starting run", slog.String("device", device.Type), slog.String("deviceID", device.ID))

	m := metrics.New()
	o := NewOrchestrator(session.Bench(), guard, config, WithLogger(logger))

	start := time.Now()
	err = execute(ctx, o, store, m, run, test)
	m.ObserveRun(test, time.Since(start), err)

	if config.Metrics.Enabled() {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()

		if pErr := m.Push(pushCtx, config.Metrics, run); pErr != nil {
			logger.Error("failed to push metrics", slog.String("error", pErr.Error()))
		}
	}

	if err != nil {
		return fmt.Errorf("run %d failed: %w", run.ID, err)
	}

	logger.Info("run completed", slog.Int64("runID", run.ID), slog.Duration("duration", time.Since(start)))
	return nil
}

// guardBench puts the protection guard in front of the bench's signal
// generator. On error the bench is closed.
func guardBench(bench *instrument.Bench, config *Config) (*instrument.Guard, error) {
	if bench.Source == nil {
		return nil, nil
	}

	guard, err := instrument.NewGuard(bench.Source, config.P1dB.Ceiling, config.P1dB.Attenuation)
	if err != nil {
		return nil, errors.Join(err, instrument.CloseBench(*bench))
	}
	bench.Source = guard
	return guard, nil
}

func execute(ctx context.Context, o *Orchestrator, store storage.Store, m *metrics.Metrics, run *spectrum.Run, test spectrum.TestType) error {
	switch test {
	case spectrum.TestDANL:
		return o.DANL(ctx, func(s *spectrum.Stitched, plan *sweep.Plan) error {
			band := spectrum.BandSpectrum{Band: s.Band, Points: s.Points(plan.DeltaF)}
			m.ObserveSpectrum(&band)
			return store.StoreSpectrum(ctx, run.ID, &band)
		})

	case spectrum.TestP1dB:
		points, err := o.P1dB(ctx)
		if err != nil {
			return err
		}
		m.ObserveCompression(points)
		return store.StoreCompression(ctx, run.ID, points)

	case spectrum.TestPowerCal:
		res, err := o.PowerCal(ctx)
		if err != nil {
			return err
		}
		m.ObserveScaleFactor(res.ScaleFactor)
		if err = store.StorePowerPairs(ctx, run.ID, res.Pairs); err != nil {
			return err
		}
		return store.StoreScaleFactor(ctx, run.ID, res.ScaleFactor)

	default:
		return fmt.Errorf("unknown test type '%s'", test)
	}
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	dir := config.DataDirectory
	if dir == "" {
		dir = defaultStorageDir
	}
	if !filepath.IsAbs(dir) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current working directory: %w", err)
		}
		dir = filepath.Join(wd, dir)
	}

	stat, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dir, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dir)
	}

	return storage.NewSqliteStore(filepath.Join(dir, config.File)), nil
}
