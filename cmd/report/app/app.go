package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"github.com/roman-kulish/radio-calibration/internal/storage"
)

const (
	danlPercentile = 0.01
	danlMinRange   = 30.0
	levelMinRange  = 10.0
)

// Run renders the results of one stored calibration run to an image file.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	if _, err = os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer func() {
		err = errors.Join(err, store.Close())
	}()

	run, err := store.Run(ctx, config.RunID)
	if err != nil {
		return fmt.Errorf("reading run %d: %w", config.RunID, err)
	}

	logger.Info("reading run",
		slog.Int64("runID", run.ID),
		slog.String("uuid", run.UUID),
		slog.String("test", string(run.TestType)),
		slog.String("device", run.DeviceType),
		slog.String("deviceID", run.DeviceID))

	chart, bounds, err := loadChart(ctx, store, run)
	if err != nil {
		return err
	}
	bounds = bounds.Override(config.MinPower, config.MaxPower)

	renderer, err := NewChartRenderer(RenderConfig{
		Width:         config.Width,
		Height:        config.Height,
		ColorTheme:    config.Theme,
		NoAnnotations: config.NoAnnotations,
	})
	if err != nil {
		return fmt.Errorf("creating chart renderer: %w", err)
	}

	logger.Info("rendering chart",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.Int("width", config.Width),
			slog.Int("height", config.Height),
		),
		slog.Float64("minPower", bounds.Min),
		slog.Float64("maxPower", bounds.Max))

	img, err := renderer.Render(chart, bounds)
	if err != nil {
		return fmt.Errorf("rendering chart: %w", err)
	}

	out, err := os.Create(config.OutputFile)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	return encodeImage(out, img, config.Format)
}

// loadChart reads the results of run and builds its chart and bounds.
func loadChart(ctx context.Context, store storage.Store, run *spectrum.Run) (*Chart, PowerBounds, error) {
	switch run.TestType {
	case spectrum.TestDANL:
		bands, err := store.Spectrum(ctx, run.ID)
		if err != nil {
			return nil, PowerBounds{}, fmt.Errorf("reading spectrum: %w", err)
		}
		chart := danlChart(run, bands)
		return chart, NewPowerBounds(chart.Values(), danlPercentile, danlMinRange), nil

	case spectrum.TestP1dB:
		points, err := store.Compression(ctx, run.ID)
		if err != nil {
			return nil, PowerBounds{}, fmt.Errorf("reading compression points: %w", err)
		}
		chart := compressionChart(run, points)
		return chart, NewPowerBounds(chart.Values(), 0, levelMinRange), nil

	case spectrum.TestPowerCal:
		pairs, err := store.PowerPairs(ctx, run.ID)
		if err != nil {
			return nil, PowerBounds{}, fmt.Errorf("reading power pairs: %w", err)
		}
		factor, err := store.ScaleFactor(ctx, run.ID)
		if errors.Is(err, storage.ErrNoData) {
			factor = math.NaN()
		} else if err != nil {
			return nil, PowerBounds{}, fmt.Errorf("reading scale factor: %w", err)
		}
		chart := powerCalChart(run, pairs, factor)
		return chart, NewPowerBounds(chart.Values(), 0, levelMinRange), nil

	default:
		return nil, PowerBounds{}, fmt.Errorf("unknown test type '%s' of run %d", run.TestType, run.ID)
	}
}

func encodeImage(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)

	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{
			Quality: 98,
		})

	default:
		return fmt.Errorf("invalid image format: %s", format)
	}
}
