package storage

import (
	"context"
	"errors"

	"github.com/roman-kulish/radio-calibration/internal/spectrum"
)

// ErrNoData indicates that no results of the requested kind exist for a run.
var ErrNoData = errors.New("no data available")

// Store provides an interface for managing calibration results storage operations.
// It handles runs, stitched spectra, compression tables and power calibration
// results. All operations that write to the database should be considered atomic.
type Store interface {
	// CreateRun initializes a new calibration run and returns it.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - testType: Procedure executed by the run
	//   - deviceType: Type of SDR device (e.g., "uhd", "hackrf")
	//   - deviceID: Unique identifier of the device (e.g., serial number)
	//   - config: Optional run configuration. Can be string, []byte, or JSON-serializable object
	//
	// Returns:
	//   - run: The stored run, including its generated ID and UUID
	//   - error: If run creation fails or context is cancelled
	CreateRun(ctx context.Context, testType spectrum.TestType, deviceType, deviceID string, config any) (run *spectrum.Run, err error)

	// Run retrieves a specific run by its ID.
	Run(ctx context.Context, id int64) (run *spectrum.Run, err error)

	// Runs returns all runs stored in the database, ordered by start time.
	Runs(ctx context.Context) (runs []*spectrum.Run, err error)

	// StoreSpectrum saves the stitched spectrum of one band. All points of the
	// band are stored in a single atomic transaction.
	StoreSpectrum(ctx context.Context, runID int64, band *spectrum.BandSpectrum) error

	// Spectrum returns every band stored for the run, ordered by frequency.
	// Returns ErrNoData when the run has no spectrum.
	Spectrum(ctx context.Context, runID int64) ([]*spectrum.BandSpectrum, error)

	// StoreCompression saves a P1dB table.
	StoreCompression(ctx context.Context, runID int64, points []spectrum.CompressionPoint) error

	// Compression returns the P1dB table of the run, ordered by frequency.
	// Returns ErrNoData when the run has no compression points.
	Compression(ctx context.Context, runID int64) ([]spectrum.CompressionPoint, error)

	// StorePowerPairs saves the paired measurements of a power calibration,
	// in measurement order.
	StorePowerPairs(ctx context.Context, runID int64, pairs []spectrum.PowerPair) error

	// PowerPairs returns the paired measurements of the run in measurement order.
	// Returns ErrNoData when the run has no pairs.
	PowerPairs(ctx context.Context, runID int64) ([]spectrum.PowerPair, error)

	// StoreScaleFactor saves the scale factor of the run, replacing any
	// previously stored value.
	StoreScaleFactor(ctx context.Context, runID int64, factor float64) error

	// ScaleFactor returns the scale factor of the run.
	// Returns ErrNoData when none was stored.
	ScaleFactor(ctx context.Context, runID int64) (float64, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	Close() error
}
