package spectrum

import (
	"time"

	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// TestType names a calibration procedure.
type TestType string

const (
	TestDANL     TestType = "danl"
	TestP1dB     TestType = "p1db"
	TestPowerCal TestType = "pcal"
)

// Run represents a single calibration run against a specific device.
// Each run captures metadata about when and how the test was performed.
type Run struct {
	ID         int64     `json:"ID"`                      // Unique identifier for the run
	UUID       string    `json:"uuid"`                    // Globally unique run identifier
	StartTime  time.Time `json:"startTime"`               // When the run began
	TestType   TestType  `json:"testType"`                // Procedure executed (danl, p1db, pcal)
	DeviceType string    `json:"deviceType"`              // Type of SDR device used (e.g., "uhd", "hackrf")
	DeviceID   string    `json:"deviceID"`                // Unique identifier of the specific device (e.g., serial number)
	Config     *string   `json:"config,string,omitempty"` // Optional run configuration in JSON format
}

// SpectralPoint represents a single calibrated bin of a stitched spectrum.
type SpectralPoint struct {
	Frequency float64 `json:"frequency"` // Bin frequency in Hz
	Power     float64 `json:"power"`     // Power level in dBm
	BinWidth  float64 `json:"binWidth"`  // Frequency bin width in Hz
}

// BandSpectrum is the stitched spectrum of one octave band, as stored for reporting.
type BandSpectrum struct {
	Band   sweep.Band      `json:"band"`
	Points []SpectralPoint `json:"points,omitempty"` // Ordered by frequency
}

// CompressionPoint is one row of a P1dB table.
type CompressionPoint struct {
	Frequency float64 `json:"frequency"` // Test frequency in Hz
	Amplitude float64 `json:"amplitude"` // Compression amplitude, or the ceiling when not reached
	Reached   bool    `json:"reached"`   // False when the ceiling was hit without compression
}

// PowerPair is one reference/device reading of a power calibration.
type PowerPair struct {
	Reference float64 `json:"reference"` // Reference meter reading in dBm
	Device    float64 `json:"device"`    // Device under test reading in dBm
}
