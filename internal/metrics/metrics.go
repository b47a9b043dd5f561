package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const namespace = "radio_calibration"

// Config configures the Pushgateway export of calibration results.
type Config struct {
	Pushgateway string `yaml:"pushgateway" json:"pushgateway"` // Pushgateway URL; empty disables pushing
	Job         string `yaml:"job" json:"job"`                 // Job name (default: radio_calibration)
	Instance    string `yaml:"instance" json:"instance"`       // Optional instance grouping label
}

func (c *Config) Validate() error {
	if c.Pushgateway == "" {
		return nil
	}
	u, err := url.Parse(c.Pushgateway)
	if err != nil {
		return fmt.Errorf("metrics.Config: invalid pushgateway URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("metrics.Config: pushgateway URL must be http or https: %s given", c.Pushgateway)
	}
	return nil
}

// Enabled reports whether results should be pushed.
func (c *Config) Enabled() bool {
	return c.Pushgateway != ""
}

// Metrics holds the gauges describing the results of one calibration run.
// Each instance owns its registry, so results of different runs never mix.
type Metrics struct {
	registry *prometheus.Registry

	noiseFloorMean *prometheus.GaugeVec // Mean displayed noise level per band
	noiseFloorMax  *prometheus.GaugeVec // Highest bin per band
	binWidth       *prometheus.GaugeVec // Bin spacing per band
	compression    *prometheus.GaugeVec // P1dB amplitude per test frequency
	compressed     *prometheus.GaugeVec // 1 when compression was reached, 0 at the ceiling
	scaleFactor    prometheus.Gauge     // Power calibration scale factor
	runDuration    *prometheus.GaugeVec // Run wall time by test type
	runSuccess     *prometheus.GaugeVec // 1 when the run completed without error
}

// New creates the gauges on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		noiseFloorMean: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "danl_mean_dbm",
				Help:      "Mean displayed average noise level of a band in dBm",
			},
			[]string{"band"},
		),
		noiseFloorMax: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "danl_max_dbm",
				Help:      "Highest bin of a band in dBm",
			},
			[]string{"band"},
		),
		binWidth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "danl_bin_width_hz",
				Help:      "Bin spacing of a band in Hz",
			},
			[]string{"band"},
		),
		compression: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "p1db_amplitude_dbm",
				Help:      "Input amplitude at the 1 dB compression point in dBm",
			},
			[]string{"frequency"},
		),
		compressed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "p1db_reached",
				Help:      "Whether compression was reached below the amplitude ceiling",
			},
			[]string{"frequency"},
		),
		scaleFactor: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "power_scale_factor",
				Help:      "Voltage scale factor mapping device readings onto the reference meter",
			},
		),
		runDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the calibration run",
			},
			[]string{"test"},
		),
		runSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_success",
				Help:      "Whether the calibration run completed without error",
			},
			[]string{"test"},
		),
	}
}

// Registry returns the registry holding the run gauges.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// BandLabel renders a band as a label value, e.g. "100MHz-200MHz".
func BandLabel(start, stop float64) string {
	return humanize.SIWithDigits(start, 3, "Hz") + "-" + humanize.SIWithDigits(stop, 3, "Hz")
}

// ObserveSpectrum records the noise statistics of a stitched band.
func (m *Metrics) ObserveSpectrum(band *spectrum.BandSpectrum) {
	if len(band.Points) == 0 {
		return
	}

	// The mean is taken over linear power.
	power := make([]float64, len(band.Points))
	linear := make([]float64, len(band.Points))
	for i, p := range band.Points {
		power[i] = p.Power
		linear[i] = math.Pow(10, p.Power/10)
	}

	label := BandLabel(band.Band.Start, band.Band.Stop)
	m.noiseFloorMean.WithLabelValues(label).Set(10 * math.Log10(stat.Mean(linear, nil)))
	m.noiseFloorMax.WithLabelValues(label).Set(floats.Max(power))
	m.binWidth.WithLabelValues(label).Set(band.Points[0].BinWidth)
}

// ObserveCompression records a P1dB table.
func (m *Metrics) ObserveCompression(points []spectrum.CompressionPoint) {
	for _, p := range points {
		label := strconv.FormatFloat(p.Frequency, 'f', -1, 64)
		m.compression.WithLabelValues(label).Set(p.Amplitude)

		var reached float64
		if p.Reached {
			reached = 1
		}
		m.compressed.WithLabelValues(label).Set(reached)
	}
}

// ObserveScaleFactor records a power calibration result.
func (m *Metrics) ObserveScaleFactor(factor float64) {
	m.scaleFactor.Set(factor)
}

// ObserveRun records the outcome of a run.
func (m *Metrics) ObserveRun(test spectrum.TestType, d time.Duration, err error) {
	m.runDuration.WithLabelValues(string(test)).Set(d.Seconds())

	var success float64
	if err == nil {
		success = 1
	}
	m.runSuccess.WithLabelValues(string(test)).Set(success)
}

// Push sends the run gauges to the configured Pushgateway, grouped by run.
func (m *Metrics) Push(ctx context.Context, cfg Config, run *spectrum.Run) error {
	if !cfg.Enabled() {
		return errors.New("metrics: pushgateway is not configured")
	}

	job := cfg.Job
	if job == "" {
		job = namespace
	}

	pusher := push.New(cfg.Pushgateway, job).
		Gatherer(m.registry).
		Grouping("test", string(run.TestType)).
		Grouping("device", run.DeviceType)

	if run.UUID != "" {
		pusher = pusher.Grouping("run", run.UUID)
	}
	if cfg.Instance != "" {
		pusher = pusher.Grouping("instance", cfg.Instance)
	}

	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push to gateway: %w", err)
	}
	return nil
}
