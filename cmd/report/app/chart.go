package app

import (
	"fmt"
	"image/color"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Axis units with special tick formatting.
const (
	UnitHz    = "Hz"
	UnitIndex = ""
)

// Series is one trace of a chart. A nil Color paints every segment by its
// power with the chart's color theme.
type Series struct {
	Name    string
	X, Y    []float64
	Color   color.Color
	Markers bool // Draw a marker at every point
	NoLine  bool // Draw markers only
}

// Chart is everything drawn for one run.
type Chart struct {
	Title  string
	XUnit  string
	YLabel string
	Series []Series
	Info   []string
}

// XRange returns the smallest and largest X value of all series.
func (c *Chart) XRange() (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, s := range c.Series {
		if len(s.X) == 0 {
			continue
		}
		lo = math.Min(lo, floats.Min(s.X))
		hi = math.Max(hi, floats.Max(s.X))
	}
	if math.IsInf(lo, 0) {
		return 0, 1
	}
	if hi <= lo {
		// A single point is drawn in the middle of the plot.
		return lo - 1, hi + 1
	}
	return lo, hi
}

// Values returns the Y values of all series.
func (c *Chart) Values() []float64 {
	var out []float64
	for _, s := range c.Series {
		out = append(out, s.Y...)
	}
	return out
}

func runTitle(run *spectrum.Run, what string) string {
	return fmt.Sprintf("%s: %s %s, run %d", what, run.DeviceType, run.DeviceID, run.ID)
}

func runInfo(run *spectrum.Run) string {
	return fmt.Sprintf("Run %s started %s (%s)", run.UUID,
		run.StartTime.Local().Format(time.DateTime), humanize.Time(run.StartTime))
}

// danlChart draws one trace per octave band.
func danlChart(run *spectrum.Run, bands []*spectrum.BandSpectrum) *Chart {
	c := Chart{
		Title:  runTitle(run, "Displayed average noise level"),
		XUnit:  UnitHz,
		YLabel: "Noise per bin (dB)",
	}

	var all []float64
	var bins int
	var binWidth float64
	for _, b := range bands {
		s := Series{Name: b.Band.String()}
		for _, p := range b.Points {
			s.X = append(s.X, p.Frequency)
			s.Y = append(s.Y, p.Power)
			binWidth = p.BinWidth
		}
		bins += len(b.Points)
		all = append(all, s.Y...)
		c.Series = append(c.Series, s)
	}

	c.Info = append(c.Info, runInfo(run))
	if len(all) > 0 {
		c.Info = append(c.Info, fmt.Sprintf("%d bands, %s bins of %s; mean %.2f dB, max %.2f dB",
			len(bands), humanize.Comma(int64(bins)), humanize.SIWithDigits(binWidth, 3, "Hz"),
			stat.Mean(all, nil), floats.Max(all)))
	}
	return &c
}

// compressionChart draws the P1dB amplitude per test frequency; points where
// compression was not reached are drawn separately at the ceiling.
func compressionChart(run *spectrum.Run, points []spectrum.CompressionPoint) *Chart {
	reached := Series{Name: "P1dB", Color: seriesColors[0], Markers: true}
	ceiling := Series{Name: "not reached (ceiling)", Color: seriesColors[3], Markers: true, NoLine: true}

	for _, p := range points {
		if p.Reached {
			reached.X = append(reached.X, p.Frequency)
			reached.Y = append(reached.Y, p.Amplitude)
		} else {
			ceiling.X = append(ceiling.X, p.Frequency)
			ceiling.Y = append(ceiling.Y, p.Amplitude)
		}
	}

	c := Chart{
		Title:  runTitle(run, "Input compression point"),
		XUnit:  UnitHz,
		YLabel: "Input level (dBm)",
		Info: []string{
			runInfo(run),
			fmt.Sprintf("%d test frequencies, %d reached compression", len(points), len(reached.X)),
		},
	}
	for _, s := range []Series{reached, ceiling} {
		if len(s.X) > 0 {
			c.Series = append(c.Series, s)
		}
	}
	return &c
}

// powerCalChart draws the reference and device readings per measurement.
func powerCalChart(run *spectrum.Run, pairs []spectrum.PowerPair, factor float64) *Chart {
	ref := Series{Name: "reference", Color: seriesColors[0], Markers: true}
	dev := Series{Name: "device", Color: seriesColors[1], Markers: true}

	for i, p := range pairs {
		n := float64(i + 1)
		ref.X, ref.Y = append(ref.X, n), append(ref.Y, p.Reference)
		dev.X, dev.Y = append(dev.X, n), append(dev.Y, p.Device)
	}

	info := []string{runInfo(run)}
	if len(pairs) > 0 {
		info = append(info, fmt.Sprintf("%d measurements; mean reference %.2f dBm, mean device %.2f dBm",
			len(pairs), stat.Mean(ref.Y, nil), stat.Mean(dev.Y, nil)))
	}
	if !math.IsNaN(factor) {
		info = append(info, fmt.Sprintf("Scale factor %.6f (%+.2f dB)", factor, 20*math.Log10(factor)))
	}

	return &Chart{
		Title:  runTitle(run, "Power calibration"),
		XUnit:  UnitIndex,
		YLabel: "Power (dBm)",
		Series: []Series{ref, dev},
		Info:   info,
	}
}
