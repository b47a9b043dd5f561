package sweep

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/fault"
)

func TestOctaves_FullRange(t *testing.T) {
	bands, err := Octaves(FrequencyRange{Start: 70e6, Stop: 6000e6})
	if err != nil {
		t.Fatalf("Failed to segment range: %v", err)
	}

	expected := []Band{
		{70e6, 140e6},
		{140e6, 280e6},
		{280e6, 560e6},
		{560e6, 1120e6},
		{1120e6, 2240e6},
		{2240e6, 4480e6},
		{4480e6, 6000e6},
	}

	if len(bands) != len(expected) {
		t.Fatalf("Expected %d bands, got %d: %v", len(expected), len(bands), bands)
	}
	for i, b := range expected {
		if bands[i] != b {
			t.Errorf("Band %d: expected %v, got %v", i, b, bands[i])
		}
	}

	if bands[0].Start != 70e6 {
		t.Errorf("First band must start at fmin, got %g", bands[0].Start)
	}
	if bands[len(bands)-1].Stop != 6000e6 {
		t.Errorf("Last band must stop at fmax, got %g", bands[len(bands)-1].Stop)
	}
	for i := 0; i < len(bands)-1; i++ {
		if bands[i].Stop != bands[i+1].Start {
			t.Errorf("Gap between band %d and %d: %g != %g", i, i+1, bands[i].Stop, bands[i+1].Start)
		}
		if bands[i].Stop > 2*bands[i].Start {
			t.Errorf("Band %d wider than an octave: %v", i, bands[i])
		}
	}
}

func TestOctaves_SingleBand(t *testing.T) {
	bands, err := Octaves(FrequencyRange{Start: 100e6, Stop: 150e6})
	if err != nil {
		t.Fatalf("Failed to segment range: %v", err)
	}
	if len(bands) != 1 || bands[0] != (Band{100e6, 150e6}) {
		t.Errorf("Expected single band 100-150 MHz, got %v", bands)
	}
}

func TestOctaves_InvalidRange(t *testing.T) {
	testCases := []struct {
		name string
		r    FrequencyRange
	}{
		{"zero start", FrequencyRange{0, 1e9}},
		{"negative start", FrequencyRange{-1, 1e9}},
		{"start equals stop", FrequencyRange{1e9, 1e9}},
		{"start above stop", FrequencyRange{2e9, 1e9}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Octaves(tc.r)
			var cfgErr *fault.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func referenceConfig() PlanConfig {
	return PlanConfig{FFTLen: 4096, Overlap: 0.1, SampleRate: 10e6}
}

func TestNewPlan_Reference(t *testing.T) {
	p, err := NewPlan(Band{70e6, 140e6}, referenceConfig())
	if err != nil {
		t.Fatalf("Failed to create plan: %v", err)
	}

	if p.ValidBinCount%2 != 0 {
		t.Errorf("Valid bin count must be even, got %d", p.ValidBinCount)
	}
	if p.ValidBinCount != 3686 {
		t.Errorf("Expected 3686 valid bins, got %d", p.ValidBinCount)
	}

	// round(usable_bw / delta_f) * delta_f for the reference configuration
	usable := 10e6 * 0.9
	expectedStep := math.Round(usable/p.DeltaF) * p.DeltaF
	if p.Step != expectedStep {
		t.Errorf("Expected step %f, got %f", expectedStep, p.Step)
	}

	if p.NumSegments != len(p.CenterFreqs) {
		t.Fatalf("NumSegments %d does not match centers %d", p.NumSegments, len(p.CenterFreqs))
	}
	if p.CenterFreqs[0] != 70e6+p.Step/2 {
		t.Errorf("First center should be band start + step/2, got %f", p.CenterFreqs[0])
	}
	for i := 1; i < len(p.CenterFreqs); i++ {
		d := p.CenterFreqs[i] - p.CenterFreqs[i-1]
		if d <= 0 {
			t.Fatalf("Centers not strictly increasing at %d", i)
		}
		if math.Abs(d-p.Step) > 1e-6 {
			t.Errorf("Center spacing %f at %d, expected %f", d, i, p.Step)
		}
	}

	if diff := p.NumSegments*p.ValidBinCount - p.NumBins(); diff < -1 || diff > 1 {
		t.Errorf("nsegments*valid = %d, bins = %d", p.NumSegments*p.ValidBinCount, p.NumBins())
	}

	freqs := p.BinFreqs()
	if freqs[0] != 70e6 {
		t.Errorf("Bin axis must start at band start, got %f", freqs[0])
	}
	last := p.CenterFreqs[len(p.CenterFreqs)-1] + p.Step/2
	if math.Abs(freqs[len(freqs)-1]+p.DeltaF-last) > 1e-3 {
		t.Errorf("Bin axis must end one bin before %f, got %f", last, freqs[len(freqs)-1])
	}
	if freqs[len(freqs)-1] < 140e6-p.DeltaF {
		t.Errorf("Bin axis does not cover the band: ends at %f", freqs[len(freqs)-1])
	}
}

func TestNewPlan_WindowsTileAxis(t *testing.T) {
	cfgs := []PlanConfig{
		referenceConfig(),
		{FFTLen: 1024, Overlap: 0.25, SampleRate: 5e6},
		{FFTLen: 256, Overlap: 0, SampleRate: 1e6},
		{FFTLen: 4096, Overlap: 0.0996, SampleRate: 10e6},
	}

	for _, cfg := range cfgs {
		p, err := NewPlan(Band{140e6, 280e6}, cfg)
		if err != nil {
			t.Fatalf("Failed to create plan for %+v: %v", cfg, err)
		}

		if p.BinStop-p.BinStart != p.ValidBinCount {
			t.Errorf("Window [%d,%d) does not hold %d bins", p.BinStart, p.BinStop, p.ValidBinCount)
		}
		if p.BinStart+p.BinStop != cfg.FFTLen {
			t.Errorf("Window [%d,%d) not centered in %d bins", p.BinStart, p.BinStop, cfg.FFTLen)
		}

		// The first kept bin of every segment must be exactly the next output bin.
		freqs := p.BinFreqs()
		for i, center := range p.CenterFreqs {
			first := center + p.BinOffset
			expected := freqs[i*p.ValidBinCount]
			if math.Abs(first-expected) > p.DeltaF*1e-6 {
				t.Errorf("%+v segment %d: first kept bin %f, axis %f", cfg, i, first, expected)
			}
		}
	}
}

func TestNewPlan_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		band Band
		cfg  PlanConfig
	}{
		{"fft length not power of two", Band{70e6, 140e6}, PlanConfig{FFTLen: 4000, Overlap: 0.1, SampleRate: 10e6}},
		{"zero fft length", Band{70e6, 140e6}, PlanConfig{FFTLen: 0, Overlap: 0.1, SampleRate: 10e6}},
		{"overlap one", Band{70e6, 140e6}, PlanConfig{FFTLen: 4096, Overlap: 1, SampleRate: 10e6}},
		{"negative overlap", Band{70e6, 140e6}, PlanConfig{FFTLen: 4096, Overlap: -0.1, SampleRate: 10e6}},
		{"zero sample rate", Band{70e6, 140e6}, PlanConfig{FFTLen: 4096, Overlap: 0.1}},
		{"inverted band", Band{140e6, 70e6}, referenceConfig()},
		{"empty band", Band{70e6, 70e6}, referenceConfig()},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPlan(tc.band, tc.cfg)
			var cfgErr *fault.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Errorf("Expected ConfigError, got %v", err)
			}
		})
	}
}

func TestPlan_Deterministic(t *testing.T) {
	a, _ := NewPlan(Band{560e6, 1120e6}, referenceConfig())
	b, _ := NewPlan(Band{560e6, 1120e6}, referenceConfig())

	if a.NumSegments != b.NumSegments || a.NumBins() != b.NumBins() {
		t.Fatal("Plans differ in shape")
	}
	for i := range a.CenterFreqs {
		if a.CenterFreqs[i] != b.CenterFreqs[i] {
			t.Fatalf("Center %d differs", i)
		}
	}

	freqs := a.BinFreqs()
	freqs[0] = 0
	if a.BinFreqs()[0] != 560e6 {
		t.Error("BinFreqs must return a copy")
	}
}
