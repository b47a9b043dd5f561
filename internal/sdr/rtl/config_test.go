package rtl

import (
	"slices"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/sdr"
)

func TestConfig_Args(t *testing.T) {
	gain := 29.7
	cfg := Config{DeviceIndex: 1, Gain: &gain, PPMError: -2, BiasTee: true}

	args, err := cfg.Args(sdr.Capture{CenterFreq: 433.92e6, SampleRate: 2.4e6, NumSamples: 4096, Path: "/tmp/x.iq"})
	if err != nil {
		t.Fatalf("Failed to build args: %v", err)
	}

	expected := []string{"-f", "433920000", "-s", "2400000", "-n", "4096", "-d", "1", "-g", "29.7", "-p", "-2", "-T", "/tmp/x.iq"}
	if !slices.Equal(args, expected) {
		t.Errorf("Expected %v, got %v", expected, args)
	}
}

func TestConfig_SampleRate(t *testing.T) {
	cfg := Config{}
	for _, sr := range []float64{250e3, 1e6, 3.2e6} {
		if _, err := cfg.Args(sdr.Capture{CenterFreq: 100e6, SampleRate: sr, NumSamples: 16, Path: "x"}); err != nil {
			t.Errorf("%g S/s should be accepted: %v", sr, err)
		}
	}
	for _, sr := range []float64{200e3, 500e3, 10e6} {
		if _, err := cfg.Args(sdr.Capture{CenterFreq: 100e6, SampleRate: sr, NumSamples: 16, Path: "x"}); err == nil {
			t.Errorf("%g S/s should be rejected", sr)
		}
	}
}
