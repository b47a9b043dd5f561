package calibration

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/radio-calibration/internal/fault"
)

func TestRoundTrip(t *testing.T) {
	for x := -60.0; x <= 0; x += 0.25 {
		got := VoltsToDBm(DBmToVolts(x, DefaultImpedance), DefaultImpedance)
		if math.Abs(got-x) > 1e-9 {
			t.Fatalf("Round trip of %g dBm gave %g", x, got)
		}
	}
}

func TestDBmToVolts_Reference(t *testing.T) {
	// 0 dBm into 50 ohms is sqrt(0.05) V RMS
	if v := DBmToVolts(0, 50); math.Abs(v-math.Sqrt(0.05)) > 1e-12 {
		t.Errorf("Expected %f V, got %f", math.Sqrt(0.05), v)
	}
}

func TestScaleFactor_Identical(t *testing.T) {
	seq := []float64{-30.1, -30.3, -29.9, -30.0}
	k, err := ScaleFactor(seq, seq, DefaultImpedance)
	if err != nil {
		t.Fatalf("Failed to compute scale factor: %v", err)
	}
	if k != 1.0 {
		t.Errorf("Expected 1.0, got %v", k)
	}
}

func TestScaleFactor_Offset(t *testing.T) {
	// Device reads 6.0206 dB low: voltage ratio of 2
	offset := 20 * math.Log10(2)
	ref := []float64{-20, -21, -19}
	dev := make([]float64, len(ref))
	for i, v := range ref {
		dev[i] = v - offset
	}

	k, err := ScaleFactor(ref, dev, DefaultImpedance)
	if err != nil {
		t.Fatalf("Failed to compute scale factor: %v", err)
	}
	if math.Abs(k-2) > 1e-9 {
		t.Errorf("Expected 2, got %v", k)
	}

	for i := range dev {
		if got := Apply(dev[i], k, DefaultImpedance); math.Abs(got-ref[i]) > 1e-9 {
			t.Errorf("Apply: expected %g, got %g", ref[i], got)
		}
	}
}

func TestScalePairs(t *testing.T) {
	k, err := ScalePairs([]Pair{{-10, -12}, {-10, -12}}, DefaultImpedance)
	if err != nil {
		t.Fatalf("Failed to compute scale factor: %v", err)
	}
	if k <= 1 {
		t.Errorf("Device reading low must give factor above 1, got %v", k)
	}
}

func TestScaleFactor_Errors(t *testing.T) {
	var cfgErr *fault.ConfigError
	if _, err := ScaleFactor(nil, nil, DefaultImpedance); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for empty input, got %v", err)
	}
	if _, err := ScaleFactor([]float64{-10}, []float64{-10, -11}, DefaultImpedance); !errors.As(err, &cfgErr) {
		t.Errorf("Expected ConfigError for unequal input, got %v", err)
	}

	var numErr *fault.NumericalError
	if _, err := ScaleFactor([]float64{-10}, []float64{math.NaN()}, DefaultImpedance); !errors.As(err, &numErr) {
		t.Errorf("Expected NumericalError for NaN, got %v", err)
	}
	if _, err := ScaleFactor([]float64{-10}, []float64{math.Inf(-1)}, DefaultImpedance); !errors.As(err, &numErr) {
		t.Errorf("Expected NumericalError for -Inf, got %v", err)
	}
}

func TestMeanPowerDBm(t *testing.T) {
	// Constant envelope of sqrt(0.05) V: 1 mW into 50 ohms
	a := math.Sqrt(0.05 / 2)
	samples := []complex128{complex(a, a), complex(-a, a), complex(a, -a), complex(-a, -a)}

	p, err := MeanPowerDBm(samples, 1, DefaultImpedance)
	if err != nil {
		t.Fatalf("Failed to compute power: %v", err)
	}
	if math.Abs(p) > 1e-9 {
		t.Errorf("Expected 0 dBm, got %g", p)
	}

	scaled, _ := MeanPowerDBm(samples, 2, DefaultImpedance)
	if math.Abs(scaled-20*math.Log10(2)) > 1e-9 {
		t.Errorf("Expected factor 2 to add 6.02 dB, got %g", scaled)
	}

	var numErr *fault.NumericalError
	if _, err := MeanPowerDBm(make([]complex128, 8), 1, DefaultImpedance); !errors.As(err, &numErr) {
		t.Errorf("Expected NumericalError for silence, got %v", err)
	}
}
