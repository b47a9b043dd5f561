package fault

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrors_As(t *testing.T) {
	cause := errors.New("tool exited")
	err := fmt.Errorf("sweeping band: %w", NewAcquisitionError(AtSegment("70 MHz-140 MHz", 3, 101e6), cause))

	var acqErr *AcquisitionError
	if !errors.As(err, &acqErr) {
		t.Fatalf("expected AcquisitionError, got %T", err)
	}
	if acqErr.Context.Segment != 3 {
		t.Errorf("expected segment 3, got %d", acqErr.Context.Segment)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to be unwrapped")
	}
}

func TestErrors_Message(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "acquisition",
			err:      NewAcquisitionError(AtSegment("b1", 2, 1e6), errors.New("boom")),
			contains: []string{"band=b1", "segment=2", "freq=", "boom"},
		},
		{
			name:     "numerical",
			err:      NewNumericalError(At(2.4e9).WithAmplitude(-20), "non-positive power %g", 0.0),
			contains: []string{"non-positive power 0", "freq=", "amplitude=-20.00dBm"},
		},
		{
			name:     "safety",
			err:      &SafetyViolation{Requested: -10, Ceiling: -15},
			contains: []string{"-10.00dBm", "-15.00dBm"},
		},
		{
			name:     "config",
			err:      NewConfigError("fft length %d is not a power of two", 1000),
			contains: []string{"1000"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := tc.err.Error()
			for _, s := range tc.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("expected %q in %q", s, msg)
				}
			}
		})
	}
}
