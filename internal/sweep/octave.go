package sweep

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/roman-kulish/radio-calibration/internal/fault"
)

// FrequencyRange is a closed frequency interval in Hz.
type FrequencyRange struct {
	Start float64 `yaml:"start" json:"start"`
	Stop  float64 `yaml:"stop" json:"stop"`
}

// Validate checks that the range is positive and not empty.
func (r FrequencyRange) Validate() error {
	if r.Start <= 0 {
		return fault.NewConfigError("sweep.FrequencyRange: start must be positive: %g", r.Start)
	}
	if r.Start >= r.Stop {
		return fault.NewConfigError("sweep.FrequencyRange: start must be lower than stop: %g >= %g", r.Start, r.Stop)
	}
	return nil
}

// Band is one octave (or the shorter remainder) of a FrequencyRange.
type Band struct {
	Start float64 `json:"start"` // Lower edge in Hz
	Stop  float64 `json:"stop"`  // Upper edge in Hz
}

// Span returns the width of the band in Hz.
func (b Band) Span() float64 {
	return b.Stop - b.Start
}

// String returns a human-readable label, e.g. "70 MHz-140 MHz".
func (b Band) String() string {
	return fmt.Sprintf("%s-%s", humanize.SIWithDigits(b.Start, 3, "Hz"), humanize.SIWithDigits(b.Stop, 3, "Hz"))
}

// Octaves partitions r into ordered, gap-free octave bands. Each band spans
// [f, 2f]; the band whose octave would reach or pass r.Stop is cut short to
// end exactly at r.Stop, so only the last band may be narrower than an octave.
func Octaves(r FrequencyRange) ([]Band, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var bands []Band
	f := r.Start
	for {
		top := 2 * f
		if top >= r.Stop {
			bands = append(bands, Band{Start: f, Stop: r.Stop})
			break
		}
		bands = append(bands, Band{Start: f, Stop: top})
		f = top
	}

	return bands, nil
}
