package spectrum

import (
	"math"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"github.com/roman-kulish/radio-calibration/internal/sweep"
)

// Segment is the reduced, fft-shifted power spectrum of one center frequency.
type Segment struct {
	Index      int       // Position in the plan
	CenterFreq float64   // Tuned center frequency in Hz
	Power      []float64 // Linear power per bin, fft length, DC in the middle
}

// Stitched is the spectrum of one band assembled from all of its segments.
type Stitched struct {
	Band  sweep.Band
	Freqs []float64 // Bin frequencies in Hz
	Power []float64 // Power in dBm, index-aligned with Freqs
}

// Points returns the spectrum as records for storage and rendering.
func (s *Stitched) Points(binWidth float64) []SpectralPoint {
	points := make([]SpectralPoint, len(s.Freqs))
	for i := range s.Freqs {
		points[i] = SpectralPoint{Frequency: s.Freqs[i], Power: s.Power[i], BinWidth: binWidth}
	}
	return points
}

// Stitcher assembles the kept inner windows of a band's segments into one
// contiguous spectrum. Segments may be added in any order; each is placed by
// its plan index.
type Stitcher struct {
	plan   *sweep.Plan
	scalar float64
	label  string
	power  []float64
	filled []bool
}

// NewStitcher creates a stitcher for plan. scalar is added to every bin after
// the dB conversion, see PowerScalar.
func NewStitcher(plan *sweep.Plan, scalar float64) (*Stitcher, error) {
	if plan == nil {
		return nil, fault.NewConfigError("spectrum.Stitcher: plan is required")
	}
	if math.IsNaN(scalar) || math.IsInf(scalar, 0) {
		return nil, fault.NewConfigError("spectrum.Stitcher: power scalar must be finite: %g", scalar)
	}

	return &Stitcher{
		plan:   plan,
		scalar: scalar,
		label:  plan.Band.String(),
		power:  make([]float64, plan.NumBins()),
		filled: make([]bool, plan.NumSegments),
	}, nil
}

// Add converts the kept window of seg to dBm and stores it at the segment's
// position in the output.
func (s *Stitcher) Add(seg Segment) error {
	p := s.plan
	if seg.Index < 0 || seg.Index >= p.NumSegments {
		return fault.NewConfigError("spectrum.Stitcher: segment index %d out of range [0, %d)", seg.Index, p.NumSegments)
	}
	if s.filled[seg.Index] {
		return fault.NewConfigError("spectrum.Stitcher: duplicate segment %d of band %s", seg.Index, s.label)
	}
	if len(seg.Power) != p.Config.FFTLen {
		return fault.NewConfigError("spectrum.Stitcher: segment %d has %d bins, expected %d", seg.Index, len(seg.Power), p.Config.FFTLen)
	}

	expected := p.CenterFreqs[seg.Index]
	if math.Abs(seg.CenterFreq-expected) > p.DeltaF/2 {
		return fault.NewConfigError("spectrum.Stitcher: segment %d tuned to %g Hz, planned %g Hz", seg.Index, seg.CenterFreq, expected)
	}

	kept := seg.Power[p.BinStart:p.BinStop]
	out := s.power[seg.Index*p.ValidBinCount : (seg.Index+1)*p.ValidBinCount]

	for i, v := range kept {
		if !(v > 0) || math.IsInf(v, 0) {
			freq := seg.CenterFreq + p.BinOffset + float64(i)*p.DeltaF
			return fault.NewNumericalError(fault.AtSegment(s.label, seg.Index, freq), "non-positive power %g in bin %d", v, p.BinStart+i)
		}
		out[i] = 10*math.Log10(v) + s.scalar
	}

	s.filled[seg.Index] = true
	return nil
}

// Missing returns the indices of segments not yet added.
func (s *Stitcher) Missing() []int {
	var missing []int
	for i, ok := range s.filled {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// Spectrum returns the stitched band. Every segment of the plan must have
// been added.
func (s *Stitcher) Spectrum() (*Stitched, error) {
	if missing := s.Missing(); len(missing) > 0 {
		return nil, fault.NewConfigError("spectrum.Stitcher: band %s is missing %d of %d segments, first %d",
			s.label, len(missing), s.plan.NumSegments, missing[0])
	}

	power := make([]float64, len(s.power))
	copy(power, s.power)

	return &Stitched{
		Band:  s.plan.Band,
		Freqs: s.plan.BinFreqs(),
		Power: power,
	}, nil
}
