package sweep

import (
	"math"
	"math/bits"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"gonum.org/v1/gonum/floats"
)

// PlanConfig holds the FFT and overlap parameters shared by every band of a sweep.
type PlanConfig struct {
	FFTLen     int     `yaml:"fftLen" json:"fftLen"`         // FFT length, power of two
	Overlap    float64 `yaml:"overlap" json:"overlap"`       // Fraction of each segment discarded, [0, 1)
	SampleRate float64 `yaml:"sampleRate" json:"sampleRate"` // Receiver sample rate in Hz
}

// Validate checks the FFT length, overlap and sample rate.
func (c PlanConfig) Validate() error {
	if c.FFTLen < 2 || bits.OnesCount(uint(c.FFTLen)) != 1 {
		return fault.NewConfigError("sweep.PlanConfig: fft length must be a power of two: %d given", c.FFTLen)
	}
	if c.Overlap < 0 || c.Overlap >= 1 || math.IsNaN(c.Overlap) {
		return fault.NewConfigError("sweep.PlanConfig: overlap must be in [0, 1): %g given", c.Overlap)
	}
	if c.SampleRate <= 0 {
		return fault.NewConfigError("sweep.PlanConfig: sample rate must be positive: %g given", c.SampleRate)
	}
	if validBinCount(c.FFTLen, c.Overlap) < 2 {
		return fault.NewConfigError("sweep.PlanConfig: overlap %g leaves no usable bins of %d", c.Overlap, c.FFTLen)
	}
	return nil
}

// DeltaF returns the FFT bin spacing in Hz.
func (c PlanConfig) DeltaF() float64 {
	return c.SampleRate / float64(c.FFTLen)
}

// validBinCount is floor(fftLen*(1-overlap)) rounded down to an even number.
func validBinCount(fftLen int, overlap float64) int {
	n := int(math.Floor(float64(fftLen) * (1 - overlap)))
	return n - n%2
}

// Plan is the segment layout of one band: where to tune, which bins of each
// segment to keep and the frequency of every output bin. A Plan is immutable.
type Plan struct {
	Band   Band
	Config PlanConfig

	DeltaF        float64   // Bin spacing in Hz
	Span          float64   // Band width in Hz
	Step          float64   // Distance between segment centers in Hz, a whole number of bins
	CenterFreqs   []float64 // Segment center frequencies, strictly increasing by Step
	NumSegments   int       // len(CenterFreqs)
	ValidBinCount int       // Bins kept per segment, even
	BinStart      int       // First kept bin index of a shifted spectrum
	BinStop       int       // One past the last kept bin index
	BinOffset     float64   // Frequency of the first kept bin relative to the segment center

	binFreqs []float64
}

// NewPlan derives the segment layout for band. The kept windows of successive
// segments tile the output axis exactly: segment i covers output bins
// [i*ValidBinCount, (i+1)*ValidBinCount).
func NewPlan(band Band, cfg PlanConfig) (*Plan, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if band.Start <= 0 || band.Start >= band.Stop {
		return nil, fault.NewConfigError("sweep.Plan: invalid band %g-%g", band.Start, band.Stop)
	}

	p := Plan{
		Band:          band,
		Config:        cfg,
		DeltaF:        cfg.DeltaF(),
		Span:          band.Span(),
		ValidBinCount: validBinCount(cfg.FFTLen, cfg.Overlap),
	}

	// Usable bandwidth quantized to the bin grid so that every segment center
	// lands on a bin boundary of the previous one.
	p.Step = float64(p.ValidBinCount) * p.DeltaF

	count := int(math.Floor(p.Span / p.Step))
	first := band.Start + p.Step/2

	p.NumSegments = count + 1
	p.CenterFreqs = make([]float64, p.NumSegments)
	for i := range p.CenterFreqs {
		p.CenterFreqs[i] = first + float64(i)*p.Step
	}

	p.BinStart = (cfg.FFTLen - p.ValidBinCount) / 2
	p.BinStop = p.BinStart + p.ValidBinCount
	p.BinOffset = float64(p.BinStart-cfg.FFTLen/2) * p.DeltaF

	n := p.NumSegments * p.ValidBinCount
	p.binFreqs = make([]float64, n)
	floats.Span(p.binFreqs, band.Start, band.Start+float64(n-1)*p.DeltaF)

	return &p, nil
}

// NumBins returns the length of the output frequency axis.
func (p *Plan) NumBins() int {
	return len(p.binFreqs)
}

// BinFreqs returns a copy of the output frequency axis, from Band.Start to the
// end of the last segment's kept window in DeltaF steps.
func (p *Plan) BinFreqs() []float64 {
	out := make([]float64, len(p.binFreqs))
	copy(out, p.binFreqs)
	return out
}

// SegmentFreqs returns the output frequencies covered by segment i.
func (p *Plan) SegmentFreqs(i int) []float64 {
	out := make([]float64, p.ValidBinCount)
	copy(out, p.binFreqs[i*p.ValidBinCount:(i+1)*p.ValidBinCount])
	return out
}
