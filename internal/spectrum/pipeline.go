package spectrum

import (
	"math/bits"

	"github.com/roman-kulish/radio-calibration/internal/fault"
	"gonum.org/v1/gonum/dsp/fourier"
)

// Frame is the working buffer passed through pipeline stages. IQ holds time
// or frequency domain samples, Power holds per-bin power once computed.
type Frame struct {
	IQ    []complex128
	Power []float64
}

// Stage is one step of a Pipeline.
type Stage interface {
	Name() string
	Process(f *Frame) error
}

// Pipeline turns blocks of IQ samples into power spectra by running an
// ordered list of stages over each block. It is not safe for concurrent use.
type Pipeline struct {
	fftLen int
	stages []Stage
	frame  Frame
}

// NewPipeline creates the default pipeline: window, FFT, magnitude squared
// and FFT shift.
func NewPipeline(fftLen int, kind WindowKind) (*Pipeline, error) {
	if fftLen < 2 || bits.OnesCount(uint(fftLen)) != 1 {
		return nil, fault.NewConfigError("spectrum.Pipeline: fft length must be a power of two: %d given", fftLen)
	}
	taps, err := WindowTaps(kind, fftLen)
	if err != nil {
		return nil, err
	}

	return NewPipelineWithStages(fftLen,
		&WindowStage{Taps: taps},
		NewFFTStage(fftLen),
		MagnitudeStage{},
		ShiftStage{},
	), nil
}

// NewPipelineWithStages creates a pipeline running stages in the given order.
func NewPipelineWithStages(fftLen int, stages ...Stage) *Pipeline {
	return &Pipeline{
		fftLen: fftLen,
		stages: stages,
		frame: Frame{
			IQ:    make([]complex128, fftLen),
			Power: make([]float64, fftLen),
		},
	}
}

// FFTLen returns the frame length.
func (p *Pipeline) FFTLen() int {
	return p.fftLen
}

// Process splits samples into naverages consecutive frames, runs every frame
// through the stages and folds the resulting power into acc. Samples beyond
// naverages frames are ignored.
func (p *Pipeline) Process(samples []complex128, naverages int, acc *Accumulator) error {
	if naverages <= 0 {
		return fault.NewConfigError("spectrum.Pipeline: number of averages must be positive: %d", naverages)
	}
	if need := naverages * p.fftLen; len(samples) < need {
		return fault.NewConfigError("spectrum.Pipeline: %d samples given, %d needed for %d averages", len(samples), need, naverages)
	}

	for i := 0; i < naverages; i++ {
		copy(p.frame.IQ, samples[i*p.fftLen:(i+1)*p.fftLen])
		for _, s := range p.stages {
			if err := s.Process(&p.frame); err != nil {
				return err
			}
		}
		if err := acc.Add(p.frame.Power); err != nil {
			return err
		}
	}

	return nil
}

// WindowStage multiplies the samples by the window taps.
type WindowStage struct {
	Taps []float64
}

func (s *WindowStage) Name() string { return "window" }

func (s *WindowStage) Process(f *Frame) error {
	if len(f.IQ) != len(s.Taps) {
		return fault.NewConfigError("spectrum.WindowStage: frame has %d samples, window %d", len(f.IQ), len(s.Taps))
	}
	for i, w := range s.Taps {
		f.IQ[i] *= complex(w, 0)
	}
	return nil
}

// FFTStage replaces the samples with their discrete Fourier transform.
type FFTStage struct {
	fft *fourier.CmplxFFT
	out []complex128
}

func NewFFTStage(n int) *FFTStage {
	return &FFTStage{
		fft: fourier.NewCmplxFFT(n),
		out: make([]complex128, n),
	}
}

func (s *FFTStage) Name() string { return "fft" }

func (s *FFTStage) Process(f *Frame) error {
	if len(f.IQ) != s.fft.Len() {
		return fault.NewConfigError("spectrum.FFTStage: frame has %d samples, fft length %d", len(f.IQ), s.fft.Len())
	}
	s.fft.Coefficients(s.out, f.IQ)
	copy(f.IQ, s.out)
	return nil
}

// MagnitudeStage computes |X|^2 of every bin into Power.
type MagnitudeStage struct{}

func (MagnitudeStage) Name() string { return "magnitude" }

func (MagnitudeStage) Process(f *Frame) error {
	if len(f.Power) != len(f.IQ) {
		f.Power = make([]float64, len(f.IQ))
	}
	for i, c := range f.IQ {
		re, im := real(c), imag(c)
		f.Power[i] = re*re + im*im
	}
	return nil
}

// ShiftStage rotates Power so that DC sits at index len/2 and frequencies
// increase with the index.
type ShiftStage struct{}

func (ShiftStage) Name() string { return "shift" }

func (ShiftStage) Process(f *Frame) error {
	FFTShift(f.Power)
	return nil
}

// FFTShift rotates data in place by half its length.
func FFTShift(data []float64) {
	n := len(data)
	if n < 2 {
		return
	}
	half := n / 2
	tmp := make([]float64, half)
	copy(tmp, data[n-half:])
	copy(data[half:], data[:n-half])
	copy(data, tmp)
}
