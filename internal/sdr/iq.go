package sdr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Format is the raw interleaved IQ sample format written by a capture tool.
type Format string

const (
	FormatCF32 Format = "cf32" // float32 I, float32 Q, little endian
	FormatCS16 Format = "cs16" // int16 I, int16 Q, little endian, full scale 32768
	FormatCS8  Format = "cs8"  // int8 I, int8 Q, full scale 128
	FormatCU8  Format = "cu8"  // uint8 I, uint8 Q, offset 127.5
)

var formatSizes = map[Format]int{
	FormatCF32: 8,
	FormatCS16: 4,
	FormatCS8:  2,
	FormatCU8:  2,
}

func (f Format) String() string {
	return string(f)
}

// SampleSize returns the size of one complex sample in bytes, 0 if unknown.
func (f Format) SampleSize() int {
	return formatSizes[f]
}

func (f Format) Validate() error {
	if _, ok := formatSizes[f]; !ok {
		return fmt.Errorf("sdr.Format: invalid sample format: %s", f)
	}
	return nil
}

// ErrShortCapture is returned when a capture holds fewer samples than requested.
var ErrShortCapture = errors.New("short capture")

// DecodeIQ reads n complex samples in format f from r, normalized to full
// scale 1.0. If r ends early the decoded samples are returned together with
// an error wrapping ErrShortCapture.
func DecodeIQ(r io.Reader, f Format, n int) ([]complex128, error) {
	size := f.SampleSize()
	if size == 0 {
		return nil, f.Validate()
	}

	buf := make([]byte, n*size)
	read, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading samples: %w", err)
	}

	got := read / size
	out := make([]complex128, got)

	for i := range out {
		b := buf[i*size : (i+1)*size]

		switch f {
		case FormatCF32:
			re := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
			out[i] = complex(float64(re), float64(im))

		case FormatCS16:
			re := int16(binary.LittleEndian.Uint16(b[0:2]))
			im := int16(binary.LittleEndian.Uint16(b[2:4]))
			out[i] = complex(float64(re)/32768, float64(im)/32768)

		case FormatCS8:
			out[i] = complex(float64(int8(b[0]))/128, float64(int8(b[1]))/128)

		case FormatCU8:
			out[i] = complex((float64(b[0])-127.5)/127.5, (float64(b[1])-127.5)/127.5)
		}
	}

	if got < n {
		return out, fmt.Errorf("%w: %d of %d samples", ErrShortCapture, got, n)
	}
	return out, nil
}
