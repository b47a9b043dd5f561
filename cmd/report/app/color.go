package app

import (
	"image/color"
	"math"
)

// ColorTheme is the color scheme used to paint DANL traces by power level.
// The empty theme is the enhanced default.
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"   // Blue to red transition
	GrayscaleTheme ColorTheme = "grayscale" // Black to white transition
	JungleTheme    ColorTheme = "jungle"    // Dark green to yellow transition
	ThermalTheme   ColorTheme = "thermal"   // Black to red to yellow to white
	MarineTheme    ColorTheme = "marine"    // Deep blue to cyan to white

	DefaultColorMapSize = 256
)

var (
	backgroundColor = color.White
	axisColor       = color.Black
	gridColor       = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}

	// Fixed series colors, used in order.
	seriesColors = []color.Color{
		color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
		color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
		color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
		color.RGBA{R: 0x7f, G: 0x7f, B: 0x7f, A: 0xff},
	}
)

func (t ColorTheme) Valid() bool {
	switch t {
	case "", ClassicTheme, GrayscaleTheme, JungleTheme, ThermalTheme, MarineTheme:
		return true
	}
	return false
}

// ColorMapper maps power values within bounds to pre-computed theme colors.
type ColorMapper struct {
	colorMap      []color.Color
	size          int
	powerPerIndex float64
	boundsMin     float64
}

// NewColorMapper creates a color mapper with DefaultColorMapSize colors.
func NewColorMapper(theme ColorTheme, bounds PowerBounds) *ColorMapper {
	cm := &ColorMapper{
		colorMap: make([]color.Color, DefaultColorMapSize),
		size:     DefaultColorMapSize,
	}

	fn := getColorTheme(theme)
	for i := 0; i < cm.size; i++ {
		cm.colorMap[i] = fn(float64(i) / float64(cm.size-1))
	}

	cm.boundsMin = bounds.Min
	cm.powerPerIndex = (bounds.Max - bounds.Min) / float64(cm.size-1)
	return cm
}

// Color returns the color of power, clamped to the bounds.
func (cm *ColorMapper) Color(power float64) color.Color {
	if math.IsNaN(power) || cm.powerPerIndex <= 0 {
		return cm.colorMap[0]
	}

	index := int((power - cm.boundsMin) / cm.powerPerIndex)
	if index < 0 {
		return cm.colorMap[0]
	}
	if index >= cm.size {
		return cm.colorMap[cm.size-1]
	}
	return cm.colorMap[index]
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space
func (hsv HSV) RGB() color.Color {
	value := math.Max(0, math.Min(1, hsv.V))
	if hsv.S <= 0.0 {
		v := uint8(value * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(value * 255)
	p := uint8((value * (1 - hsv.S)) * 255)
	q := uint8((value * (1 - (hsv.S * f))) * 255)
	t := uint8((value * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

// getColorTheme returns a function mapping a normalized power [0-1] to a color.
// Dark ends of the themes are lifted so traces stay visible on white.
func getColorTheme(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case ClassicTheme:
		return func(power float64) color.Color {
			return HSV{
				H: 240 - (power * 240),
				S: 0.9 + (power * 0.1),
				V: 0.4 + math.Pow(power, 0.7)*0.6,
			}.RGB()
		}

	case GrayscaleTheme:
		return func(power float64) color.Color {
			v := uint8((1 - math.Pow(power, 0.7)) * 200)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(power float64) color.Color {
			return HSV{
				H: 120 - (power * 60),
				S: 1.0,
				V: 0.3 + (math.Pow(power, 0.6) * 0.7),
			}.RGB()
		}

	case ThermalTheme:
		return func(power float64) color.Color {
			if power < 0.5 {
				return color.RGBA{R: uint8((0.3 + power*1.4) * 255), A: 255}
			}
			return color.RGBA{R: 255, G: uint8(((power - 0.5) * 1.6) * 255), A: 255}
		}

	case MarineTheme:
		return func(power float64) color.Color {
			return HSV{
				H: 240 - (power * 60),
				S: 1.0 - (power * 0.6),
				V: 0.3 + (math.Pow(power, 0.6) * 0.6),
			}.RGB()
		}

	default:
		return func(power float64) color.Color {
			power = math.Max(0, math.Min(1, power))
			switch {
			case power < 0.5:
				return HSV{H: 240 - power*240, S: 1.0, V: 0.8}.RGB()
			default:
				return HSV{H: 120 - (power-0.5)*240, S: 1.0, V: 0.9}.RGB()
			}
		}
	}
}
