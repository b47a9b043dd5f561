package app

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	dpi            = 96.0
	fontSize       = 11.0
	lineSpacing    = 1.4
	tickMarkLength = 5
	pixelsPerLabel = 150.0
	markerRadius   = 3

	// Default border sizes in pixels
	defaultTopBorder    = 60
	defaultLeftBorder   = 80
	defaultBottomBorder = 40
	defaultRightBorder  = 40
	plainBorder         = 10
)

// BorderConfig defines the sizes of white space around the plot area
type BorderConfig struct {
	Top    int // Space for the title and the Y label
	Left   int // Space for the Y scale
	Bottom int // Space for the X scale and the information lines
	Right  int // Right padding
}

// RenderConfig holds the chart image options
type RenderConfig struct {
	Width         int
	Height        int
	FontSize      float64
	ColorTheme    ColorTheme
	NoAnnotations bool
	BorderConfig  BorderConfig
}

// ChartRenderer draws charts into images.
type ChartRenderer struct {
	config RenderConfig
}

// NewChartRenderer creates a renderer, filling zero values with defaults.
func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if !config.ColorTheme.Valid() {
		return nil, fmt.Errorf("invalid color theme: %s", config.ColorTheme)
	}

	b := &config.BorderConfig
	if config.NoAnnotations {
		*b = BorderConfig{Top: plainBorder, Left: plainBorder, Bottom: plainBorder, Right: plainBorder}
	} else {
		if b.Top == 0 {
			b.Top = defaultTopBorder
		}
		if b.Left == 0 {
			b.Left = defaultLeftBorder
		}
		if b.Bottom == 0 {
			b.Bottom = defaultBottomBorder
		}
		if b.Right == 0 {
			b.Right = defaultRightBorder
		}
	}

	return &ChartRenderer{config: config}, nil
}

// plot maps chart coordinates to pixels of the plot area.
type plot struct {
	area   image.Rectangle
	xLo    float64
	xHi    float64
	bounds PowerBounds
}

func (p *plot) x(v float64) int {
	return p.area.Min.X + int(math.Round((v-p.xLo)/(p.xHi-p.xLo)*float64(p.area.Dx()-1)))
}

func (p *plot) y(v float64) int {
	v = math.Max(p.bounds.Min, math.Min(v, p.bounds.Max))
	return p.area.Max.Y - 1 - int(math.Round((v-p.bounds.Min)/(p.bounds.Max-p.bounds.Min)*float64(p.area.Dy()-1)))
}

// Render draws chart with the vertical range bounds.
func (r *ChartRenderer) Render(chart *Chart, bounds PowerBounds) (*image.RGBA, error) {
	var ann *annotator
	bc := r.config.BorderConfig

	if !r.config.NoAnnotations {
		var err error
		if ann, err = newAnnotator(r.config.FontSize); err != nil {
			return nil, fmt.Errorf("creating annotator: %w", err)
		}
		defer ann.Close()

		// Information lines below the X scale.
		bc.Bottom += len(chart.Info) * ann.lineHeight()
	}

	area := image.Rect(bc.Left, bc.Top, r.config.Width-bc.Right, r.config.Height-bc.Bottom)
	if area.Dx() < 2 || area.Dy() < 2 {
		return nil, fmt.Errorf("image %dx%d too small for the chart", r.config.Width, r.config.Height)
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	xLo, xHi := chart.XRange()
	p := &plot{area: area, xLo: xLo, xHi: xHi, bounds: bounds}

	xTicks := ticks(xLo, xHi, niceStep(xHi-xLo, float64(area.Dx())/pixelsPerLabel, chart.XUnit == UnitIndex))
	yTicks := ticks(bounds.Min, bounds.Max, niceStep(bounds.Max-bounds.Min, float64(area.Dy())/(pixelsPerLabel/2), false))

	r.drawGrid(img, p, xTicks, yTicks)
	r.drawSeries(img, p, chart.Series, NewColorMapper(r.config.ColorTheme, bounds))

	if ann != nil {
		if err := ann.annotate(img, p, chart, xTicks, yTicks); err != nil {
			return nil, fmt.Errorf("drawing annotations: %w", err)
		}
	}

	return img, nil
}

func (r *ChartRenderer) drawGrid(img *image.RGBA, p *plot, xTicks, yTicks []float64) {
	for _, v := range xTicks {
		x := p.x(v)
		for y := p.area.Min.Y; y < p.area.Max.Y; y++ {
			img.Set(x, y, gridColor)
		}
		for y := p.area.Max.Y; y < p.area.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, axisColor)
		}
	}
	for _, v := range yTicks {
		y := p.y(v)
		for x := p.area.Min.X; x < p.area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := p.area.Min.X - tickMarkLength; x < p.area.Min.X; x++ {
			img.Set(x, y, axisColor)
		}
	}

	// Frame
	for x := p.area.Min.X; x < p.area.Max.X; x++ {
		img.Set(x, p.area.Min.Y, axisColor)
		img.Set(x, p.area.Max.Y-1, axisColor)
	}
	for y := p.area.Min.Y; y < p.area.Max.Y; y++ {
		img.Set(p.area.Min.X, y, axisColor)
		img.Set(p.area.Max.X-1, y, axisColor)
	}
}

func (r *ChartRenderer) drawSeries(img *image.RGBA, p *plot, series []Series, cm *ColorMapper) {
	clip := img.SubImage(p.area).(*image.RGBA)

	for _, s := range series {
		n := min(len(s.X), len(s.Y))
		if !s.NoLine {
			for i := 1; i < n; i++ {
				c := s.Color
				if c == nil {
					c = cm.Color(math.Max(s.Y[i-1], s.Y[i]))
				}
				drawLine(clip, p.x(s.X[i-1]), p.y(s.Y[i-1]), p.x(s.X[i]), p.y(s.Y[i]), c)
			}
		}
		if s.Markers || n == 1 {
			for i := 0; i < n; i++ {
				c := s.Color
				if c == nil {
					c = cm.Color(s.Y[i])
				}
				drawMarker(clip, p.x(s.X[i]), p.y(s.Y[i]), c)
			}
		}
	}
}

// drawLine draws a line with Bresenham's algorithm. Pixels outside the
// image bounds are ignored by Set.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}

	e := dx + dy
	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x0 += sx
		}
		if e2 <= dx {
			e += dx
			y0 += sy
		}
	}
}

func drawMarker(img *image.RGBA, x, y int, c color.Color) {
	for i := -markerRadius; i <= markerRadius; i++ {
		for j := -markerRadius; j <= markerRadius; j++ {
			img.Set(x+i, y+j, c)
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// niceStep returns a 1, 2 or 5 times a power of ten step giving about count
// labels over span. Integer steps are at least 1.
func niceStep(span, count float64, integer bool) float64 {
	if span <= 0 {
		span = 1
	}
	if count < 1 {
		count = 1
	}

	raw := span / count
	mag := math.Pow(10, math.Floor(math.Log10(raw)))

	step := 10 * mag
	for _, m := range []float64{1, 2, 5} {
		if m*mag >= raw {
			step = m * mag
			break
		}
	}
	if integer && step < 1 {
		step = 1
	}
	return step
}

// ticks returns the multiples of step within [lo, hi].
func ticks(lo, hi, step float64) []float64 {
	var out []float64
	for v := math.Ceil(lo/step) * step; v <= hi+step*1e-9; v += step {
		out = append(out, v)
	}
	return out
}

func formatTick(v float64, unit string) string {
	if unit == UnitHz {
		return humanize.SIWithDigits(v, 2, "Hz")
	}
	return humanize.FtoaWithDigits(v, 2)
}

type annotator struct {
	context  *freetype.Context
	fontFace font.Face
	size     float64
}

func newAnnotator(size float64) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(size)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.NewUniform(axisColor))

	return &annotator{
		context: ctx,
		size:    size,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    size,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) lineHeight() int {
	return a.context.PointToFixed(a.size * lineSpacing).Round()
}

func (a *annotator) ascent() int {
	return a.fontFace.Metrics().Ascent.Round()
}

func (a *annotator) width(s string) int {
	return font.MeasureString(a.fontFace, s).Round()
}

func (a *annotator) draw(s string, x, y int, c color.Color) error {
	a.context.SetSrc(image.NewUniform(c))
	_, err := a.context.DrawString(s, freetype.Pt(x, y))
	return err
}

func (a *annotator) annotate(img *image.RGBA, p *plot, chart *Chart, xTicks, yTicks []float64) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing X scale", func() error { return a.drawXScale(p, chart.XUnit, xTicks) }},
		{"drawing Y scale", func() error { return a.drawYScale(p, chart.YLabel, yTicks) }},
		{"drawing title", func() error { return a.drawTitle(img, chart.Title) }},
		{"drawing legend", func() error { return a.drawLegend(img, p, chart.Series) }},
		{"drawing info", func() error { return a.drawInfo(p, chart.Info) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}
	return nil
}

func (a *annotator) drawXScale(p *plot, unit string, xTicks []float64) error {
	y := p.area.Max.Y + tickMarkLength + a.ascent() + 2
	for _, v := range xTicks {
		label := formatTick(v, unit)
		if err := a.draw(label, p.x(v)-a.width(label)/2, y, axisColor); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawYScale(p *plot, label string, yTicks []float64) error {
	for _, v := range yTicks {
		s := formatTick(v, "")
		x := p.area.Min.X - tickMarkLength - 3 - a.width(s)
		if err := a.draw(s, x, p.y(v)+a.ascent()/2, axisColor); err != nil {
			return err
		}
	}
	return a.draw(label, p.area.Min.X, p.area.Min.Y-6, axisColor)
}

func (a *annotator) drawTitle(img *image.RGBA, title string) error {
	x := (img.Bounds().Dx() - a.width(title)) / 2
	return a.draw(title, x, a.lineHeight(), axisColor)
}

// drawLegend lists the series with a fixed color in the top right corner.
func (a *annotator) drawLegend(img *image.RGBA, p *plot, series []Series) error {
	y := p.area.Min.Y + a.lineHeight()
	for _, s := range series {
		if s.Color == nil || s.Name == "" {
			continue
		}

		x := p.area.Max.X - a.width(s.Name) - 4*markerRadius - 8
		drawMarker(img, x, y-a.ascent()/2, s.Color)
		if err := a.draw(s.Name, x+2*markerRadius+4, y, axisColor); err != nil {
			return err
		}
		y += a.lineHeight()
	}
	return nil
}

func (a *annotator) drawInfo(p *plot, info []string) error {
	y := p.area.Max.Y + tickMarkLength + a.ascent() + 2 + a.lineHeight()*3/2
	for _, s := range info {
		if err := a.draw(s, p.area.Min.X, y, axisColor); err != nil {
			return err
		}
		y += a.lineHeight()
	}
	return nil
}
