package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	ImagePNG  ImageFormat = "png"
	ImageJPEG ImageFormat = "jpeg"

	defaultWidth  = 1600
	defaultHeight = 900
	minImageSize  = 200
)

type ImageFormat string

type Config struct {
	DBPath        string
	RunID         int64
	OutputFile    string
	Format        ImageFormat
	Theme         ColorTheme
	Width         int
	Height        int
	MaxPower      *float64
	MinPower      *float64
	NoAnnotations bool
}

var validImageFormats = map[ImageFormat]struct{}{
	ImagePNG:  {},
	ImageJPEG: {},
}

func NewConfig() *Config {
	return &Config{
		Format: ImagePNG,
		Width:  defaultWidth,
		Height: defaultHeight,
	}
}

// Validate checks the configuration. OutputFile is expected without the
// format extension.
func (c *Config) Validate() error {
	switch {
	case c.DBPath == "":
		return errors.New("db path is required")
	case c.RunID <= 0:
		return errors.New("run id is required")
	case c.OutputFile == "":
		return errors.New("output file is required")
	case c.Width < minImageSize || c.Height < minImageSize:
		return fmt.Errorf("image must be at least %dx%d pixels: %dx%d given", minImageSize, minImageSize, c.Width, c.Height)
	case c.MinPower != nil && c.MaxPower != nil && *c.MinPower >= *c.MaxPower:
		return fmt.Errorf("min power %g must be below max power %g", *c.MinPower, *c.MaxPower)
	}
	if _, ok := validImageFormats[c.Format]; !ok {
		return fmt.Errorf("invalid image format: %s", c.Format)
	}
	if !c.Theme.Valid() {
		return fmt.Errorf("invalid color theme: %s", c.Theme)
	}
	return nil
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var imageFormat, theme string
	var minPower, maxPower float64
	flag.StringVar(&c.DBPath, "db", "", "Path to the database file")
	flag.Int64Var(&c.RunID, "r", 0, "Run ID")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output file, without extension")
	flag.StringVar(&imageFormat, "f", string(ImagePNG), "Output image format. [png, jpeg]")
	flag.StringVar(&theme, "theme", "", "Color theme of DANL traces. [classic, grayscale, jungle, thermal, marine]")
	flag.IntVar(&c.Width, "width", defaultWidth, "Image width in pixels")
	flag.IntVar(&c.Height, "height", defaultHeight, "Image height in pixels")
	flag.Float64Var(&minPower, "min-power", 0, "Define a manual minimum power (format nn.n)")
	flag.Float64Var(&maxPower, "max-power", 0, "Define a manual maximum power (format nn.n)")
	flag.BoolVar(&c.NoAnnotations, "no-annotations", false, "Disable annotations such as scales and run details")
	flag.Parse()

	flag.Visit(func(f *flag.Flag) {
		if f.Name == "min-power" {
			c.MinPower = &minPower
		}
		if f.Name == "max-power" {
			c.MaxPower = &maxPower
		}
	})

	c.Format = ImageFormat(strings.ToLower(imageFormat))
	c.Theme = ColorTheme(strings.ToLower(theme))

	if err := c.Validate(); err != nil {
		flag.Usage()
		return nil, err
	}

	c.OutputFile = fmt.Sprintf("%s.%s", c.OutputFile, c.Format)
	return c, nil
}
