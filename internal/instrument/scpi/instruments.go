package scpi

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Generator is an instrument.AmplitudeSource.
type Generator struct {
	conn *Conn
	cfg  GeneratorConfig
	idn  string
}

// NewGenerator connects to the signal generator.
func NewGenerator(ctx context.Context, cfg GeneratorConfig, logger *slog.Logger) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := Dial(ctx, cfg.Address, WithTimeout(cfg.Timeout), WithLogger(logger))
	if err != nil {
		return nil, err
	}

	g := Generator{conn: conn, cfg: cfg}

	if cfg.Identify != "" {
		if g.idn, err = conn.Query(ctx, cfg.Identify); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("identifying signal generator: %w", err)
		}
		conn.logger.Info("signal generator connected", slog.String("idn", g.idn))
	}

	return &g, nil
}

// ID returns the identification string, empty if not queried.
func (g *Generator) ID() string {
	return g.idn
}

// Preset returns the generator to its power-on state and sends the
// configured init commands.
func (g *Generator) Preset(ctx context.Context) error {
	if err := g.conn.Write(ctx, g.cfg.Preset); err != nil {
		return err
	}
	for _, cmd := range g.cfg.Init {
		if err := g.conn.Write(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) SetFrequency(ctx context.Context, hz float64) error {
	return g.conn.Write(ctx, render(g.cfg.Frequency, hz))
}

func (g *Generator) SetAmplitude(ctx context.Context, dbm float64) error {
	return g.conn.Write(ctx, render(g.cfg.Amplitude, dbm))
}

func (g *Generator) RFOn(ctx context.Context) error {
	return g.conn.Write(ctx, g.cfg.RFOn)
}

func (g *Generator) RFOff(ctx context.Context) error {
	return g.conn.Write(ctx, g.cfg.RFOff)
}

func (g *Generator) Close() error {
	return g.conn.Close()
}

// Meter is an instrument.ReferenceMeterReader.
type Meter struct {
	conn *Conn
	cfg  MeterConfig
}

// NewMeter connects to the power meter and sends its init commands.
func NewMeter(ctx context.Context, cfg MeterConfig, logger *slog.Logger) (*Meter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := Dial(ctx, cfg.Address, WithTimeout(cfg.Timeout), WithLogger(logger))
	if err != nil {
		return nil, err
	}

	for _, cmd := range cfg.Init {
		if err := conn.Write(ctx, cmd); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("initializing power meter: %w", err)
		}
	}

	return &Meter{conn: conn, cfg: cfg}, nil
}

// Measure returns one reading in dBm.
func (m *Meter) Measure(ctx context.Context) (float64, error) {
	resp, err := m.conn.Query(ctx, m.cfg.Measure)
	if err != nil {
		return 0, err
	}

	// Some meters return several comma separated values; the first is the reading.
	field, _, _ := strings.Cut(resp, ",")
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid power meter reading %q: %w", resp, err)
	}
	return v, nil
}

func (m *Meter) Close() error {
	return m.conn.Close()
}

// Switch is an instrument.PathSwitch.
type Switch struct {
	conn *Conn
	cfg  SwitchConfig
}

// NewSwitch connects to the switch driver.
func NewSwitch(ctx context.Context, cfg SwitchConfig, logger *slog.Logger) (*Switch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	conn, err := Dial(ctx, cfg.Address, WithTimeout(cfg.Timeout), WithLogger(logger))
	if err != nil {
		return nil, err
	}

	return &Switch{conn: conn, cfg: cfg}, nil
}

func (s *Switch) SelectReference(ctx context.Context) error {
	return s.conn.Write(ctx, s.cfg.SelectReference)
}

func (s *Switch) SelectDeviceUnderTest(ctx context.Context) error {
	return s.conn.Write(ctx, s.cfg.SelectDeviceUnderTest)
}

func (s *Switch) Close() error {
	return s.conn.Close()
}
