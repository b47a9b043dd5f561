package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roman-kulish/radio-calibration/internal/instrument"
	"github.com/roman-kulish/radio-calibration/internal/instrument/scpi"
	"github.com/roman-kulish/radio-calibration/internal/instrument/sim"
	"github.com/roman-kulish/radio-calibration/internal/sdr"
	"github.com/roman-kulish/radio-calibration/internal/sdr/hackrf"
	"github.com/roman-kulish/radio-calibration/internal/sdr/rtl"
	"github.com/roman-kulish/radio-calibration/internal/sdr/uhd"
)

// benchDevice identifies the receiver of a bench for the run record.
type benchDevice struct {
	Type string
	ID   string
}

// createBench connects every instrument the configuration names. On error
// the instruments already connected are closed.
func createBench(ctx context.Context, config *Config, logger *slog.Logger) (instrument.Bench, benchDevice, error) {
	if config.Radio.Type == RadioSim {
		return createSimBench(config)
	}

	var bench instrument.Bench
	var closers []io.Closer

	fail := func(err error) (instrument.Bench, benchDevice, error) {
		for _, c := range closers {
			err = errors.Join(err, c.Close())
		}
		return instrument.Bench{}, benchDevice{}, err
	}

	timeout := config.Instruments.Timeout.Std()

	if gc := config.Instruments.Generator; gc != nil {
		cfg := *gc
		cfg.Timeout = timeout
		gen, err := scpi.NewGenerator(ctx, cfg, logger.With(slog.String("instrument", "generator")))
		if err != nil {
			return fail(fmt.Errorf("creating signal generator: %w", err))
		}
		closers = append(closers, gen)
		bench.Source = gen
	}

	if mc := config.Instruments.Meter; mc != nil {
		cfg := *mc
		cfg.Timeout = timeout
		meter, err := scpi.NewMeter(ctx, cfg, logger.With(slog.String("instrument", "meter")))
		if err != nil {
			return fail(fmt.Errorf("creating power meter: %w", err))
		}
		closers = append(closers, meter)
		bench.Meter = meter
	}

	if sc := config.Instruments.Switch; sc != nil {
		cfg := *sc
		cfg.Timeout = timeout
		sw, err := scpi.NewSwitch(ctx, cfg, logger.With(slog.String("instrument", "switch")))
		if err != nil {
			return fail(fmt.Errorf("creating switch: %w", err))
		}
		closers = append(closers, sw)
		bench.Switch = sw
	}

	device, err := createDevice(&config.Radio, logger)
	if err != nil {
		return fail(err)
	}
	bench.Receiver = device

	return bench, benchDevice{Type: string(config.Radio.Type), ID: device.ID()}, nil
}

func createDevice(config *RadioConfig, logger *slog.Logger) (*sdr.Device, error) {
	var handler sdr.Handler
	var err error
	switch config.Type {
	case RadioUHD:
		if handler, err = uhd.New(config.UHD); err != nil {
			return nil, fmt.Errorf("creating USRP device: %w", err)
		}

	case RadioHackRF:
		if handler, err = hackrf.New(config.HackRF); err != nil {
			return nil, fmt.Errorf("creating HackRF device: %w", err)
		}

	case RadioRTLSDR:
		if handler, err = rtl.New(config.RTL); err != nil {
			return nil, fmt.Errorf("creating RTL-SDR device: %w", err)
		}

	default:
		return nil, fmt.Errorf("creating device: unknown type '%s'", config.Type)
	}

	options := []func(*sdr.Device){
		sdr.WithLogger(logger),
		sdr.WithWindow(config.Window),
	}
	if config.TempDir != "" {
		options = append(options, sdr.WithTempDir(config.TempDir))
	}

	id := config.ID
	if id == "" {
		id = handler.Device()
	}

	device, err := sdr.NewDevice(id, handler, config.SampleRate, config.Range, options...)
	if err != nil {
		return nil, fmt.Errorf("creating device: %w", err)
	}
	return device, nil
}

func createSimBench(config *Config) (instrument.Bench, benchDevice, error) {
	cfg := config.Radio.Sim
	cfg.SampleRate = config.Radio.SampleRate

	b, err := sim.New(cfg)
	if err != nil {
		return instrument.Bench{}, benchDevice{}, fmt.Errorf("creating simulated bench: %w", err)
	}

	id := config.Radio.ID
	if id == "" {
		id = "sim-0"
	}
	return b.Bench(), benchDevice{Type: string(RadioSim), ID: id}, nil
}
