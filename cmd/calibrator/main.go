package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/roman-kulish/radio-calibration/cmd/calibrator/app"
	"github.com/roman-kulish/radio-calibration/internal/spectrum"
)

func main() {
	var logLevel slog.LevelVar
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: &logLevel}))

	var configPath, testType string
	flag.StringVar(&configPath, "c", "", "Path to the configuration file")
	flag.StringVar(&testType, "t", "", "Test to run. [danl, p1db, pcal]")
	flag.Parse()

	if configPath == "" {
		logger.Error("no configuration file provided")
		os.Exit(1)
	}
	if testType == "" {
		logger.Error("no test type provided")
		os.Exit(1)
	}

	config, err := app.LoadConfig(configPath)
	if err != nil {
		logger.Error(fmt.Sprintf("failed to load configuration file: %s", err.Error()), slog.String("path", configPath))
		os.Exit(1)
	}

	logLevel.Set(config.Settings.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = app.Run(ctx, config, spectrum.TestType(testType), logger); err != nil {
		logger.Error(err.Error())

		cancel()
		os.Exit(1)
	}
}
