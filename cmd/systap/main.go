package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/app"
	"github.com/systap/systap/internal/audio"
	"github.com/systap/systap/internal/config"
	"github.com/systap/systap/internal/logging"
	"github.com/systap/systap/internal/tray"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the audio backend
	driver, err := newDriver(cfg.Backend, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio backend")
	}
	defer driver.Close()

	session := audio.NewSession(driver, log)

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, cfg, Version, Commit, log) // App reference set below

	// Create app with tray as status updater
	application := app.New(app.Config{
		Driver:        driver,
		Session:       session,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})

	// Set app reference in tray
	trayUI.SetApp(application)

	log.Info().Str("backend", driver.Name()).Msg("SysTap starting...")

	// Setup shutdown signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		if err := application.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Shutdown error")
		}
		os.Exit(0)
	}()

	// Start tray UI - MUST run on main thread
	if err := trayUI.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tray error")
	}
}

func newDriver(backend string, log zerolog.Logger) (audio.Driver, error) {
	if backend == config.BackendPortAudio {
		return audio.NewPortAudio(log)
	}
	return audio.NewMiniaudio(log)
}
