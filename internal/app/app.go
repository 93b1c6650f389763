package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/systap/systap/internal/audio"
	"github.com/systap/systap/internal/config"
	"github.com/systap/systap/internal/record"
)

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetIdle()
	SetCapturing()
	SetError()
}

type Config struct {
	Driver        audio.Driver
	Session       *audio.Session
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

// App coordinates the capture session, the optional disk recorder and
// the tray status around user commands.
type App struct {
	drv     audio.Driver
	session *audio.Session
	cfg     *config.Config
	log     zerolog.Logger
	status  StatusUpdater

	mu            sync.Mutex
	capturing     bool
	recorder      *record.Recorder
	lastRecording string
}

func New(cfg Config) *App {
	return &App{
		drv:     cfg.Driver,
		session: cfg.Session,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		status:  cfg.StatusUpdater,
	}
}

// ToggleCapture starts capture when idle and stops it when running.
func (a *App) ToggleCapture() {
	if a.IsCapturing() {
		a.StopCapture()
		return
	}
	if err := a.StartCapture(); err != nil {
		a.log.Error().Err(err).Msg("Failed to start capture")
	}
}

// StartCapture opens the configured source and, when enabled, attaches a
// WAV recorder to the chunk stream.
func (a *App) StartCapture() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capturing {
		return nil
	}

	a.log.Info().Str("source", a.cfg.Audio.Source).Str("device", a.cfg.Audio.DeviceID).Msg("Starting capture")

	err := a.session.Start(audio.Options{
		DeviceID:   a.cfg.Audio.DeviceID,
		Source:     a.source(),
		TargetRate: a.cfg.Capture.TargetRate,
		ChunkSize:  a.cfg.Capture.ChunkSize,
	})
	if err != nil {
		if a.status != nil {
			a.status.SetError()
		}
		return err
	}

	if a.cfg.RecordToDisk {
		sub := a.session.Subscribe(32)
		rec, err := record.Start(a.cfg.RecordingsPath(), a.targetRate(), sub, a.log)
		if err != nil {
			// Capture still runs; recording is best effort.
			a.log.Error().Err(err).Msg("Failed to start recorder")
			sub.Cancel()
		} else {
			a.recorder = rec
		}
	}

	a.capturing = true
	if a.status != nil {
		a.status.SetCapturing()
	}
	return nil
}

// StopCapture releases this app's hold on the session and finalizes any
// recording in progress. Stopping while idle is a no-op.
func (a *App) StopCapture() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.capturing {
		return
	}

	a.log.Info().Msg("Stopping capture")
	a.session.Stop()

	if a.recorder != nil {
		path, err := a.recorder.Stop()
		if err != nil {
			a.log.Error().Err(err).Msg("Recorder stop failed")
		}
		a.lastRecording = path
		a.recorder = nil
	}

	a.capturing = false
	if a.status != nil {
		a.status.SetIdle()
	}
}

func (a *App) IsCapturing() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.capturing
}

// LastRecording returns the path of the most recently finished recording.
func (a *App) LastRecording() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastRecording
}

// Subscribe exposes the session's chunk stream to external consumers.
func (a *App) Subscribe(buffer int) *audio.Subscription {
	return a.session.Subscribe(buffer)
}

// ListDevices enumerates endpoints for the configured source.
func (a *App) ListDevices() ([]audio.Device, error) {
	return a.drv.Devices(a.source())
}

func (a *App) SetDevice(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capturing {
		return fmt.Errorf("cannot change device while capturing")
	}

	a.cfg.Audio.DeviceID = id
	return a.cfg.Save()
}

func (a *App) SetSource(source string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.capturing {
		return fmt.Errorf("cannot change source while capturing")
	}

	a.cfg.Audio.Source = source
	a.cfg.Audio.DeviceID = ""
	return a.cfg.Save()
}

func (a *App) SetRecordToDisk(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cfg.RecordToDisk = enabled
	if err := a.cfg.Save(); err != nil {
		a.log.Error().Err(err).Msg("Failed to save config")
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.StopCapture()
	return nil
}

func (a *App) source() audio.Source {
	if a.cfg.Audio.Source == config.SourceInput {
		return audio.SourceInput
	}
	return audio.SourceLoopback
}

func (a *App) targetRate() int {
	if a.cfg.Capture.TargetRate > 0 {
		return a.cfg.Capture.TargetRate
	}
	return audio.DefaultTargetRate
}
