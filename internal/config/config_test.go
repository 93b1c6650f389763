package config

import (
	"path/filepath"
	"testing"
)

// redirect points every platform's config and data lookup at a temp dir.
func redirect(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("APPDATA", filepath.Join(dir, "config"))
	t.Setenv("LOCALAPPDATA", filepath.Join(dir, "data"))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	redirect(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Backend != BackendMiniaudio {
		t.Errorf("expected default backend %q, got %q", BackendMiniaudio, cfg.Backend)
	}
	if cfg.Audio.Source != SourceLoopback {
		t.Errorf("expected default source %q, got %q", SourceLoopback, cfg.Audio.Source)
	}
	if cfg.Capture.TargetRate != 16000 {
		t.Errorf("expected default target rate 16000, got %d", cfg.Capture.TargetRate)
	}
	if cfg.Capture.ChunkSize != 1024 {
		t.Errorf("expected default chunk size 1024, got %d", cfg.Capture.ChunkSize)
	}
	if !cfg.RecordToDisk {
		t.Error("expected recording enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", cfg.LogLevel)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	redirect(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.Backend = BackendPortAudio
	cfg.Audio.Source = SourceInput
	cfg.Audio.DeviceID = "mic-2"
	cfg.Capture.TargetRate = 8000
	cfg.RecordToDisk = false
	cfg.LogLevel = "debug"

	if err := cfg.Save(); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Backend != BackendPortAudio {
		t.Errorf("backend not persisted: %q", loaded.Backend)
	}
	if loaded.Audio.Source != SourceInput || loaded.Audio.DeviceID != "mic-2" {
		t.Errorf("audio settings not persisted: %+v", loaded.Audio)
	}
	if loaded.Capture.TargetRate != 8000 {
		t.Errorf("target rate not persisted: %d", loaded.Capture.TargetRate)
	}
	if loaded.RecordToDisk {
		t.Error("record flag not persisted")
	}
	if loaded.LogLevel != "debug" {
		t.Errorf("log level not persisted: %q", loaded.LogLevel)
	}
}

func TestRecordingsPath(t *testing.T) {
	redirect(t)

	cfg := &Config{OutputDir: "/tmp/captures"}
	if got := cfg.RecordingsPath(); got != "/tmp/captures" {
		t.Errorf("explicit output dir must win, got %q", got)
	}

	cfg.OutputDir = ""
	got := cfg.RecordingsPath()
	if filepath.Base(got) != "recordings" {
		t.Errorf("default recordings path should end in recordings, got %q", got)
	}
}
