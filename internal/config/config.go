package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
)

// Backend names accepted in the config file.
const (
	BackendMiniaudio = "miniaudio"
	BackendPortAudio = "portaudio"
)

// Source names accepted in the config file.
const (
	SourceLoopback = "loopback"
	SourceInput    = "input"
)

type Config struct {
	Backend      string        `json:"backend"` // "miniaudio" or "portaudio"
	Audio        AudioConfig   `json:"audio"`
	Capture      CaptureConfig `json:"capture"`
	RecordToDisk bool          `json:"record_to_disk"`
	OutputDir    string        `json:"output_dir"` // recordings; empty means the data dir
	LogLevel     string        `json:"log_level"`
}

type AudioConfig struct {
	DeviceID string `json:"device_id"` // empty means backend default
	Source   string `json:"source"`    // "loopback" or "input"
}

type CaptureConfig struct {
	TargetRate int `json:"target_rate"`
	ChunkSize  int `json:"chunk_size"`
}

// Load reads the config from disk or returns defaults
func Load() (*Config, error) {
	path := configPath()

	// Default config
	cfg := &Config{
		Backend: BackendMiniaudio,
		Audio: AudioConfig{
			DeviceID: "",
			Source:   SourceLoopback,
		},
		Capture: CaptureConfig{
			TargetRate: 16000,
			ChunkSize:  1024,
		},
		RecordToDisk: true,
		OutputDir:    "",
		LogLevel:     "info",
	}

	// Load existing config if it exists
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := configPath()

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// RecordingsPath returns the directory recordings are written to.
func (c *Config) RecordingsPath() string {
	if c.OutputDir != "" {
		return c.OutputDir
	}
	return filepath.Join(dataPath(), "recordings")
}

// configPath returns the platform-specific config file path
func configPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "systap", "config.json")
}

// dataPath returns the platform-specific data directory path
func dataPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.local/share"
		}
	}

	return filepath.Join(base, "systap")
}
