package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Settings is the resolved daemon configuration. Defaults are seeded into
// viper, optionally overridden by a YAML config file, then finally by
// command-line flags in main.
type Settings struct {
	LogLevel         string
	SamplePath       string
	OutputSampleRate int
	IdleTimeout      time.Duration
	VolumeOffsetDb   float64
	IPCSocketPath    string
	WSPort           int
	DenylistPath     string
}

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("sample", defaultSamplePath)
	viper.SetDefault("outputsamplerate", defaultOutputSampleRate)
	viper.SetDefault("idletimeoutms", int(defaultIdleTimeout/time.Millisecond))
	viper.SetDefault("volumeoffsetdb", 0.0)
	viper.SetDefault("ipcsocket", defaultIPCSocketPath)
	viper.SetDefault("wsport", defaultWSPort)
	viper.SetDefault("denylist", "")
}

// loadSettings reads configFilePath into viper on top of the defaults. A
// missing file is fine (the daemon runs entirely on defaults and flags); a
// malformed one is not.
func loadSettings(configFilePath string, logger *slog.Logger) (Settings, error) {
	setViperDefaults()

	if configFilePath != "" {
		viper.SetConfigFile(configFilePath)
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
				logger.Info("no config file found, using defaults", "path", configFilePath)
			} else {
				return Settings{}, fmt.Errorf("reading config %s: %w", configFilePath, err)
			}
		}
	}

	s := Settings{
		LogLevel:         viper.GetString("loglevel"),
		SamplePath:       viper.GetString("sample"),
		OutputSampleRate: viper.GetInt("outputsamplerate"),
		IdleTimeout:      time.Duration(viper.GetInt("idletimeoutms")) * time.Millisecond,
		VolumeOffsetDb:   viper.GetFloat64("volumeoffsetdb"),
		IPCSocketPath:    viper.GetString("ipcsocket"),
		WSPort:           viper.GetInt("wsport"),
		DenylistPath:     viper.GetString("denylist"),
	}

	if s.OutputSampleRate <= 0 {
		return Settings{}, fmt.Errorf("invalid outputsamplerate %d", s.OutputSampleRate)
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = defaultIdleTimeout
	}

	return s, nil
}

type denylistFile struct {
	Denylist []string `yaml:"denylist"`
}

// loadDenylist reads the window-suppression denylist. An empty path or a
// missing file yields a nil matcher (no suppression).
func loadDenylist(path string) (*denylistMatcher, error) {
	if path == "" {
		return nil, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading denylist %s: %w", path, err)
	}

	var f denylistFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing denylist %s: %w", path, err)
	}
	if len(f.Denylist) == 0 {
		return nil, nil
	}
	return newDenylistMatcher(f.Denylist), nil
}
