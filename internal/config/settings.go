package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/cfdproxy/internal/util"
)

// SettingsFileName is the optional per-project settings file. Command line
// flags override values from this file.
const SettingsFileName = "cfdproxy.yaml"

// Settings holds optional proxy settings loaded from a YAML file.
type Settings struct {
	// Port is the local listener port.
	Port int `yaml:"port"`

	// EnvPath is the directory holding the configuration artifact.
	EnvPath string `yaml:"envPath"`

	// Log holds logging settings.
	Log LogSettings `yaml:"log"`
}

// LogSettings holds logging-related settings.
type LogSettings struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is the log format (json, console).
	Format string `yaml:"format"`

	// Requests enables per-request forwarding logs.
	Requests bool `yaml:"requests"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		Port:    5050,
		EnvPath: ".",
		Log: LogSettings{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadSettings loads settings from path, falling back to defaults when the
// file does not exist.
func LoadSettings(path string) (*Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return nil, util.NewConfigErrorWithCause("settings", "failed to read "+path, err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, util.NewConfigErrorWithCause("settings", "invalid YAML in "+path, err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// validateSettings rejects values the proxy cannot serve with.
func validateSettings(s *Settings) error {
	if s.Port <= 0 || s.Port > 65535 {
		return util.NewConfigError("port", "must be between 1 and 65535")
	}
	if s.EnvPath == "" {
		return util.NewConfigError("envPath", "must not be empty")
	}
	return nil
}
