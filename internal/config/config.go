package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Server defaults. Untouched sessions live for eight hours.
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = "8182"
	DefaultSessionTimeout = 8 * time.Hour
	DefaultSweepInterval  = 30 * time.Second
	DefaultLogLevel       = "info"
)

// Environment keys honored as overrides on top of the settings file.
const (
	EnvHost           = "GREMD_HOST"
	EnvPort           = "GREMD_PORT"
	EnvSessionTimeout = "GREMD_SESSION_TIMEOUT"
	EnvLogLevel       = "GREMD_LOG_LEVEL"
)

// Duration parses from YAML either as a Go duration string ("8h") or as a
// plain number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var secs int64
	if err := unmarshal(&secs); err != nil {
		return fmt.Errorf("duration must be a string or a number of seconds")
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Settings struct {
	Host           string   `yaml:"host"`
	Port           string   `yaml:"port"`
	SessionTimeout Duration `yaml:"sessionTimeout"`
	SweepInterval  Duration `yaml:"sweepInterval"`
	LogLevel       string   `yaml:"logLevel"`
	LogPretty      bool     `yaml:"logPretty"`
}

func defaults() Settings {
	return Settings{
		Host:           DefaultHost,
		Port:           DefaultPort,
		SessionTimeout: Duration(DefaultSessionTimeout),
		SweepInterval:  Duration(DefaultSweepInterval),
		LogLevel:       DefaultLogLevel,
	}
}

// Load reads settings from an optional YAML file and applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Settings, error) {
	s := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return s, fmt.Errorf("failed to read settings file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
	}

	s.Host = GetEnv(EnvHost, s.Host)
	s.Port = GetEnv(EnvPort, s.Port)
	s.LogLevel = GetEnv(EnvLogLevel, s.LogLevel)

	if raw := os.Getenv(EnvSessionTimeout); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return s, fmt.Errorf("invalid %s value %q: %w", EnvSessionTimeout, raw, err)
		}
		s.SessionTimeout = Duration(d)
	}

	if s.SessionTimeout <= 0 {
		s.SessionTimeout = Duration(DefaultSessionTimeout)
	}
	if s.SweepInterval <= 0 {
		s.SweepInterval = Duration(DefaultSweepInterval)
	}

	return s, nil
}

// GetEnv returns environment variable value or default if empty
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
