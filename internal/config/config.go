// Package config loads and validates the process-wide configuration
// surface for the correction pipeline: the mountpoints to stream from,
// the authoritative SSR correction mountpoint, output paths and
// sampling rates, and the knobs called out in the design as requiring
// an explicit, non-guessed default.
package config

import (
	"fmt"
	"os"
	"time"

	validator "github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// MountConfig describes a single NTRIP mountpoint to stream from.
type MountConfig struct {
	Host        string `yaml:"host" validate:"required"`
	Port        int    `yaml:"port" validate:"required,min=1,max=65535"`
	Mountpoint  string `yaml:"mountpoint" validate:"required"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	RequiresGGA bool   `yaml:"requiresGGA"`
}

// Config is the root configuration struct, loaded from YAML and
// validated with struct tags before any component is constructed.
type Config struct {
	Mounts []MountConfig `yaml:"mounts" validate:"required,min=1,dive"`

	CorrMount string `yaml:"corrMount" validate:"required"`
	CorrPath  string `yaml:"corrPath" validate:"required"`

	Sample       float64 `yaml:"sample" validate:"gt=0"`
	DumpWait     float64 `yaml:"dumpWait" validate:"gt=0"`
	MaxQueueSize int     `yaml:"maxQueueSize" validate:"gt=0"`

	AntexFile     string `yaml:"antexFile"`
	UseCorrection bool   `yaml:"useCorrection"`

	// BDSTowOffsetSeconds is the configurable BeiDou TOW leap-second
	// knob from the design's Open Question disposition: some casters
	// emit BeiDou TOW already adjusted for the 14s offset from GPS
	// time, others don't. Default 14; set to 0 for a pre-adjusted
	// caster. Never hardcode this — it must stay a knob.
	BDSTowOffsetSeconds int `yaml:"bdsTowOffsetSeconds"`

	LogLevel string `yaml:"logLevel"`

	// GGASerialPort, if set, starts the local-serial GGA ingest path
	// (internal/ingest) instead of relying on a caster-forwarded fix.
	GGASerialPort string `yaml:"ggaSerialPort"`
	GGABaudRate   int    `yaml:"ggaBaudRate"`
}

// SampleInterval returns Sample as a time.Duration.
func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sample * float64(time.Second))
}

// DumpWaitDuration returns DumpWait as a time.Duration.
func (c *Config) DumpWaitDuration() time.Duration {
	return time.Duration(c.DumpWait * float64(time.Second))
}

// Defaults returns a Config pre-populated with the spec's documented
// defaults; Load merges a parsed YAML document on top of this so a
// mostly-empty config file still produces a valid, runnable Config.
func Defaults() Config {
	return Config{
		Sample:              1.0,
		DumpWait:            33.0,
		MaxQueueSize:        5,
		BDSTowOffsetSeconds: 14,
		LogLevel:            "info",
		GGABaudRate:         4800,
	}
}

var validate = validator.New()

// Load reads a YAML configuration file from path, applies it on top of
// Defaults(), and validates the result. A validation failure is a
// startup-time error — never a silently-applied default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}
