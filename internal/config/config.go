package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Config is the root configuration for the filter manager and the
// binaries that wrap it.
type Config struct {
	Logger LoggerConfig `yaml:"logger" validate:"required"`
	Server ServerConfig `yaml:"admin_server" validate:"required"`
	Data   DataConfig   `yaml:"data" validate:"required"`
	Filter FilterConfig `yaml:"default_filter" validate:"required"`
}

// LoggerConfig controls the slog handler installed at startup.
type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig is the read-only admin HTTP surface, not the bloomd
// wire protocol (which this repository does not implement).
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// DataConfig points the manager at its on-disk home.
type DataConfig struct {
	DataDir string `yaml:"data_dir" validate:"required"`
}

// FilterConfig is the default parameter set handed to newly created
// filters absent a per-filter override.
type FilterConfig struct {
	Capacity          uint            `yaml:"capacity" validate:"required,min=1"`
	FalsePositiveRate float64         `yaml:"false_positive_rate" validate:"required,gt=0,lt=1"`
	InMemory          bool            `yaml:"in_memory"`
	FlushIntervalSecs DurationSeconds `yaml:"flush_interval_seconds" validate:"required,min=1"`
}

// DurationSeconds is a plain integer number of seconds; kept distinct
// from time.Duration so the YAML field reads as a whole number rather
// than a Go duration literal like "60s".
type DurationSeconds int

// Default returns a baseline configuration, used when no config file
// is present.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "INFO", JSON: false},
		Server: ServerConfig{Addr: ":8420"},
		Data:   DataConfig{DataDir: "./data"},
		Filter: FilterConfig{
			Capacity:          100000,
			FalsePositiveRate: 0.01,
			InMemory:          false,
			FlushIntervalSecs: 60,
		},
	}
}

// Load reads a YAML config file at path, falling back to Default
// when the file does not exist, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, validate(cfg)
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	cfg = Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(&cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}
