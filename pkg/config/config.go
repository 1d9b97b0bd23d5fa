// Package config provides configuration loading and validation for the
// kerngraph CLI and diagnostics server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sentinel validation errors.
var (
	ErrInvalidPort        = errors.New("invalid server port")
	ErrInvalidRenderWorker = errors.New("render worker count must be positive")
	ErrInvalidWorkGroup    = errors.New("max work group size must be positive")
	ErrInvalidGridRank     = errors.New("max grid sizes must have between 1 and 3 dimensions")
	ErrInvalidGridSize     = errors.New("every max grid size dimension must be positive")
)

// Default configuration values.
const (
	defaultPort             = 8080
	defaultHost             = "0.0.0.0"
	defaultRenderWorkers    = 4
	defaultMaxWorkGroupSize = 256
	maxPort                 = 65535
	maxGridRank             = 3
)

// defaultMaxGridSizes mirrors a conservative OpenCL 1.x grid limit of 65535
// on each of the three axes.
var defaultMaxGridSizes = []int{65535, 65535, 65535}

// Config holds all configuration for the kerngraph CLI and diagnostics server.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Device  DeviceConfig  `mapstructure:"device"`
	Render  RenderConfig  `mapstructure:"render"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds diagnostics/metrics server configuration.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	Port         int           `mapstructure:"port"`
	Enabled      bool          `mapstructure:"enabled"`
}

// DeviceConfig describes the default target-device launch limits used by
// the virtual-size mapper when no device-specific override is supplied.
type DeviceConfig struct {
	MaxWorkGroupSize int   `mapstructure:"max_work_group_size"`
	MaxGridSizes     []int `mapstructure:"max_grid_sizes"`
}

// RenderConfig controls how computations are fused and emitted.
type RenderConfig struct {
	// Workers is the number of concurrent goroutines used by batch rendering
	// of multiple computations (see pkg/batch).
	Workers int `mapstructure:"workers"`

	// OutputDir is where rendered kernel source files are written. Empty
	// means stdout only.
	OutputDir string `mapstructure:"output_dir"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/kerngraph")
	}

	viperCfg.SetEnvPrefix("KERNGRAPH")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var cfg Config

	unmarshalErr := viperCfg.Unmarshal(&cfg)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	if validateErr := validateConfig(&cfg); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("server.enabled", false)
	viperCfg.SetDefault("server.port", defaultPort)
	viperCfg.SetDefault("server.host", defaultHost)
	viperCfg.SetDefault("server.read_timeout", "30s")
	viperCfg.SetDefault("server.write_timeout", "30s")
	viperCfg.SetDefault("server.idle_timeout", "60s")

	viperCfg.SetDefault("device.max_work_group_size", defaultMaxWorkGroupSize)
	viperCfg.SetDefault("device.max_grid_sizes", defaultMaxGridSizes)

	viperCfg.SetDefault("render.workers", defaultRenderWorkers)
	viperCfg.SetDefault("render.output_dir", "")

	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
	viperCfg.SetDefault("logging.output", "stderr")
}

// validateConfig validates the configuration.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Server.Port)
	}

	if cfg.Render.Workers <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRenderWorker, cfg.Render.Workers)
	}

	if cfg.Device.MaxWorkGroupSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkGroup, cfg.Device.MaxWorkGroupSize)
	}

	if len(cfg.Device.MaxGridSizes) == 0 || len(cfg.Device.MaxGridSizes) > maxGridRank {
		return fmt.Errorf("%w: %d", ErrInvalidGridRank, len(cfg.Device.MaxGridSizes))
	}

	for _, dim := range cfg.Device.MaxGridSizes {
		if dim <= 0 {
			return fmt.Errorf("%w: %v", ErrInvalidGridSize, cfg.Device.MaxGridSizes)
		}
	}

	return nil
}
