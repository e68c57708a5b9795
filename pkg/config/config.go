// Package config loads sqltree settings from .sqltree.yaml, SQLTREE_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/sqltree/pkg/observability"
)

// Sentinel validation errors.
var (
	ErrInvalidPort       = errors.New("invalid server port")
	ErrInvalidDebounce   = errors.New("debounce must be positive")
	ErrInvalidSnippetMax = errors.New("snippet_max must be positive")
	ErrInvalidLogLevel   = errors.New("invalid log level")
	ErrInvalidLogFormat  = errors.New("invalid log format")
	ErrInvalidSampling   = errors.New("sample ratio must be within [0, 1]")
	ErrInvalidMessageMax = errors.New("max message size must be positive")
	ErrInvalidCacheBytes = errors.New("cache_bytes must not be negative")
)

const (
	envPrefix      = "SQLTREE"
	configName     = ".sqltree"
	maxPort        = 65535
	logFormatJSON  = "json"
	logFormatText  = "text"
	homeConfigPath = "$HOME"
)

// Config holds all sqltree settings.
type Config struct {
	Grammar    string          `mapstructure:"grammar"`
	Debounce   time.Duration   `mapstructure:"debounce"`
	SnippetMax int             `mapstructure:"snippet_max"`
	CacheBytes int64           `mapstructure:"cache_bytes"`
	Server     ServerConfig    `mapstructure:"server"`
	Logging    LoggingConfig   `mapstructure:"logging"`
	Telemetry  TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig holds the playground server settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	Port            int           `mapstructure:"port"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
}

// Addr returns the host:port listen address.
func (sc ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.Port)
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	OTLPEndpoint       string  `mapstructure:"otlp_endpoint"`
	OTLPHeaders        string  `mapstructure:"otlp_headers"`
	OTLPInsecure       bool    `mapstructure:"otlp_insecure"`
	SampleRatio        float64 `mapstructure:"sample_ratio"`
	Prometheus         bool    `mapstructure:"prometheus"`
	ShutdownTimeoutSec int     `mapstructure:"shutdown_timeout_sec"`
}

// LoadConfig loads configuration from configPath, or from .sqltree.yaml in
// the working directory or $HOME when configPath is empty. A missing default
// file is not an error; a missing explicit file is.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName(configName)
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath(homeConfigPath)
	}

	viperCfg.SetEnvPrefix(envPrefix)
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

func setDefaults(viperCfg *viper.Viper) {
	viperCfg.SetDefault("grammar", DefaultGrammar)
	viperCfg.SetDefault("debounce", DefaultDebounce)
	viperCfg.SetDefault("snippet_max", DefaultSnippetMax)
	viperCfg.SetDefault("cache_bytes", DefaultCacheBytes)

	viperCfg.SetDefault("server.host", DefaultServerHost)
	viperCfg.SetDefault("server.port", DefaultServerPort)
	viperCfg.SetDefault("server.read_timeout", DefaultServerReadTimeout)
	viperCfg.SetDefault("server.write_timeout", DefaultServerWriteTimeout)
	viperCfg.SetDefault("server.idle_timeout", DefaultServerIdleTimeout)
	viperCfg.SetDefault("server.max_message_bytes", DefaultServerMaxMessageBytes)

	viperCfg.SetDefault("logging.level", DefaultLogLevel)
	viperCfg.SetDefault("logging.format", DefaultLogFormat)

	viperCfg.SetDefault("telemetry.otlp_endpoint", "")
	viperCfg.SetDefault("telemetry.otlp_headers", "")
	viperCfg.SetDefault("telemetry.otlp_insecure", false)
	viperCfg.SetDefault("telemetry.sample_ratio", DefaultSampleRatio)
	viperCfg.SetDefault("telemetry.prometheus", false)
	viperCfg.SetDefault("telemetry.shutdown_timeout_sec", DefaultShutdownTimeoutSec)
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, config.Server.Port)
	}

	if config.Debounce <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDebounce, config.Debounce)
	}

	if config.SnippetMax <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnippetMax, config.SnippetMax)
	}

	if config.CacheBytes < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidCacheBytes, config.CacheBytes)
	}

	if config.Server.MaxMessageBytes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMessageMax, config.Server.MaxMessageBytes)
	}

	if _, err := ParseLevel(config.Logging.Level); err != nil {
		return err
	}

	switch config.Logging.Format {
	case logFormatText, logFormatJSON:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogFormat, config.Logging.Format)
	}

	if config.Telemetry.SampleRatio < 0 || config.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: %g", ErrInvalidSampling, config.Telemetry.SampleRatio)
	}

	return nil
}

// ParseLevel maps a level name (debug, info, warn, error) to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level

	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, name)
	}

	return level, nil
}

// Observability builds the telemetry configuration for the given mode.
func (c *Config) Observability(mode observability.AppMode, version string) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.ServiceVersion = version
	cfg.Mode = mode
	cfg.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	cfg.OTLPHeaders = observability.ParseOTLPHeaders(c.Telemetry.OTLPHeaders)
	cfg.OTLPInsecure = c.Telemetry.OTLPInsecure
	cfg.SampleRatio = c.Telemetry.SampleRatio
	cfg.Prometheus = c.Telemetry.Prometheus
	cfg.LogJSON = c.Logging.Format == logFormatJSON
	cfg.ShutdownTimeoutSec = c.Telemetry.ShutdownTimeoutSec

	if level, err := ParseLevel(c.Logging.Level); err == nil {
		cfg.LogLevel = level
	}

	return cfg
}
