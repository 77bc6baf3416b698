// Package config provides configuration loading and validation for
// tunerd. It supports configuration from files, environment variables,
// and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort      = 40772
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultTunerTimeLimit  = 20 * time.Second
	defaultRingSize        = 1 * 1024 * 1024 * 1024 // 1GiB
)

// Config holds all configuration for the application.
type Config struct {
	Server        ServerConfig         `mapstructure:"server"`
	Logging       LoggingConfig        `mapstructure:"logging"`
	Tuners        []TunerConfig        `mapstructure:"tuners"`
	ChannelTypes  []string             `mapstructure:"channel_types"`
	Filters       FiltersConfig        `mapstructure:"filters"`
	PreFilters    []FilterConfig       `mapstructure:"pre_filters"`
	PostFilters   []FilterConfig       `mapstructure:"post_filters"`
	Timeshift     TimeshiftConfig      `mapstructure:"timeshift"`
	OnairTrackers []OnairTrackerConfig `mapstructure:"onair_program_trackers"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// TunerConfig describes one physical tuner device.
type TunerConfig struct {
	Name            string   `mapstructure:"name"`
	Types           []string `mapstructure:"types"`
	Command         string   `mapstructure:"command"`
	TimeLimit       Duration `mapstructure:"time_limit"`
	Decoded         bool     `mapstructure:"decoded"`
	DedicatedMirakc string   `mapstructure:"dedicated_for"`
}

// FilterConfig describes one named filter command template.
type FilterConfig struct {
	Name        string `mapstructure:"name"`
	Command     string `mapstructure:"command"`
	ContentType string `mapstructure:"content_type"`
}

// FiltersConfig holds the server's singleton filter templates, applied
// automatically around a stream rather than looked up by name from a
// request: decode_filter descrambles when a request asks for it,
// service_filter/program_filter apply to service/program stream routes
// (currently unresolvable — see internal/httpapi's streamUnresolvable).
type FiltersConfig struct {
	DecodeFilter  FilterConfig `mapstructure:"decode_filter"`
	ServiceFilter FilterConfig `mapstructure:"service_filter"`
	ProgramFilter FilterConfig `mapstructure:"program_filter"`
}

// OnairTrackerConfig names a tuner dedicated to tracking on-air program
// changes for a channel type.
type OnairTrackerConfig struct {
	Name        string `mapstructure:"name"`
	ChannelType string `mapstructure:"channel_type"`
}

// TimeshiftConfig holds the timeshift recorder pool configuration.
type TimeshiftConfig struct {
	Recorders []TimeshiftRecorderConfig `mapstructure:"recorders"`
}

// TimeshiftRecorderConfig describes one configured timeshift recorder.
type TimeshiftRecorderConfig struct {
	Name        string   `mapstructure:"name"`
	ServiceID   int64    `mapstructure:"service_id"`
	ChannelType string   `mapstructure:"channel_type"`
	Channel     string   `mapstructure:"channel"`
	ExtraArgs   string   `mapstructure:"extra_args"`
	PreFilters  []string `mapstructure:"pre_filters"`
	PostFilters []string `mapstructure:"post_filters"`
	RingSize    ByteSize `mapstructure:"ring_size"`
	RecordPath  string   `mapstructure:"record_path"`
	TSFile      string   `mapstructure:"ts_file"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with TUNERD_ and use underscores
// for nesting. Example: TUNERD_SERVER_PORT=40772.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/tunerd")
		v.AddConfigPath("$HOME/.tunerd")
	}

	v.SetEnvPrefix("TUNERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure
// defaults are in place.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("channel_types", []string{"GR", "BS", "CS", "SKY"})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	names := make(map[string]bool, len(c.Tuners))
	for i, t := range c.Tuners {
		if t.Name == "" {
			return fmt.Errorf("tuners[%d].name is required", i)
		}
		if names[t.Name] {
			return fmt.Errorf("tuners[%d].name %q is duplicated", i, t.Name)
		}
		names[t.Name] = true
		if t.Command == "" {
			return fmt.Errorf("tuners[%d].command is required", i)
		}
		if len(t.Types) == 0 {
			return fmt.Errorf("tuners[%d].types must list at least one channel type", i)
		}
	}

	recorderNames := make(map[string]bool, len(c.Timeshift.Recorders))
	for i, r := range c.Timeshift.Recorders {
		if r.Name == "" {
			return fmt.Errorf("timeshift.recorders[%d].name is required", i)
		}
		if recorderNames[r.Name] {
			return fmt.Errorf("timeshift.recorders[%d].name %q is duplicated", i, r.Name)
		}
		recorderNames[r.Name] = true
		if r.RecordPath == "" {
			return fmt.Errorf("timeshift.recorders[%d].record_path is required", i)
		}
		if r.ChannelType == "" {
			return fmt.Errorf("timeshift.recorders[%d].channel_type is required", i)
		}
		if r.Channel == "" {
			return fmt.Errorf("timeshift.recorders[%d].channel is required", i)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RingSizeBytes returns the recorder's ring size, defaulting to 1GiB when
// unset.
func (r *TimeshiftRecorderConfig) RingSizeBytes() int64 {
	if r.RingSize == 0 {
		return defaultRingSize
	}
	return r.RingSize.Bytes()
}

// TimeLimitDuration returns the tuner's idle time limit, defaulting to 20
// seconds when unset.
func (t *TunerConfig) TimeLimitDuration() time.Duration {
	if t.TimeLimit == 0 {
		return defaultTunerTimeLimit
	}
	return t.TimeLimit.Duration()
}
