package config

import (
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var (
	ErrMissingPort         = errors.New("serial port must be set")
	ErrInvalidBaudRate     = errors.New("baud rate must be greater than 0")
	ErrInvalidReadTimeout  = errors.New("read timeout must not be negative")
	ErrInvalidHelloRetries = errors.New("hello retries must not be negative")
	ErrInvalidChunkSize    = errors.New("max chunk size must be a positive multiple of 512 no larger than 1 MiB")
	ErrInvalidEventBuffer  = errors.New("event buffer must be at least 1")
	ErrInvalidLogLevel     = errors.New("log level must be one of debug, info, warn, error")
)

const (
	sectorSize   = 512
	maxChunkSize = 1 << 20
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "SDLOAD"

// Config holds all application configuration
type Config struct {
	Serial   SerialConfig   `mapstructure:"serial"`
	Transfer TransferConfig `mapstructure:"transfer"`
	Log      LogConfig      `mapstructure:"log"`
}

// SerialConfig holds settings for the device link
type SerialConfig struct {
	Port         string        `mapstructure:"port"`
	BaudRate     int           `mapstructure:"baud"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	HelloRetries int           `mapstructure:"hello_retries"`
}

// TransferConfig holds chunked transfer settings
type TransferConfig struct {
	MaxChunkSize    int  `mapstructure:"max_chunk_size"`
	StrictAlignment bool `mapstructure:"strict_alignment"`
	TrimOutput      bool `mapstructure:"trim_output"`
	EventBuffer     int  `mapstructure:"event_buffer"`
}

// LogConfig holds diagnostic logging settings
type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Serial: SerialConfig{
			BaudRate:     115200,
			ReadTimeout:  5 * time.Second,
			HelloRetries: 2,
		},
		Transfer: TransferConfig{
			MaxChunkSize:    1024, // protocol absolute maximum
			StrictAlignment: true,
			TrimOutput:      false,
			EventBuffer:     64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate ensures the configuration is valid. The serial port is checked
// separately by ValidateDevice since not every command talks to a device.
func (c *Config) Validate() error {
	if c.Serial.BaudRate <= 0 {
		return ErrInvalidBaudRate
	}
	if c.Serial.ReadTimeout < 0 {
		return ErrInvalidReadTimeout
	}
	if c.Serial.HelloRetries < 0 {
		return ErrInvalidHelloRetries
	}
	if c.Transfer.MaxChunkSize <= 0 || c.Transfer.MaxChunkSize%sectorSize != 0 || c.Transfer.MaxChunkSize > maxChunkSize {
		return ErrInvalidChunkSize
	}
	if c.Transfer.EventBuffer < 1 {
		return ErrInvalidEventBuffer
	}
	if _, err := c.Log.ParseLevel(); err != nil {
		return ErrInvalidLogLevel
	}
	return nil
}

// ValidateDevice validates the configuration for commands that open a port.
func (c *Config) ValidateDevice() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Serial.Port == "" {
		return ErrMissingPort
	}
	return nil
}

// ParseLevel returns the logrus level for the configured name.
func (l LogConfig) ParseLevel() (logrus.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, ErrInvalidLogLevel
	}
}

// SetDefaults registers every key with its default on v so that environment
// variables and config files can override any of them.
func SetDefaults(v *viper.Viper) {
	d := NewDefaultConfig()
	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud", d.Serial.BaudRate)
	v.SetDefault("serial.read_timeout", d.Serial.ReadTimeout)
	v.SetDefault("serial.hello_retries", d.Serial.HelloRetries)
	v.SetDefault("transfer.max_chunk_size", d.Transfer.MaxChunkSize)
	v.SetDefault("transfer.strict_alignment", d.Transfer.StrictAlignment)
	v.SetDefault("transfer.trim_output", d.Transfer.TrimOutput)
	v.SetDefault("transfer.event_buffer", d.Transfer.EventBuffer)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.json", d.Log.JSON)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load builds a Config from v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
