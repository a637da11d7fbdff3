package transfer

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"sdload/internal/file"
)

// Config holds the settings shared by read and write tasks.
type Config struct {
	// MaxChunkSize is the protocol's absolute chunk limit.
	MaxChunkSize int

	// StrictAlignment rejects partial-sector acknowledgements before the
	// final chunk and zero-byte acknowledgements. When false, the block
	// counter truncates silently.
	StrictAlignment bool

	// TrimOutput truncates a read's output file back to the requested length
	// after the sector-aligned transfer completes.
	TrimOutput bool

	Files  file.Service
	Logger *logrus.Entry
	ID     uuid.UUID
}

func defaultConfig() Config {
	return Config{
		MaxChunkSize:    DefaultMaxChunkSize,
		StrictAlignment: true,
		Files:           file.NewService(),
		Logger:          logrus.NewEntry(logrus.StandardLogger()),
	}
}

// Option configures a task.
type Option func(*Config)

// WithMaxChunkSize sets the protocol's absolute chunk limit. Non-positive
// sizes are ignored.
func WithMaxChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.MaxChunkSize = size
		}
	}
}

// WithStrictAlignment enables or disables acknowledgement checks.
// Default is true.
func WithStrictAlignment(strict bool) Option {
	return func(c *Config) {
		c.StrictAlignment = strict
	}
}

// WithTrimOutput truncates read output to the requested length.
// Default is false: the output holds whole sectors.
func WithTrimOutput(trim bool) Option {
	return func(c *Config) {
		c.TrimOutput = trim
	}
}

// WithFileService replaces the local file service.
func WithFileService(files file.Service) Option {
	return func(c *Config) {
		if files != nil {
			c.Files = files
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithID fixes the transfer ID instead of generating one.
func WithID(id uuid.UUID) Option {
	return func(c *Config) {
		c.ID = id
	}
}

func buildConfig(opts []Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	return cfg
}
