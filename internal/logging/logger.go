package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/outreach/internal/config"
)

// NewLogger creates a structured zerolog.Logger with the service name and
// host as context fields.
func NewLogger(cfg *config.Config) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()

	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		ctx = ctx.Str("instance", host)
	}

	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
