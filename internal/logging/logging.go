// Package logging builds the zerolog loggers shared by every binary.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/pixelkit/internal/config"
	"github.com/rs/zerolog"
)

// New returns a logger tagged with component. Unknown levels fall back to info.
func New(cfg config.LogConfig, component string) zerolog.Logger {
	return NewWithWriter(os.Stdout, cfg, component)
}

func NewWithWriter(out io.Writer, cfg config.LogConfig, component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
