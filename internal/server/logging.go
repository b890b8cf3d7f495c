// Package server constructs the zerolog logger used across the service.
package server

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a console logger at the given level. Unknown level strings
// fall back to info.
func NewLogger(level string) zerolog.Logger {
	return newLoggerTo(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}, level)
}

func newLoggerTo(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
