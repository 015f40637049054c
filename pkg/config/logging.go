package config

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the console logger used by the binaries. Results go to
// stdout, so logs are written to w (normally stderr). An unparseable level
// falls back to info.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
