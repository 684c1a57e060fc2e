// Package logger builds the zerolog loggers used across llmchain.
//
// Information Hiding:
// - Output format selection (json or console)
// - Level parsing
package logger

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New constructs a logger writing to stderr. Stdout is left to command output.
func New(level, format string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter constructs a logger based on level and format configuration.
func NewWithWriter(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Logger{}, err
		}
		lvl = parsed
	}

	var base zerolog.Logger
	switch strings.ToLower(format) {
	case "json", "":
		base = zerolog.New(w).With().Timestamp().Logger()
	case "console":
		consoleWriter := zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
		base = zerolog.New(consoleWriter).With().Timestamp().Logger()
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	return base.Level(lvl), nil
}

// Nop returns a disabled logger.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
