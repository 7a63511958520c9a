package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewFromEnv builds a logger from environment variables
// LOG_LEVEL: debug, info, warn, error (default: info)
// LOG_FORMAT: json, pretty (default: json)
func NewFromEnv() zerolog.Logger {
	return New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"), os.Stdout)
}

// New builds a logger writing to out. The logger is returned by value and
// passed explicitly; nothing here touches zerolog's global logger.
func New(level, format string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level = strings.ToLower(level)
	if strings.ToLower(format) == "pretty" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp()
	// Add caller information for debugging
	if level == "debug" {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
