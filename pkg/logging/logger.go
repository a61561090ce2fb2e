// Package logging configures the zerolog loggers used by the engine and the
// partlookup command.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is a minimum log level name.
type LogLevel string

const (
	// LevelDebug logs batch, record and pagination decisions.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs sent batches and settings changes.
	LevelInfo LogLevel = "info"

	// LevelWarn logs retries, failed batches and rate limit blocks.
	LevelWarn LogLevel = "warn"

	// LevelError logs errors only.
	LevelError LogLevel = "error"

	// LevelOff disables logging.
	LevelOff LogLevel = "off"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level written.
	Level LogLevel

	// Pretty switches from JSON lines to console output.
	Pretty bool

	// Output defaults to os.Stderr.
	Output io.Writer

	// Service is added to every entry when set.
	Service string
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Output:  os.Stderr,
		Service: "partlookup",
	}
}

// Setup builds a logger from cfg and installs it as the global logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05.000"}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel validates a level name from configuration.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "off", "disabled", "none":
		return LevelOff, nil
	default:
		return "", fmt.Errorf("unknown log level %q (want debug, info, warn, error or off)", s)
	}
}

// parseLevel falls back to info for unknown names.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := ParseLevel(string(level))
	if err != nil {
		return zerolog.InfoLevel
	}
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	case LevelOff:
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Field conventions:
//
//	component    cache, batch, client, ratelimit, pagination, lookup, cli
//	key          normalized part number
//	offset       page offset of a record
//	batch_id     uuid of one flush, shared by every entry the flush logs
//	trigger      size, timer or manual
//	batch_size   records in the flush
//	attempt      zero-based transport attempt
//	status_code  HTTP status of an attempt
//	error_class  classification of a failed attempt (rate_limited, bad_request, ...)
//	duration     elapsed time of a request or flush
//
// Record payloads and API keys are never logged.
