package log

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the global logger instance every role derives its child
// logger from via the With* constructors below.
var Logger zerolog.Logger

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init builds the global Logger from cfg. An unparsable or empty Level
// falls back to info rather than rejecting the config outright — the
// daemon should still come up and log if `--log-level` is mistyped.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var w io.Writer = output
	if !cfg.JSONOutput {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithComponent creates a child logger with a component field, e.g.
// "acceptor", "monitor", "worker".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorker creates a child logger tagged with a worker slot index and
// its current respawn generation.
func WithWorker(slot int, generation uint64) zerolog.Logger {
	return Logger.With().Int("worker_slot", slot).Uint64("generation", generation).Logger()
}

// WithConn creates a child logger tagged with a connection's trace id.
func WithConn(id uuid.UUID) zerolog.Logger {
	return Logger.With().Str("conn_id", id.String()).Logger()
}
