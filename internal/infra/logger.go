package infra

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger so packages can share the logging contract
// through infra instead of importing the logging module directly.
type Logger = zerolog.Logger

// NewLogger builds the worker logger. Development gets debug level and a
// human readable console writer; every other environment logs JSON lines.
func NewLogger(appEnv string) Logger {
	return newLogger(os.Stdout, appEnv)
}

func newLogger(out io.Writer, appEnv string) Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("app_env", appEnv).
		Logger()
}

// NopLogger discards everything. Tests and optional dependencies use it.
func NopLogger() Logger {
	return zerolog.Nop()
}

// Component returns a child logger tagged with the component name.
func Component(l Logger, name string) Logger {
	return l.With().Str("component", name).Logger()
}
