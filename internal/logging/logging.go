// Package logging sets up this tool's structured logger: Info by default,
// Debug under --verbose. It wraps charmbracelet/log the same way the
// daemon package threads a *log.Logger through its components rather than
// reaching for a package-level global.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New builds a *log.Logger writing to w at Info level, or at Debug level
// when verbose is true.
func New(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Level:           level,
	})
	return logger
}

// NewStderr is the default constructor commands reach for: writes to
// os.Stderr so stdout stays clean for piped artifact paths.
func NewStderr(verbose bool) *log.Logger {
	return New(os.Stderr, verbose)
}

// Discard is used by tests that want a logger with nowhere to go.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// WithStep returns a derived logger carrying a "step" field, for components
// that want to tag every line with the pipeline stage producing it without
// threading the step name through every call site.
func WithStep(logger *log.Logger, step string) *log.Logger {
	return logger.With("step", step)
}
