// Package logger builds the console logger shared by the CLI and workers.
package logger

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options configures New.
type Options struct {
	Debug  bool
	JSON   bool
	Prefix string
	// Writer defaults to stderr.
	Writer io.Writer
}

// New creates a leveled key/value logger.
func New(opts Options) *log.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	level := log.InfoLevel
	if opts.Debug {
		level = log.DebugLevel
	}
	formatter := log.TextFormatter
	if opts.JSON {
		formatter = log.JSONFormatter
	}
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Level:           level,
		Formatter:       formatter,
		Prefix:          opts.Prefix,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
