// Package diag carries the diagnostics plumbing shared by every stage of the
// compiler: a Reporter that logs through hclog and counts errors, and the
// failure taxonomy in errors.go.
package diag

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
)

// Reporter logs diagnostics and remembers whether any error was reported.
type Reporter struct {
	logger hclog.Logger
	errors atomic.Int32
}

// NewReporter builds a Reporter writing to w. format is "text" or "json".
func NewReporter(w io.Writer, format string) *Reporter {
	return NewReporterWithLogger(NewLogger(w, format, "info"))
}

// NewReporterWithLogger wraps an existing logger.
func NewReporterWithLogger(logger hclog.Logger) *Reporter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Reporter{logger: logger}
}

// NewLogger builds the compiler's root logger.
func NewLogger(w io.Writer, format, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "taskhdl",
		Output:     w,
		Level:      hclog.LevelFromString(level),
		JSONFormat: format == "json",
		Color:      hclog.ColorOff,
	})
}

// Logger returns the underlying logger.
func (r *Reporter) Logger() hclog.Logger {
	if r == nil {
		return hclog.NewNullLogger()
	}
	return r.logger
}

// Errorf reports an error diagnostic.
func (r *Reporter) Errorf(format string, args ...interface{}) {
	if r == nil {
		return
	}
	r.errors.Add(1)
	r.logger.Error(fmt.Sprintf(format, args...))
}

// Warnf reports a warning diagnostic.
func (r *Reporter) Warnf(format string, args ...interface{}) {
	if r == nil {
		return
	}
	r.logger.Warn(fmt.Sprintf(format, args...))
}

// HasErrors reports whether Errorf was called at least once.
func (r *Reporter) HasErrors() bool {
	return r != nil && r.errors.Load() > 0
}
