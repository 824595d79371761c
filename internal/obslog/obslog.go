// Package obslog provides the structured logger shared by the
// encryption and integrity layers. Unlike a typical service, this
// module is a library meant to be embedded in a larger filesystem
// process, so the logger is constructed and injected per store rather
// than kept as global state.
package obslog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger with the component-tagging helpers the
// block-store layers use to report decryption failures and integrity
// violations.
type Logger struct {
	z zerolog.Logger
}

// New returns a Logger writing console-formatted output to w. If w is
// nil, output goes to os.Stderr.
func New(w io.Writer) Logger {
	if w == nil {
		w = os.Stderr
	}

	return Logger{z: zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}).With().Timestamp().Logger()}
}

// Noop returns a Logger that discards everything, for callers (and
// most tests) that don't want log output on stderr.
func Noop() Logger {
	return Logger{z: zerolog.Nop()}
}

// WithComponent returns a child logger tagging every event with the
// given component name.
func (l Logger) WithComponent(component string) Logger {
	return Logger{z: l.z.With().Str("component", component).Logger()}
}

// Warn logs a warning-level message with optional structured fields.
func (l Logger) Warn(msg string, fields map[string]any) {
	ev := l.z.Warn()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}

	ev.Msg(msg)
}

// Error logs an error-level message wrapping err.
func (l Logger) Error(msg string, err error) {
	l.z.Error().Err(err).Msg(msg)
}
