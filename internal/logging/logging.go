// Package logging configures the zerolog logger shared across the
// profiler. There is no process-wide singleton by design (§9 of the
// spec forbids global mutable state tied to a session) — callers build a
// logger once in main and thread it through explicitly.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger writing to w (stderr by default), matching
// the teacher's convention of sending diagnostics to stderr so stdout stays
// free for folded-stack output. verbose lowers the level to debug.
func New(w io.Writer, verbose bool) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	return zerolog.New(console).Level(level).With().Timestamp().Logger()
}
