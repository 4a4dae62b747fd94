// Package logging wires the engine's structured logging to
// github.com/joeycumines/logiface, using github.com/joeycumines/logiface-zerolog
// as the sink backend and github.com/rs/zerolog as the underlying encoder,
// following the construction pattern demonstrated in
// logiface-zerolog/template_test.go: a zerolog.Logger wrapped with
// izerolog.WithZerolog, then handed to izerolog.L.New alongside a level
// option, and finally narrowed to the logiface.Event interface via .Logger().
package logging

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	izerolog "github.com/joeycumines/logiface-zerolog"
	"github.com/rs/zerolog"
)

// Logger is the engine-wide structured logger type, builder-chained as
// logger.Debug().Str(`key`, val).Log(`message`).
type Logger = logiface.Logger[logiface.Event]

// Level controls the minimum severity a Logger emits.
type Level = logiface.Level

const (
	LevelTrace         = logiface.LevelTrace
	LevelDebug         = logiface.LevelDebug
	LevelInformational = logiface.LevelInformational
	LevelWarning       = logiface.LevelWarning
	LevelError         = logiface.LevelError
)

// New builds a Logger writing newline-delimited JSON to w at the given
// minimum level. Component names (extractor, parallelizer, sinker,
// checkpoint, monitor, task) are attached by callers via .Str(`component`, ...)
// on each log call, matching the teacher's per-call field style rather than
// a permanently bound sub-logger per component.
func New(w io.Writer, level Level) *Logger {
	z := izerolog.L
	return z.New(z.WithZerolog(zerolog.New(w).With().Timestamp().Logger()), z.WithLevel(level)).Logger()
}

// NewStderr builds a Logger writing to os.Stderr at the given minimum level,
// the engine's default when no explicit writer is configured.
func NewStderr(level Level) *Logger {
	return New(os.Stderr, level)
}
