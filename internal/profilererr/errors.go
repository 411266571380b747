// Package profilererr implements the error taxonomy of the profiler's
// error-handling design: a small set of kinds, each with a prescribed
// recovery action lived out by the caller (cmd/goflame maps kinds to exit
// codes; internal packages decide per kind whether to abort or absorb).
package profilererr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error by the recovery action it demands.
type Kind int

const (
	// KindInvalidArgs: CLI parser rejected the invocation. Fatal, exit 2.
	KindInvalidArgs Kind = iota
	// KindTargetNotFound: /proc/<pid> could not be opened. Fatal, exit 3.
	KindTargetNotFound
	// KindNotGoBinary: ELF inspector found no gopclntab. Non-fatal for
	// collection; symbolization falls back to "[unknown]" frames.
	KindNotGoBinary
	// KindProbeLoad: loader failed to load or attach probes. Fatal, exit 4.
	KindProbeLoad
	// KindMapFull: a kernel map saturated. Non-fatal; reported on stderr
	// and via EbpfStats.
	KindMapFull
	// KindStackWalkFailed: per-sample stack capture failed. Absorbed as a
	// synthetic "[unwind_failed]" frame.
	KindStackWalkFailed
	// KindSymbolLookupFailed: per-PC resolution failed. Absorbed as a
	// synthetic "[unknown:0xADDR]" frame.
	KindSymbolLookupFailed
	// KindOutputWriteFailed: renderer could not write its output. Fatal,
	// exit 5.
	KindOutputWriteFailed
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgs:
		return "invalid_args"
	case KindTargetNotFound:
		return "target_not_found"
	case KindNotGoBinary:
		return "not_go_binary"
	case KindProbeLoad:
		return "probe_load"
	case KindMapFull:
		return "map_full"
	case KindStackWalkFailed:
		return "stack_walk_failed"
	case KindSymbolLookupFailed:
		return "symbol_lookup_failed"
	case KindOutputWriteFailed:
		return "output_write_failed"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind must abort the session.
func (k Kind) Fatal() bool {
	switch k {
	case KindInvalidArgs, KindTargetNotFound, KindProbeLoad, KindOutputWriteFailed:
		return true
	default:
		return false
	}
}

// Error is a kind-tagged, wrapped error.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// Cause returns the deepest wrapped error, mirroring github.com/pkg/errors'
// convention used throughout this package.
func (e *Error) Cause() error { return errors.Cause(e.cause) }

// Wrap tags err with kind, adding msg as context via pkg/errors.Wrap. Wrap
// returns nil if err is nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrap(err, msg)}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, kind Kind, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.Wrapf(err, format, args...)}
}

// New creates a new Error of kind carrying msg.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, cause: errors.New(msg)}
}

// As extracts the Kind of err if it (or something it wraps) is an *Error.
// The zero value and false are returned otherwise.
func As(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
