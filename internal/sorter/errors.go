package sorter

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every error the sorter reports.
type ErrorKind int

const (
	// KindInvalidSourceDirectory is a setup error; no batch is attempted.
	KindInvalidSourceDirectory ErrorKind = iota + 1
	// KindIO covers open, read and permission failures on a single entry.
	KindIO
	// KindDateParse marks an embedded timestamp that failed strict parsing.
	// It is retained as a diagnostic; resolution continues with the next tier.
	KindDateParse
	// KindDateResolutionExhausted means no tier produced a date.
	KindDateResolutionExhausted
	// KindMoveIO covers directory creation and rename failures, including an
	// unexpected file already present at the target.
	KindMoveIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidSourceDirectory:
		return "invalid source directory"
	case KindIO:
		return "io error"
	case KindDateParse:
		return "date parse error"
	case KindDateResolutionExhausted:
		return "date resolution exhausted"
	case KindMoveIO:
		return "move error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

var (
	// ErrTargetExists is the cause of a KindMoveIO error when the target path is occupied.
	ErrTargetExists = errors.New("target already exists")
	// ErrNotADirectory is the cause of a KindInvalidSourceDirectory error for non-directories.
	ErrNotADirectory = errors.New("not a directory")
	// ErrNoTimestamps is the cause of a KindDateResolutionExhausted error.
	ErrNoTimestamps = errors.New("no usable timestamp")
)

// Error is the structured error type carried on records and returned from setup.
type Error struct {
	Kind ErrorKind
	// Path is the file or directory the error is about.
	Path string
	// Value holds the offending input, e.g. the raw timestamp that failed to parse.
	Value string
	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Value != "" {
		msg += fmt.Sprintf(" (%q)", e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err, or any error it wraps, is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

func newError(kind ErrorKind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Err: cause}
}
