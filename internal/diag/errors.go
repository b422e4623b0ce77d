package diag

import (
	"errors"
	"fmt"
)

// NotImplementedError reports that the input uses a construct outside
// the supported subset. The current function is skipped; no verdict is
// claimed for it.
type NotImplementedError struct {
	Reason string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Reason
}

// NotImplemented builds a NotImplementedError.
func NotImplemented(format string, args ...any) error {
	return &NotImplementedError{Reason: fmt.Sprintf(format, args...)}
}

// IsNotImplemented reports whether err is a NotImplementedError.
func IsNotImplemented(err error) bool {
	var nie *NotImplementedError
	return errors.As(err, &nie)
}

// ParseError reports unusable textual input. Line is 1-based.
type ParseError struct {
	File string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Msg)
}

// Parse builds a ParseError.
func Parse(file string, line int, format string, args ...any) error {
	return &ParseError{File: file, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// ErrUnreachableExit is raised when the exit block cannot be reached
// from the entry block (the function loops forever). It is a supported
// outcome, distinct from parse and lowering errors.
var ErrUnreachableExit = NotImplemented("unreachable exit BB (infinite loop)")
