package diag

import (
	"fmt"
	"io"
	"os"
)

// Severity represents the severity level of a diagnostic message.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case Note:
		return "note"
	default:
		return "unknown"
	}
}

// Logger emits severity-tagged lines to a writer. The zero value is
// not usable; construct it with New.
type Logger struct {
	w       io.Writer
	verbose int
}

// New creates a Logger writing to w at the given verbosity.
func New(w io.Writer, verbose int) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return &Logger{w: w, verbose: verbose}
}

// Verbose returns the configured verbosity level.
func (l *Logger) Verbose() int { return l.verbose }

// Errorf writes an error line.
func (l *Logger) Errorf(format string, args ...any) {
	l.emit(Error, format, args...)
}

// Warningf writes a warning line.
func (l *Logger) Warningf(format string, args ...any) {
	l.emit(Warning, format, args...)
}

// Notef writes a note line when verbosity is at least level.
func (l *Logger) Notef(level int, format string, args ...any) {
	if l.verbose < level {
		return
	}
	l.emit(Note, format, args...)
}

// Dump writes raw text (no severity tag) when verbosity is at least level.
func (l *Logger) Dump(level int, text string) {
	if l.verbose < level {
		return
	}
	fmt.Fprint(l.w, text)
}

func (l *Logger) emit(s Severity, format string, args ...any) {
	fmt.Fprintf(l.w, "%s: %s\n", s, fmt.Sprintf(format, args...))
}
