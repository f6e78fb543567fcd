// Package archiveerr classifies the fatal and warning diagnostics this
// module produces with the stable codes documented in spec.md §7, so the
// CLI front end can map an error to an exit code without string matching.
package archiveerr

import "fmt"

// Code is a stable diagnostic identifier matching the user-visible codes
// documented for this system.
type Code string

const (
	// CodeInputNotFound: missing source file or archive.
	CodeInputNotFound Code = "E051"
	// CodeHeaderMalformed: missing or unparseable header object.
	CodeHeaderMalformed Code = "E003"
	// CodeBadEvent: unknown event tag or wrong field count.
	CodeBadEvent Code = "E022"
	// CodeObservationNotFound: --id does not match any observation.
	CodeObservationNotFound Code = "E030"
	// CodeIndexOutOfBounds: --index exceeds observation count.
	CodeIndexOutOfBounds Code = "E053"
	// CodeNoSelectorMatch: timestamp selector produced an empty set.
	CodeNoSelectorMatch Code = "E051"
	// CodeInvalidTimestamp: selector or event timestamp could not be parsed.
	CodeInvalidTimestamp Code = "W012"

	// CodeFatal covers the diagnostics spec.md §7 documents as fatal without
	// assigning a stable E-code: source-label mismatch on append, overwrite
	// refused without --force, pointer errors during replay, and
	// compression-rewrite failure.
	CodeFatal Code = "FATAL"
)

// Error wraps an underlying cause with a stable Code and optional file
// position context.
type Error struct {
	Code    Code
	Message string
	Line    int // 1-based; 0 when not applicable
	Path    string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Line > 0 && e.Path != "":
		return fmt.Sprintf("%s: %s (line %d, path %s)", e.Code, e.Message, e.Line, e.Path)
	case e.Line > 0:
		return fmt.Sprintf("%s: %s (line %d)", e.Code, e.Message, e.Line)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around an existing cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithLine attaches file-position context, returning e for chaining.
func (e *Error) WithLine(line int) *Error {
	e.Line = line
	return e
}

// WithPath attaches the offending pointer path, returning e for chaining.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// ExitCode maps a Code to a process exit code. Every fatal class maps to a
// nonzero code; this module does not distinguish codes beyond "fatal".
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
