package precompiler

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error matches exactly one of these through errors.Is.
var (
	ErrUndefinedFlag       = errors.New("undefined flag")
	ErrUndefinedValue      = errors.New("undefined value")
	ErrStructuralImbalance = errors.New("unbalanced conditional")
	ErrMissingIncludePath  = errors.New("missing include path")
	ErrUnexpectedToken     = errors.New("unexpected token")
	ErrIncludeRead         = errors.New("include not readable")
	ErrIncludeDepth        = errors.New("include depth exceeded")
)

// Error is a fatal precompile failure located at a directive or substitution
// in the original (unexpanded) source.
type Error struct {
	Kind error
	File string
	Line int
	// Name is the flag or value name for ErrUndefinedFlag and ErrUndefinedValue.
	Name string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.File == "" && e.Line == 0 {
		return msg
	}
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, msg)
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

func errorAt(kind error, tok Token, format string, args ...any) *Error {
	return &Error{Kind: kind, File: tok.File, Line: tok.Line, Msg: fmt.Sprintf(format, args...)}
}
