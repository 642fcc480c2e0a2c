package werr

import (
	"errors"
	"fmt"
)

// Code classifies bridge errors the way callers are expected to react to them.
type Code int

const (
	// CodeMissingDependency signals that a required runtime component is absent.
	CodeMissingDependency Code = -5
	// CodeCanceled signals an operation cut short by window teardown.
	CodeCanceled Code = -4
	// CodeInvalidState signals use of an object outside its valid lifecycle.
	CodeInvalidState Code = -3
	// CodeInvalidArgument signals malformed input, e.g. undecodable call params.
	CodeInvalidArgument Code = -2
	// CodeUnspecified is the catch-all for serialization and transport failures.
	CodeUnspecified Code = -1
	// CodeOK is success; never carried by a non-nil error.
	CodeOK Code = 0
	// CodeDuplicate signals that a name is already bound.
	CodeDuplicate Code = 1
	// CodeNotFound signals an unknown binding name.
	CodeNotFound Code = 2
	// CodeRejected signals an explicit failure reported by the script side.
	CodeRejected Code = 3
)

func (c Code) String() string {
	switch c {
	case CodeMissingDependency:
		return "missing dependency"
	case CodeCanceled:
		return "canceled"
	case CodeInvalidState:
		return "invalid state"
	case CodeInvalidArgument:
		return "invalid argument"
	case CodeOK:
		return "ok"
	case CodeDuplicate:
		return "duplicate"
	case CodeNotFound:
		return "not found"
	case CodeRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// Error is the bridge error type. Errors with the same Code compare equal
// under errors.Is, so sentinel values below can be used as targets.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// Sentinel targets for errors.Is.
var (
	ErrCanceled        = &Error{Code: CodeCanceled}
	ErrInvalidState    = &Error{Code: CodeInvalidState}
	ErrInvalidArgument = &Error{Code: CodeInvalidArgument}
	ErrUnspecified     = &Error{Code: CodeUnspecified}
	ErrDuplicate       = &Error{Code: CodeDuplicate}
	ErrNotFound        = &Error{Code: CodeNotFound}
	ErrRejected        = &Error{Code: CodeRejected}
)

// New builds an error with a formatted message.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error that keeps its cause for errors.Unwrap.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// CodeOf extracts the code from any error in the chain, or CodeUnspecified.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnspecified
}
