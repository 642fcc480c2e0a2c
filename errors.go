package webview

import "github.com/alx-home/webview/internal/werr"

// Code classifies bridge errors.
type Code = werr.Code

// Error is the error type returned by window and bridge operations. Match
// with errors.Is against the sentinels below, or inspect CodeOf.
type Error = werr.Error

const (
	CodeMissingDependency = werr.CodeMissingDependency
	CodeCanceled          = werr.CodeCanceled
	CodeInvalidState      = werr.CodeInvalidState
	CodeInvalidArgument   = werr.CodeInvalidArgument
	CodeUnspecified       = werr.CodeUnspecified
	CodeOK                = werr.CodeOK
	CodeDuplicate         = werr.CodeDuplicate
	CodeNotFound          = werr.CodeNotFound
	CodeRejected          = werr.CodeRejected
)

// Sentinel targets for errors.Is.
var (
	ErrCanceled        = werr.ErrCanceled
	ErrInvalidState    = werr.ErrInvalidState
	ErrInvalidArgument = werr.ErrInvalidArgument
	ErrUnspecified     = werr.ErrUnspecified
	ErrDuplicate       = werr.ErrDuplicate
	ErrNotFound        = werr.ErrNotFound
	ErrRejected        = werr.ErrRejected
)

// CodeOf extracts the code from any error in the chain, or CodeUnspecified.
func CodeOf(err error) Code {
	return werr.CodeOf(err)
}
