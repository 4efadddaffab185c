package apperr

import "fmt"

// Code classifies an application error for HTTP mapping
type Code int

const (
	// CodeNotFound means a referenced entity or relationship is absent
	CodeNotFound Code = iota
	// CodeBadRequest means the request violates a business invariant
	CodeBadRequest
	// CodeInternal means storage or another unexpected failure occurred;
	// the client-visible message never carries storage detail
	CodeInternal
)

// Error is an application error with a message safe to show to clients.
// For CodeInternal the underlying cause is kept for server-side logging only.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// NotFound creates a NotFound error with a displayable message
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message}
}

// BadRequest creates a BadRequest error with a displayable message
func BadRequest(message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message}
}

// Internal wraps a storage or unexpected failure. The message shown to
// clients is always generic; cause is logged server-side.
func Internal(cause error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", cause: cause}
}
