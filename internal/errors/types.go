// Package errors provides the structured error type shared by the preview
// client. Every failure that crosses a package boundary is a *PreviewError so
// callers can branch on its type and decide whether the client keeps running.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeProtocol   ErrorType = "protocol"
	ErrorTypeNavigation ErrorType = "navigation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// PreviewError is a structured error type with context.
type PreviewError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *PreviewError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, "path:"+e.Path)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *PreviewError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison on type and code.
func (e *PreviewError) Is(target error) bool {
	var t *PreviewError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *PreviewError) WithContext(key string, value interface{}) *PreviewError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the document path the error relates to.
func (e *PreviewError) WithPath(path string) *PreviewError {
	e.Path = path

	return e
}

// Error creation functions

// NewNetworkError creates a transport error. Network failures are
// recoverable: the page stays as it was and a later attempt may succeed.
func NewNetworkError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewProtocolError creates an error for a push frame that could not be decoded.
func NewProtocolError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeProtocol,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewNavigationError creates a navigation error.
func NewNavigationError(code, message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeNavigation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *PreviewError {
	return &PreviewError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Recoverable
	}

	return false
}

// IsType reports whether err is a *PreviewError of the given type.
func IsType(err error, t ErrorType) bool {
	var pe *PreviewError
	if errors.As(err, &pe) {
		return pe.Type == t
	}

	return false
}

// Common error codes.
const (
	ErrCodeDialFailed     = "ERR_DIAL_FAILED"
	ErrCodeConnectionLost = "ERR_CONNECTION_LOST"
	ErrCodeFetchFailed    = "ERR_FETCH_FAILED"
	ErrCodeBadStatus      = "ERR_BAD_STATUS"
	ErrCodeMalformedPush  = "ERR_MALFORMED_PUSH"
	ErrCodeMissingRegion  = "ERR_MISSING_REGION"
	ErrCodeCrossOrigin    = "ERR_CROSS_ORIGIN"
	ErrCodeSuperseded     = "ERR_SUPERSEDED"
	ErrCodeAlreadyOpen    = "ERR_ALREADY_OPEN"
	ErrCodeClosed         = "ERR_CLOSED"
	ErrCodeConfigInvalid  = "ERR_CONFIG_INVALID"
	ErrCodeInvalidURL     = "ERR_INVALID_URL"
	ErrCodeParseFailed    = "ERR_PARSE_FAILED"
	ErrCodeNoHistory      = "ERR_NO_HISTORY"
)

// Sentinels for errors.Is comparisons; only Type and Code take part.
var (
	ErrSuperseded  = &PreviewError{Type: ErrorTypeNavigation, Code: ErrCodeSuperseded}
	ErrCrossOrigin = &PreviewError{Type: ErrorTypeNavigation, Code: ErrCodeCrossOrigin}
	ErrAlreadyOpen = &PreviewError{Type: ErrorTypeInternal, Code: ErrCodeAlreadyOpen}
	ErrClosed      = &PreviewError{Type: ErrorTypeInternal, Code: ErrCodeClosed}
	ErrBadStatus   = &PreviewError{Type: ErrorTypeNetwork, Code: ErrCodeBadStatus}

	ErrMissingRegion = &PreviewError{Type: ErrorTypeInternal, Code: ErrCodeMissingRegion}
)

// ErrStatus creates the error returned when the server answers with a
// non-success status.
func ErrStatus(path string, status int) *PreviewError {
	return NewNetworkError(
		ErrCodeBadStatus,
		fmt.Sprintf("unexpected status %d", status),
		nil,
	).WithPath(path).WithContext("status", status)
}
