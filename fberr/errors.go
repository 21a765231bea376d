package fberr

import (
	"fmt"
)

// ErrorType represents different categories of driver errors
type ErrorType int

const (
	// ErrorTypeUnknown represents an unknown error
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeProtocol represents an unexpected response or operation
	// code received during negotiation or a codec read. The connection
	// must be discarded.
	ErrorTypeProtocol
	// ErrorTypeEncryptionPolicy represents a required wire encryption
	// that was never activated. Raised once connection validation
	// completes.
	ErrorTypeEncryptionPolicy
	// ErrorTypeIO represents a channel read/write failure. Never retried
	// automatically; the caller decides whether to reconnect.
	ErrorTypeIO
	// ErrorTypeUnsupportedPlugin represents a server-selected auth plugin
	// matching none of the configured plugins.
	ErrorTypeUnsupportedPlugin
	// ErrorTypeParameterBinding represents a named parameter referenced
	// by a statement with no corresponding bound value.
	ErrorTypeParameterBinding
	// ErrorTypeMarshalingRange represents a type code or length outside
	// the supported range. A programming error, never retried.
	ErrorTypeMarshalingRange
)

// Error represents a structured driver error with type information
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsType checks if the error is of a specific type
func (e *Error) IsType(errorType ErrorType) bool {
	return e.Type == errorType
}

// NewError creates a new Error with the specified type and message
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with the specified type, message, and underlying cause
func NewErrorWithCause(errorType ErrorType, message string, cause error) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewProtocolError creates a protocol-violation error
func NewProtocolError(message string) *Error {
	return NewError(ErrorTypeProtocol, message)
}

// NewProtocolErrorf creates a protocol-violation error with formatting
func NewProtocolErrorf(format string, args ...interface{}) *Error {
	return NewError(ErrorTypeProtocol, fmt.Sprintf(format, args...))
}

// NewEncryptionPolicyError creates a wire-crypt policy violation error
func NewEncryptionPolicyError(message string) *Error {
	return NewError(ErrorTypeEncryptionPolicy, message)
}

// NewIOError wraps a channel read/write failure
func NewIOError(message string, cause error) *Error {
	return NewErrorWithCause(ErrorTypeIO, message, cause)
}

// NewUnsupportedPluginError creates an unsupported-plugin error naming
// the plugin the server selected
func NewUnsupportedPluginError(pluginName string) *Error {
	return NewError(ErrorTypeUnsupportedPlugin, fmt.Sprintf("server selected unsupported auth plugin %q", pluginName))
}

// NewParameterBindingError creates a binding error naming the offending
// parameter
func NewParameterBindingError(paramName string) *Error {
	return NewError(ErrorTypeParameterBinding, fmt.Sprintf("no value bound for parameter %q", paramName))
}

// NewMarshalingRangeError creates a marshaling range error
func NewMarshalingRangeError(message string) *Error {
	return NewError(ErrorTypeMarshalingRange, message)
}

// IsProtocolError checks if an error is a protocol violation
func IsProtocolError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeProtocol)
	}
	return false
}

// IsEncryptionPolicyError checks if an error is a wire-crypt policy violation
func IsEncryptionPolicyError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeEncryptionPolicy)
	}
	return false
}

// IsIOError checks if an error is a channel I/O failure
func IsIOError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeIO)
	}
	return false
}

// IsUnsupportedPluginError checks if an error is an unsupported-plugin error
func IsUnsupportedPluginError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeUnsupportedPlugin)
	}
	return false
}

// IsParameterBindingError checks if an error is a parameter binding error
func IsParameterBindingError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeParameterBinding)
	}
	return false
}

// IsMarshalingRangeError checks if an error is a marshaling range error
func IsMarshalingRangeError(err error) bool {
	if fbErr, ok := err.(*Error); ok {
		return fbErr.IsType(ErrorTypeMarshalingRange)
	}
	return false
}
