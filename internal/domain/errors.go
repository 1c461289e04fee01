// Package domain defines the error taxonomy shared across the gateway.
package domain

import "fmt"

// AuthenticationError indicates missing or invalid call credentials:
// absent headers, a malformed Authorization value, an unknown token, or a
// profile the token does not grant.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string { return e.Message }

// TicketError indicates an unknown, already-used, or expired ticket.
type TicketError struct {
	Message string
}

func (e *TicketError) Error() string { return e.Message }

// UnknownProviderKindError indicates a profile references a provider kind
// that was never registered.
type UnknownProviderKindError struct {
	Kind string
}

func (e *UnknownProviderKindError) Error() string {
	return fmt.Sprintf("unknown provider kind %q", e.Kind)
}

// UnsupportedCriteriaError indicates a caller supplied list/read filter
// criteria, which this version does not support.
type UnsupportedCriteriaError struct {
	Message string
}

func (e *UnsupportedCriteriaError) Error() string { return e.Message }

// UnsupportedDataFormatError indicates a client-side input value that cannot
// be converted to a record batch stream.
type UnsupportedDataFormatError struct {
	Message string
}

func (e *UnsupportedDataFormatError) Error() string { return e.Message }

// NotFoundError indicates a table path that does not exist on the backend.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// NotImplementedError indicates an operation the gateway deliberately does
// not support, such as custom actions.
type NotImplementedError struct {
	Message string
}

func (e *NotImplementedError) Error() string { return e.Message }

// ValidationError indicates invalid input, such as a malformed table path.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrAuthentication creates an AuthenticationError with a formatted message.
func ErrAuthentication(format string, args ...interface{}) *AuthenticationError {
	return &AuthenticationError{Message: fmt.Sprintf(format, args...)}
}

// ErrTicket creates a TicketError with a formatted message.
func ErrTicket(format string, args ...interface{}) *TicketError {
	return &TicketError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedCriteria creates an UnsupportedCriteriaError with a formatted message.
func ErrUnsupportedCriteria(format string, args ...interface{}) *UnsupportedCriteriaError {
	return &UnsupportedCriteriaError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnsupportedDataFormat creates an UnsupportedDataFormatError with a formatted message.
func ErrUnsupportedDataFormat(format string, args ...interface{}) *UnsupportedDataFormatError {
	return &UnsupportedDataFormatError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotImplemented creates a NotImplementedError with a formatted message.
func ErrNotImplemented(format string, args ...interface{}) *NotImplementedError {
	return &NotImplementedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
