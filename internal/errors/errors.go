package errors

import (
	"errors"
	"fmt"
)

// TransportError represents a network-level failure (timeout, refused
// connection) talking to the panel or the payment provider
type TransportError struct {
	Operation string
	Cause     string
}

// Error returns the error message
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure during %s: %s", e.Operation, e.Cause)
}

// AuthError represents a credential failure that survived a re-login,
// requiring operator attention
type AuthError struct {
	Operation string
}

// Error returns the error message
func (e *AuthError) Error() string {
	return fmt.Sprintf("authorization failed during %s", e.Operation)
}

// HTTPError represents an unexpected HTTP status from a remote API
type HTTPError struct {
	Operation string
	Code      int
	Body      string
}

// Error returns the error message
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Operation, e.Code, e.Body)
}

// ValidationError represents a 422-class rejection of a request payload
// by the remote schema
type ValidationError struct {
	Operation string
	Detail    string
}

// Error returns the error message
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed during %s: %s", e.Operation, e.Detail)
}

// NotFoundError represents a missing remote entity
type NotFoundError struct {
	Entity string
	Key    string
}

// Error returns the error message
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.Key)
}

// StateError represents a local entitlement state rejection, such as a
// repeated trial grant
type StateError struct {
	UserID  int64
	Message string
}

// Error returns the error message
func (e *StateError) Error() string {
	return fmt.Sprintf("state error for user %d: %s", e.UserID, e.Message)
}

// IsTransport reports whether err is a transport failure
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuth reports whether err is an authorization failure
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is a not-found condition
func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}

// IsValidation reports whether err is a remote validation rejection
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// HTTPCode returns the status code carried by an HTTPError, or 0
func HTTPCode(err error) int {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return 0
}
