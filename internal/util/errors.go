// Package util provides utility functions and types for cfdproxy.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNotFound.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., FormatError, DiscoveryError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
//
// All custom error types must implement:
//
//	Error() string           – human-readable message
//	Unwrap() error           – if the type wraps another error
//	Is(target error) bool    – for errors.Is() compatibility
package util

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrAuthFailed    = errors.New("authentication failed")
	ErrConfigInvalid = errors.New("invalid configuration")
)

// FormatError represents a malformed route argument.
type FormatError struct {
	Route   string
	Message string
}

// Error implements the error interface.
func (e *FormatError) Error() string {
	if e.Route != "" {
		return fmt.Sprintf("malformed route %q: %s", e.Route, e.Message)
	}
	return fmt.Sprintf("malformed route: %s", e.Message)
}

// Is checks if the error matches the target.
func (e *FormatError) Is(target error) bool {
	if target == ErrInvalidInput {
		return true
	}
	_, ok := target.(*FormatError)
	return ok
}

// NewFormatError creates a new FormatError.
func NewFormatError(route, message string) *FormatError {
	return &FormatError{Route: route, Message: message}
}

// AuthenticationError represents a platform login or session failure.
type AuthenticationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthenticationError) Is(target error) bool {
	if target == ErrAuthFailed {
		return true
	}
	_, ok := target.(*AuthenticationError)
	return ok || errors.Is(e.Cause, target)
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{Message: message}
}

// NewAuthenticationErrorWithCause creates a new AuthenticationError with a cause.
func NewAuthenticationErrorWithCause(message string, cause error) *AuthenticationError {
	return &AuthenticationError{Message: message, Cause: cause}
}

// DiscoveryError represents a failed platform discovery step: no matching
// route, or missing service bindings.
type DiscoveryError struct {
	Resource string
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *DiscoveryError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("discovery failed for %s: %s", e.Resource, e.Message)
	}
	return fmt.Sprintf("discovery failed: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *DiscoveryError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *DiscoveryError) Is(target error) bool {
	if target == ErrNotFound {
		return true
	}
	_, ok := target.(*DiscoveryError)
	return ok || errors.Is(e.Cause, target)
}

// NewDiscoveryError creates a new DiscoveryError.
func NewDiscoveryError(resource, message string) *DiscoveryError {
	return &DiscoveryError{Resource: resource, Message: message}
}

// NewDiscoveryErrorWithCause creates a new DiscoveryError with a cause.
func NewDiscoveryErrorWithCause(resource, message string, cause error) *DiscoveryError {
	return &DiscoveryError{Resource: resource, Message: message, Cause: cause}
}

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrConfigInvalid {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// NewConfigErrorWithCause creates a new ConfigError with a cause.
func NewConfigErrorWithCause(field, message string, cause error) *ConfigError {
	return &ConfigError{Field: field, Message: message, Cause: cause}
}

// TokenError represents a token fetch or validation failure.
type TokenError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("token %s failed: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("token %s failed", e.Op)
}

// Unwrap returns the underlying error.
func (e *TokenError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *TokenError) Is(target error) bool {
	_, ok := target.(*TokenError)
	return ok || errors.Is(e.Cause, target)
}

// NewTokenError creates a new TokenError.
func NewTokenError(op string, cause error) *TokenError {
	return &TokenError{Op: op, Cause: cause}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
