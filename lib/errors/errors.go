// Package errors provides structured error types for the netext overlay engine.
// All errors are designed to be safe to surface across the host boundary without
// exposing internal implementation details.
//
// This package provides:
//   - Sentinel errors for common failure conditions
//   - Error codes for boundary status categorization
//   - Error wrapping with context preservation
//   - Safe error messages that don't leak sensitive information
package errors

import (
	"errors"
	"fmt"

	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Error codes for categorizing failures at the host boundary. The boundary
// itself only reports success/failure; these codes let embedders that link
// against the Go API distinguish failure classes without string matching.
const (
	CodeOK              = 0
	CodeInternal        = -1 // Unclassified internal failure
	CodeConfig          = -2 // Configuration document rejected
	CodeUnknownInstance = -3 // No instance registered under the given name
	CodeAlreadyBound    = -4 // Instance already bound to a different device
	CodeInvalidHandle   = -5 // Device handle rejected by the platform
	CodeRuntime         = -6 // Instance runtime failed to start or stop
	CodeInvalidBuffer   = -7 // Invalid output buffer for info collection
	CodeState           = -8 // Invalid lifecycle state for the operation
)

// Sentinel errors for common failure conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrConfiguration indicates the configuration document is malformed or
	// semantically invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnknownInstance indicates no instance is registered under the name.
	ErrUnknownInstance = errors.New("unknown instance")

	// ErrAlreadyBound indicates the instance is already bound to a different
	// device handle.
	ErrAlreadyBound = errors.New("already bound")

	// ErrInvalidHandle indicates the platform rejected the device handle.
	ErrInvalidHandle = errors.New("invalid device handle")

	// ErrInvalidBuffer indicates an invalid output buffer was supplied to an
	// info-collection operation.
	ErrInvalidBuffer = errors.New("invalid buffer")

	// ErrInvalidState indicates an invalid lifecycle state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrRuntimeStart indicates the instance runtime failed to start.
	ErrRuntimeStart = errors.New("runtime start failed")

	// ErrRuntimeStop indicates the instance runtime failed to stop cleanly.
	ErrRuntimeStop = errors.New("runtime stop failed")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")
)

// Device errors
var (
	// ErrDeviceClosed indicates the bound device descriptor was closed by the host.
	ErrDeviceClosed = fmt.Errorf("device: %w", ErrClosed)

	// ErrDeviceNotTun indicates the handle does not refer to a packet device.
	ErrDeviceNotTun = fmt.Errorf("device: not a packet device: %w", ErrInvalidHandle)
)

// Manager errors
var (
	// ErrManagerClosed indicates the instance manager has been shut down.
	ErrManagerClosed = fmt.Errorf("manager: %w", ErrClosed)
)

// Error is a structured error with a code and safe message.
// It implements the error interface and preserves the underlying
// cause for errors.Is/As without exposing it to the host.
type Error struct {
	// Code is the error code for boundary categorization
	Code int `json:"code"`
	// Message is a safe, host-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to hosts)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a host-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// New creates a new structured error with the given code and message.
// The message should be safe to surface to the host.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging but not exposed to hosts.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error.
// It automatically assigns an appropriate error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    Code(err),
		Message: err.Error(),
		Err:     err,
	}
}

// Code maps an error to its boundary status code.
// Structured errors report their own code; sentinels map by identity;
// anything else is CodeInternal. A nil error is CodeOK.
func Code(err error) int {
	if err == nil {
		return CodeOK
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	switch {
	case errors.Is(err, ErrConfiguration):
		return CodeConfig
	case errors.Is(err, ErrUnknownInstance):
		return CodeUnknownInstance
	case errors.Is(err, ErrAlreadyBound):
		return CodeAlreadyBound
	case errors.Is(err, ErrInvalidHandle):
		return CodeInvalidHandle
	case errors.Is(err, ErrInvalidBuffer):
		return CodeInvalidBuffer
	case errors.Is(err, ErrInvalidState):
		return CodeState
	case errors.Is(err, ErrRuntimeStart), errors.Is(err, ErrRuntimeStop):
		return CodeRuntime
	default:
		return CodeInternal
	}
}

// IsUnknownInstance returns true if the error indicates an unregistered instance name.
func IsUnknownInstance(err error) bool {
	return errors.Is(err, ErrUnknownInstance)
}

// IsAlreadyBound returns true if the error indicates a conflicting device binding.
func IsAlreadyBound(err error) bool {
	return errors.Is(err, ErrAlreadyBound)
}

// IsInvalidHandle returns true if the error indicates a rejected device handle.
func IsInvalidHandle(err error) bool {
	return errors.Is(err, ErrInvalidHandle)
}

// IsConfiguration returns true if the error indicates an invalid configuration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsInvalidBuffer returns true if the error indicates an undersized caller buffer.
func IsInvalidBuffer(err error) bool {
	return errors.Is(err, ErrInvalidBuffer)
}

// IsInvalidState returns true if the error indicates an invalid state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
