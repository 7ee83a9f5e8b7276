// Package validation provides reusable input validation functions for the netext
// overlay engine. All validators follow a consistent pattern: they return nil on
// success and a descriptive error on failure. Errors are designed to be safe to
// surface across the host boundary (no internal details).
package validation

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Common validation errors. These are sentinel errors that can be checked with errors.Is().
var (
	// ErrRequired indicates a required field is missing or empty.
	ErrRequired = errors.New("field is required")

	// ErrTooLong indicates a string exceeds the maximum length.
	ErrTooLong = errors.New("value exceeds maximum length")

	// ErrInvalidFormat indicates a value doesn't match the expected format.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrOutOfRange indicates a numeric value is outside the allowed range.
	ErrOutOfRange = errors.New("value out of range")
)

// Constraints for common field types.
const (
	// MaxInstanceNameLength is the maximum length for instance names.
	MaxInstanceNameLength = 64

	// MaxHostnameLength is the maximum length for instance hostnames.
	MaxHostnameLength = 253

	// MinMTU is the smallest usable tunnel MTU (IPv6 minimum link MTU).
	MinMTU = 1280

	// MaxMTU is the largest accepted tunnel MTU.
	MaxMTU = 9000
)

// instanceNamePattern matches valid instance names: printable identifiers
// starting with an alphanumeric, using alphanumerics, dots, dashes and
// underscores afterwards.
var instanceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Result represents a validation result with field context.
type Result struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (r *Result) Error() string {
	if r.Field != "" {
		return fmt.Sprintf("%s: %s", r.Field, r.Message)
	}
	return r.Message
}

// Unwrap returns the underlying error for errors.Is() support.
func (r *Result) Unwrap() error {
	return r.Err
}

// NewResult creates a validation result.
func NewResult(field, message string, err error) *Result {
	return &Result{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// Required validates that a string is non-empty.
func Required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return NewResult(field, "is required", ErrRequired)
	}
	return nil
}

// MaxLength validates that a string doesn't exceed the maximum length.
func MaxLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return NewResult(field, fmt.Sprintf("exceeds maximum length of %d characters", max), ErrTooLong)
	}
	return nil
}

// InstanceName validates an instance name: required, bounded length, and
// restricted to a safe identifier character set.
func InstanceName(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if err := MaxLength(field, value, MaxInstanceNameLength); err != nil {
		return err
	}
	if !instanceNamePattern.MatchString(value) {
		return NewResult(field, "must start with an alphanumeric and contain only alphanumerics, dots, dashes and underscores", ErrInvalidFormat)
	}
	return nil
}

// Port validates a port number. Zero is allowed and means "pick any port".
func Port(field string, value int) error {
	if value < 0 || value > 65535 {
		return NewResult(field, "must be between 0 and 65535", ErrOutOfRange)
	}
	return nil
}

// MTU validates a tunnel MTU. Zero is allowed and means "use the default".
func MTU(field string, value int) error {
	if value == 0 {
		return nil
	}
	if value < MinMTU || value > MaxMTU {
		return NewResult(field, fmt.Sprintf("must be between %d and %d", MinMTU, MaxMTU), ErrOutOfRange)
	}
	return nil
}

// Address validates an IP address in string form.
func Address(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, err := netip.ParseAddr(value); err != nil {
		return NewResult(field, "must be a valid IP address", ErrInvalidFormat)
	}
	return nil
}

// CIDR validates a network prefix in CIDR notation.
func CIDR(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	if _, err := netip.ParsePrefix(value); err != nil {
		return NewResult(field, "must be a valid CIDR prefix", ErrInvalidFormat)
	}
	return nil
}

// HostPort validates a "host:port" endpoint string.
func HostPort(field, value string) error {
	if err := Required(field, value); err != nil {
		return err
	}
	host, port, err := net.SplitHostPort(value)
	if err != nil || host == "" || port == "" {
		return NewResult(field, "must be a valid host:port endpoint", ErrInvalidFormat)
	}
	return nil
}
