// Package errors provides the coded error type used across vsupdater.
//
// Every failure the updater can surface to an operator carries a stable
// ErrorCode so callers (and tests) can branch on the failure class without
// matching message text.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

const (
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"

	// Remote side
	ErrRemoteUnavailable ErrorCode = "REMOTE_UNAVAILABLE"
	ErrVersionNotFound   ErrorCode = "VERSION_NOT_FOUND"
	ErrDownloadFailed    ErrorCode = "DOWNLOAD_FAILED"

	// Local installation
	ErrNotInstalled        ErrorCode = "NOT_INSTALLED"
	ErrInstallationMissing ErrorCode = "INSTALLATION_MISSING"
	ErrDataPathNotFound    ErrorCode = "DATA_PATH_NOT_FOUND"
	ErrWorldFileMissing    ErrorCode = "WORLD_FILE_MISSING"

	// Update policy and transaction
	ErrUnsafeUpgradeBlocked    ErrorCode = "UNSAFE_UPGRADE_BLOCKED"
	ErrServiceControlFailed    ErrorCode = "SERVICE_CONTROL_FAILED"
	ErrArchiveExtractionFailed ErrorCode = "ARCHIVE_EXTRACTION_FAILED"
	ErrPatchFailed             ErrorCode = "PATCH_FAILED"
	ErrRollbackFailed          ErrorCode = "ROLLBACK_FAILED"

	// Tool plumbing
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"
	ErrLocked      ErrorCode = "LOCKED"
)

// Error represents a structured error with code and details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	var targetErr *Error
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new Error with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error. Returns nil when err is nil.
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	e := New(code, message)
	e.Wrapped = err
	return e
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if any error in the chain has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	return errors.Is(err, &Error{Code: code})
}

// GetErrorCode returns the outermost error code, or ErrUnknown
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrUnknown
}

// GetErrorDetails returns the details of the outermost *Error, or nil
func GetErrorDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// SeverityCritical is the rank of failures that left the installation in
// an unknown state.
const SeverityCritical = 4

// severity ranks codes for reporting. Anything not listed ranks 1.
var severity = map[ErrorCode]int{
	ErrUnknown:              0,
	ErrUnsafeUpgradeBlocked: 1,
	ErrServiceControlFailed: 2,
	ErrInternal:             3,
	ErrRollbackFailed:       SeverityCritical,
}

// Severity returns the highest severity rank found anywhere in err's tree,
// including every branch of a joined error. ROLLBACK_FAILED ranks highest:
// nothing further can be recovered automatically.
func Severity(err error) int {
	if err == nil {
		return -1
	}
	rank := 1
	if e, ok := err.(*Error); ok {
		if r, found := severity[e.Code]; found {
			rank = r
		}
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			if r := Severity(child); r > rank {
				rank = r
			}
		}
	case interface{ Unwrap() error }:
		if r := Severity(u.Unwrap()); r > rank {
			rank = r
		}
	}
	return rank
}

// Describe renders err with every detail of every coded error in its chain.
// Used for the most verbose failure report.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var b strings.Builder
	describe(&b, err, 0)
	return strings.TrimRight(b.String(), "\n")
}

func describe(b *strings.Builder, err error, depth int) {
	indent := strings.Repeat("  ", depth)
	if e, ok := err.(*Error); ok {
		fmt.Fprintf(b, "%s[%s] %s\n", indent, e.Code, e.Message)
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "%s  %s: %v\n", indent, k, e.Details[k])
		}
		if e.Wrapped != nil {
			describe(b, e.Wrapped, depth+1)
		}
		return
	}
	switch u := err.(type) {
	case interface{ Unwrap() []error }:
		for _, child := range u.Unwrap() {
			describe(b, child, depth)
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, err.Error())
	}
}
