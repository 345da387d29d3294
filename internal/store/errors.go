package store

import (
	"errors"
	"fmt"
)

// Error is a persistence failure surfaced to callers.
//
// Error carries a Code so callers can distinguish constraint violations
// from infrastructure failures without depending on a backend.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes persistence errors.
type ErrorCode string

const (
	// ErrCodeConstraintViolation indicates a unique or foreign-key constraint failed.
	ErrCodeConstraintViolation ErrorCode = "CONSTRAINT_VIOLATION"

	// ErrCodeEngineUnavailable indicates the relational engine could not be initialized.
	ErrCodeEngineUnavailable ErrorCode = "ENGINE_UNAVAILABLE"

	// ErrCodeCorruptSnapshot indicates a stored snapshot could not be decoded.
	ErrCodeCorruptSnapshot ErrorCode = "CORRUPT_SNAPSHOT"

	// ErrCodeStorageWriteFailure indicates a snapshot could not be saved.
	ErrCodeStorageWriteFailure ErrorCode = "STORAGE_WRITE_FAILURE"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewConstraintError creates an Error for a failed constraint.
func NewConstraintError(message string, cause error) *Error {
	return &Error{Code: ErrCodeConstraintViolation, Message: message, Err: cause}
}

// NewEngineUnavailableError creates an Error for relational init failure.
func NewEngineUnavailableError(cause error) *Error {
	return &Error{Code: ErrCodeEngineUnavailable, Message: "relational engine unavailable", Err: cause}
}

// NewCorruptSnapshotError creates an Error for an undecodable snapshot.
func NewCorruptSnapshotError(key string, cause error) *Error {
	return &Error{Code: ErrCodeCorruptSnapshot, Message: fmt.Sprintf("snapshot %q is corrupt", key), Err: cause}
}

// NewStorageWriteError creates an Error for a failed snapshot save.
func NewStorageWriteError(key string, cause error) *Error {
	return &Error{Code: ErrCodeStorageWriteFailure, Message: fmt.Sprintf("saving %q", key), Err: cause}
}

// CodeOf returns the ErrorCode of err, or "" if err is not an *Error.
// Uses errors.As to handle wrapped errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsConstraintViolation returns true if err is a constraint violation.
func IsConstraintViolation(err error) bool {
	return CodeOf(err) == ErrCodeConstraintViolation
}

// IsEngineUnavailable returns true if err reports an unavailable engine.
func IsEngineUnavailable(err error) bool {
	return CodeOf(err) == ErrCodeEngineUnavailable
}

// IsCorruptSnapshot returns true if err reports an undecodable snapshot.
func IsCorruptSnapshot(err error) bool {
	return CodeOf(err) == ErrCodeCorruptSnapshot
}
