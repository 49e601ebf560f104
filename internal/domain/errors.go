package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrPollNotFound     = errors.New("poll not found")
	ErrPollExpired      = errors.New("poll has expired")
	ErrInvalidOption    = errors.New("option not found in poll")
	ErrAlreadyVoted     = errors.New("voter has already voted in this poll")
)

// StorageError wraps a failure of the persistence layer (connection loss,
// constraint violation). It maps to 5xx. It is retryable unless
// OutcomeUnknown is set.
type StorageError struct {
	Op  string
	Err error

	// OutcomeUnknown marks a failure after the write may already have been
	// applied, such as a lost commit acknowledgement.
	OutcomeUnknown bool
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError returns nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NewCommitError wraps a failed commit. Whether the transaction was applied
// is unknown, so it must not be retried.
func NewCommitError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err, OutcomeUnknown: true}
}

// IsRetryableStorageError reports whether err is a StorageError whose write
// is known not to have been applied.
func IsRetryableStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && !se.OutcomeUnknown
}

// IsOutcomeUnknown reports whether err is a StorageError raised after the
// write may have been applied.
func IsOutcomeUnknown(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.OutcomeUnknown
}

// IsStorageError reports whether err carries a StorageError anywhere in its chain.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
