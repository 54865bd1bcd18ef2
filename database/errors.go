package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"gorm.io/gorm"
)

// DBError carries the repository operation that failed
type DBError struct {
	Operation string
	Err       error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("database error in %s: %v", e.Operation, e.Err)
}

func (e *DBError) Unwrap() error { return e.Err }

// NotFoundError is returned when a tenant-scoped row does not exist
type NotFoundError struct {
	Resource string
	ID       any
}

func (e *NotFoundError) Error() string {
	if e.ID == nil {
		return e.Resource + " not found"
	}
	return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
}

// ValidationError rejects a request field before it reaches the database.
// Handlers answer it with 400.
type ValidationError struct {
	Field  string
	Reason string
	Value  any
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("validation failed for field '%s': %s", e.Field, e.Reason)
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	return msg
}

// WrapDBError tags err with the operation name. gorm's record-not-found
// becomes a NotFoundError so callers only check one kind. nil stays nil.
func WrapDBError(operation string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &NotFoundError{Resource: operation}
	}
	return &DBError{Operation: operation, Err: err}
}

// NewNotFoundErrorWithID reports a missing resource by id
func NewNotFoundErrorWithID(resource string, id any) error {
	return &NotFoundError{Resource: resource, ID: id}
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NewValidationErrorWithValue echoes the offending value in the message
func NewValidationErrorWithValue(field, reason string, value any) error {
	return &ValidationError{Field: field, Reason: reason, Value: value}
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransient reports errors worth retrying: dropped connections and timeouts.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
