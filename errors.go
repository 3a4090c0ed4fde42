package main

import (
	"fmt"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// RemoteError is returned when the Telegram platform rejects a call.
// Description carries the platform's own error text verbatim.
type RemoteError struct {
	Method      string
	Description string
}

func (e *RemoteError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("telegram %s: %s", e.Method, e.Description)
	}
	return fmt.Sprintf("telegram: %s", e.Description)
}

// StoreError wraps a failed database operation.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %s", e.Op, e.Err)
}

func (e *StoreError) Cause() error { return e.Err }

// ValidationError reports rejected input before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports an absent bot, announcement or similar record.
type NotFoundError struct {
	Entity string
	ID     interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func validationErr(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func notFoundErr(entity string, id interface{}) error {
	return &NotFoundError{Entity: entity, ID: id}
}

func isNotFound(err error) bool {
	if gorm.IsRecordNotFoundError(errors.Cause(err)) {
		return true
	}
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func isRemote(err error) bool {
	_, ok := errors.Cause(err).(*RemoteError)
	return ok
}

func isValidation(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}
