// Package errs defines the error taxonomy shared by the store, the typed
// tables and the query helpers.
//
// Four kinds exist and every error surfaced by the data-access layer is one
// of them (possibly wrapped):
//
//   - ValidationError: a record failed its own checks before any write.
//   - NotFoundError: get/update/delete named an unknown identifier.
//   - StoreFault: the storage engine failed; the driver error is kept intact.
//   - QueryError: a malformed index predicate or an unknown table.
//
// Callers distinguish them with errors.As or the Is* helpers below.
package errs

import (
	"errors"
	"fmt"
)

// ValidationError reports a record rejected before reaching the store.
type ValidationError struct {
	// Entity is the record type (e.g. "task").
	Entity string

	// Field is the offending attribute, JSON name.
	Field string

	// Message is a human-readable description.
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s.%s: %s", e.Entity, e.Field, e.Message)
	}
	return fmt.Sprintf("validation: %s: %s", e.Entity, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(entity, field, format string, args ...any) *ValidationError {
	return &ValidationError{Entity: entity, Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an identifier that does not exist in a table.
type NotFoundError struct {
	Table string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s/%s", e.Table, e.ID)
}

// FaultReason is a coarse classification of a storage engine failure.
type FaultReason string

const (
	// FaultQuota means the database or disk is full.
	FaultQuota FaultReason = "QUOTA"

	// FaultCorruption means the file is damaged or not a database.
	FaultCorruption FaultReason = "CORRUPTION"

	// FaultVersion means the stored schema cannot be opened by this build.
	FaultVersion FaultReason = "VERSION"

	// FaultIO covers every other engine failure.
	FaultIO FaultReason = "IO"
)

// StoreFault wraps a storage engine failure. Err is the driver error as
// returned, so engine diagnostics survive errors.As.
type StoreFault struct {
	Reason FaultReason
	Op     string
	Err    error
}

func (e *StoreFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store fault (%s) in %s: %v", e.Reason, e.Op, e.Err)
	}
	return fmt.Sprintf("store fault (%s) in %s", e.Reason, e.Op)
}

func (e *StoreFault) Unwrap() error {
	return e.Err
}

// QueryError reports a malformed index predicate.
type QueryError struct {
	Table   string
	Field   string
	Message string
}

func (e *QueryError) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("query %s.%s: %s", e.Table, e.Field, e.Message)
	case e.Table != "":
		return fmt.Sprintf("query %s: %s", e.Table, e.Message)
	default:
		return "query: " + e.Message
	}
}

// BadQuery builds a QueryError.
func BadQuery(table, field, format string, args ...any) *QueryError {
	return &QueryError{Table: table, Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsStoreFault reports whether err is or wraps a StoreFault.
func IsStoreFault(err error) bool {
	var sf *StoreFault
	return errors.As(err, &sf)
}

// IsQuery reports whether err is or wraps a QueryError.
func IsQuery(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}

// Kind names the category of err for CLI and trace output.
// Returns "" for errors outside the taxonomy.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsQuery(err):
		return "query"
	case IsStoreFault(err):
		return "store_fault"
	default:
		return ""
	}
}
