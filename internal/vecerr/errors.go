// Package vecerr defines the error taxonomy shared by the index, pool and
// store packages.
//
// Every error produced by this module wraps exactly one kind sentinel, so
// callers classify failures with errors.Is:
//
//	if errors.Is(err, vecerr.ErrMissingID) {
//	    // record was not there
//	}
//
// Structured types (FieldError, MissingIDError, DimensionError,
// DatastoreError, SerializationError) carry the details and unwrap to their
// kind.
package vecerr

import (
	"errors"
	"fmt"
)

// Kind sentinels.
var (
	// ErrConfiguration indicates invalid configuration or builder input.
	ErrConfiguration = errors.New("configuration error")

	// ErrConnection indicates a failure to obtain or use a store connection.
	ErrConnection = errors.New("connection error")

	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("validation error")

	// ErrMissingID indicates the targeted record does not exist.
	ErrMissingID = errors.New("missing id")

	// ErrDatastore indicates the store rejected or failed a request.
	ErrDatastore = errors.New("datastore error")

	// ErrSerialization indicates a stored payload could not be decoded.
	ErrSerialization = errors.New("serialization error")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("dimension mismatch")
)

// Specific errors that belong to one of the kinds above.
var (
	// ErrDuplicateID is returned when creating a record whose id already exists.
	ErrDuplicateID = fmt.Errorf("%w: duplicate id", ErrValidation)

	// ErrPoolTimeout is returned when no pool slot frees up within the timeout.
	ErrPoolTimeout = fmt.Errorf("%w: timed out waiting for a pooled connection", ErrConnection)

	// ErrPoolClosed is returned by pool operations after Close.
	ErrPoolClosed = fmt.Errorf("%w: pool is closed", ErrConnection)
)

// FieldError reports an invalid configuration or input field.
type FieldError struct {
	Field  string
	Reason string
	kind   error
}

// Config returns a configuration FieldError.
func Config(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrConfiguration}
}

// Invalid returns a validation FieldError.
func Invalid(field, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Reason: fmt.Sprintf(format, args...), kind: ErrValidation}
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.kind, e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error { return e.kind }

// MissingIDError reports a record id absent from a table.
type MissingIDError struct {
	Table string
	ID    string
}

func (e *MissingIDError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("missing id %q", e.ID)
	}
	return fmt.Sprintf("missing id %q in table %q", e.ID, e.Table)
}

func (e *MissingIDError) Unwrap() error { return ErrMissingID }

// DimensionError reports a vector whose length differs from the index.
type DimensionError struct {
	Expected int
	Actual   int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionError) Unwrap() error { return ErrDimensionMismatch }

// DatastoreError wraps a failure reported by the underlying store.
type DatastoreError struct {
	Op        string
	Err       error
	Transient bool
}

// Datastore wraps err as a non-transient store failure for op.
func Datastore(op string, err error) *DatastoreError {
	return &DatastoreError{Op: op, Err: err}
}

// Transient wraps err as a store failure that may succeed on retry.
func Transient(op string, err error) *DatastoreError {
	return &DatastoreError{Op: op, Err: err, Transient: true}
}

func (e *DatastoreError) Error() string {
	return fmt.Sprintf("datastore error: %s: %v", e.Op, e.Err)
}

// Unwrap exposes both the kind and the cause.
func (e *DatastoreError) Unwrap() []error { return []error{ErrDatastore, e.Err} }

// SerializationError reports a stored payload that failed to decode.
type SerializationError struct {
	ID  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("serialization error: record %q: %v", e.ID, e.Err)
}

func (e *SerializationError) Unwrap() []error { return []error{ErrSerialization, e.Err} }

// Connection wraps err as a connection failure.
func Connection(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrConnection, op, err)
}

// Retryable reports whether err is worth retrying: connection failures and
// transient store failures qualify, everything else does not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPoolClosed) {
		return false
	}
	if errors.Is(err, ErrConnection) {
		return true
	}
	var ds *DatastoreError
	if errors.As(err, &ds) {
		return ds.Transient
	}
	return false
}

// Kind identifies an error category.
type Kind string

// Error kinds, as reported by KindOf.
const (
	KindUnknown           Kind = "unknown"
	KindConfiguration     Kind = "configuration"
	KindConnection        Kind = "connection"
	KindValidation        Kind = "validation"
	KindDuplicateID       Kind = "duplicate_id"
	KindMissingID         Kind = "missing_id"
	KindDatastore         Kind = "datastore"
	KindSerialization     Kind = "serialization"
	KindDimensionMismatch Kind = "dimension_mismatch"
)

// KindOf classifies err. ErrDuplicateID is reported separately from other
// validation failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrDuplicateID):
		return KindDuplicateID
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrMissingID):
		return KindMissingID
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrSerialization):
		return KindSerialization
	case errors.Is(err, ErrConnection):
		return KindConnection
	case errors.Is(err, ErrDatastore):
		return KindDatastore
	default:
		return KindUnknown
	}
}
