package core

// errors.go defines the error kinds shared by the service, the store
// adapters and the API layer.
//
// Every typed error matches its sentinel with errors.Is, so callers can
// branch on the kind without knowing the concrete type:
//
//	if errors.Is(err, core.ErrInvalidState) { ... }
//
// Store adapters translate driver errors into these kinds; nothing above
// the store layer inspects driver error codes.

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/variant"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidState        = errors.New("invalid state")
	ErrDuplicateKey        = errors.New("duplicate key")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrNotFound            = errors.New("not found")

	// ErrUnparseableVariant is a degraded state, never returned by an
	// operation. Reports use it to attribute rows with no weight.
	ErrUnparseableVariant = variant.ErrUnparseable
)

// ValidationError reports a missing or malformed field.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidStateError reports an operation that the record's current status
// does not allow.
type InvalidStateError struct {
	ID     uuid.UUID
	Status Status
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s record %s with status %s", e.Op, e.ID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// DuplicateKeyError reports a canonical insert that collided with an
// existing product key.
type DuplicateKeyError struct {
	Key ProductKey
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate key: product %s already exists", e.Key)
}

func (e *DuplicateKeyError) Is(target error) bool { return target == ErrDuplicateKey }

// UpstreamError reports an unreachable dependency. It is always retryable.
type UpstreamError struct {
	Dependency string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("upstream unavailable: %s", e.Dependency)
	}
	return fmt.Sprintf("upstream unavailable: %s: %v", e.Dependency, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }

// Retryable reports whether the caller may retry the same request.
func (e *UpstreamError) Retryable() bool { return true }

// NotFoundError reports a staging record that does not exist.
type NotFoundError struct {
	ID uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: staging record %s", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Upstream wraps err as an UpstreamError for dependency unless it already
// carries a kind the caller can act on.
func Upstream(dependency string, err error) error {
	if err == nil {
		return nil
	}
	if isKinded(err) {
		return err
	}
	return &UpstreamError{Dependency: dependency, Err: err}
}

// IsRetryable reports whether err is worth retrying unchanged.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return errors.Is(err, ErrTooManyIngests)
}

func isKinded(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, ErrUpstreamUnavailable) ||
		errors.Is(err, ErrNotFound)
}
