package domain

import "fmt"

// Error types for consistent error handling across coachspace.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrForbidden indicates the caller lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates the operation conflicts with current state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrPersistence indicates a write to the key-value store failed. The
// in-memory state was not changed.
type ErrPersistence struct {
	Key string
	Err error
}

func (e *ErrPersistence) Error() string {
	return fmt.Sprintf("persist %q: %v", e.Key, e.Err)
}

func (e *ErrPersistence) Unwrap() error {
	return e.Err
}

// ErrPackageExhausted indicates a package has no units left to deduct.
type ErrPackageExhausted struct {
	PackageID string
	Used      int
	Total     int
}

func (e *ErrPackageExhausted) Error() string {
	return fmt.Sprintf("package %s exhausted: used=%d total=%d", e.PackageID, e.Used, e.Total)
}

// ErrInvalidPortalToken indicates a portal link that resolves to no usable
// access state.
type ErrInvalidPortalToken struct{}

func (e *ErrInvalidPortalToken) Error() string {
	return "invalid or expired portal link"
}

// ErrTooManyAttempts indicates the portal unlock rate limit was hit.
type ErrTooManyAttempts struct{}

func (e *ErrTooManyAttempts) Error() string {
	return "too many attempts, try again later"
}
