package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrConflict is returned when a write violates a uniqueness constraint
type ErrConflict struct {
	Resource string
	Field    string
	Value    string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
}

// ErrInvalidStateTransition is returned when an operation is not allowed
// from the record's current state
type ErrInvalidStateTransition struct {
	From   fmt.Stringer
	To     fmt.Stringer
	Reason string
}

func (e *ErrInvalidStateTransition) Error() string {
	msg := fmt.Sprintf("invalid state transition from %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ErrConcurrentUpdate is returned when a record changed between being read
// and being written back
type ErrConcurrentUpdate struct {
	Resource string
	ID       string
}

func (e *ErrConcurrentUpdate) Error() string {
	return fmt.Sprintf("%s %s was modified concurrently", e.Resource, e.ID)
}

// NetworkError wraps transport failures and timeouts talking to the supplier
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError is returned when the supplier session cannot be established
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("supplier authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "supplier authentication failed: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// RateLimitError is returned when the supplier answered HTTP 429
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("supplier rate limit exceeded, retry after %s", e.RetryAfter)
}

// APIError is a business-level rejection reported in the supplier envelope.
// Transient marks errors a caller may retry without changing the request.
type APIError struct {
	Code      int
	Message   string
	Transient bool
}

func (e *APIError) Error() string {
	return fmt.Sprintf("supplier API error %d: %s", e.Code, e.Message)
}

// NoEligibleItemsError is returned when a local order has no line that can
// be fulfilled by the supplier
type NoEligibleItemsError struct {
	LocalOrderID string
}

func (e *NoEligibleItemsError) Error() string {
	return fmt.Sprintf("local order %s has no supplier-fulfilled items with a product mapping", e.LocalOrderID)
}

// MappingNotFoundError is returned when a notification references a supplier
// order or product that has no local record
type MappingNotFoundError struct {
	Kind string
	Key  string
}

func (e *MappingNotFoundError) Error() string {
	return fmt.Sprintf("no local %s mapped to supplier id %q", e.Kind, e.Key)
}

// IsRetryable reports whether err is worth retrying with the same request
func IsRetryable(err error) bool {
	var netErr *NetworkError
	var authErr *AuthError
	var rateErr *RateLimitError
	var apiErr *APIError
	switch {
	case stderrors.As(err, &netErr), stderrors.As(err, &authErr), stderrors.As(err, &rateErr):
		return true
	case stderrors.As(err, &apiErr):
		return apiErr.Transient
	default:
		return false
	}
}

// IsNotFound reports whether err is an ErrNotFound
func IsNotFound(err error) bool {
	var nf *ErrNotFound
	return stderrors.As(err, &nf)
}

// IsConflict reports whether err is an ErrConflict
func IsConflict(err error) bool {
	var c *ErrConflict
	return stderrors.As(err, &c)
}

// IsConcurrentUpdate reports whether err is an ErrConcurrentUpdate
func IsConcurrentUpdate(err error) bool {
	var c *ErrConcurrentUpdate
	return stderrors.As(err, &c)
}

// IsSupplierError reports whether err originated from talking to the supplier
func IsSupplierError(err error) bool {
	var netErr *NetworkError
	var authErr *AuthError
	var rateErr *RateLimitError
	var apiErr *APIError
	return stderrors.As(err, &netErr) || stderrors.As(err, &authErr) ||
		stderrors.As(err, &rateErr) || stderrors.As(err, &apiErr)
}

// IsMappingNotFound reports whether err is a MappingNotFoundError
func IsMappingNotFound(err error) bool {
	var m *MappingNotFoundError
	return stderrors.As(err, &m)
}
