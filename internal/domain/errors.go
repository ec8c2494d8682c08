// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates invalid caller input.
var ErrValidation = errors.New("validation failed")

// ErrSeatLimit indicates the tenant is already at max_seats.
var ErrSeatLimit = errors.New("seat limit exceeded")

// ErrPermissionDenied indicates the principal's role does not allow the action.
// Returned for unknown resources and actions as well, so callers cannot probe
// for valid resource names.
var ErrPermissionDenied = errors.New("permission denied")

// ErrSignatureInvalid indicates a webhook delivery failed authenticity checks.
// Terminal: the payload is never processed.
var ErrSignatureInvalid = errors.New("webhook signature invalid")

// ErrProviderUnavailable indicates a transient billing provider failure.
// Safe to retry with backoff.
var ErrProviderUnavailable = errors.New("billing provider unavailable")

// ErrProviderRejected indicates the billing provider rejected the request
// (bad price id, deleted customer). Not retried automatically; surfaced to an
// operator instead.
var ErrProviderRejected = errors.New("billing provider rejected request")
