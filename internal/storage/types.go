package storage

import "errors"

// Common storage errors returned by all backend implementations.
var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrForbidden indicates that the resource exists but belongs to a
	// different user or workspace.
	ErrForbidden = errors.New("access denied")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates that the backing store could not be
	// reached or returned an infrastructure-level failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// QueryDefaults centralizes the limits shared across vector backends.
const (
	// DefaultQueryLimit applies when a caller passes limit <= 0.
	DefaultQueryLimit = 20

	// MaxQueryLimit caps a single query's result size.
	MaxQueryLimit = 100
)

// NormalizeLimit clamps a requested result count to the allowed range.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
