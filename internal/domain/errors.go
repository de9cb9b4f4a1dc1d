package domain

import (
	"errors"
	"fmt"
)

// ErrSyncInProgress is returned when a sync trigger arrives while a run is
// already active. The trigger is coalesced into a no-op; callers observe the
// active run through SyncState instead.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrorCategory classifies every failure the engine can surface. Raw
// transport errors never cross an adapter boundary untyped.
type ErrorCategory string

const (
	CategoryAuth               ErrorCategory = "auth"
	CategoryNetwork            ErrorCategory = "network"
	CategoryRateLimited        ErrorCategory = "rate_limited"
	CategoryTokenExpired       ErrorCategory = "token_expired"
	CategoryPreconditionFailed ErrorCategory = "precondition_failed"
	CategoryLocked             ErrorCategory = "locked"
	CategoryNotFound           ErrorCategory = "not_found"
	CategoryServer             ErrorCategory = "server"
	CategoryParse              ErrorCategory = "parse"
)

// Retryable reports whether a failure of this category may succeed on a
// later attempt without user intervention.
func (c ErrorCategory) Retryable() bool {
	switch c {
	case CategoryNetwork, CategoryRateLimited, CategoryLocked, CategoryServer:
		return true
	default:
		return false
	}
}

// Fatal reports whether the category aborts the whole run. Only credential
// failures do: every other category is isolated per calendar or per item.
func (c ErrorCategory) Fatal() bool {
	return c == CategoryAuth
}

// SyncError is a typed, category-tagged error. CalendarID and ItemUID are
// filled when the failure is scoped to a single calendar or item.
type SyncError struct {
	Category   ErrorCategory
	CalendarID string
	ItemUID    string
	Message    string
	Err        error
}

func (e *SyncError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.CalendarID != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Category, e.CalendarID, msg)
	}
	return fmt.Sprintf("%s: %s", e.Category, msg)
}

func (e *SyncError) Unwrap() error { return e.Err }

// NewSyncError -.
func NewSyncError(category ErrorCategory, message string, err error) *SyncError {
	return &SyncError{Category: category, Message: message, Err: err}
}

// CategoryOf extracts the category from err, defaulting to CategoryNetwork
// for untyped (transport-level) failures.
func CategoryOf(err error) ErrorCategory {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Category
	}
	return CategoryNetwork
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, category ErrorCategory) bool {
	return CategoryOf(err) == category
}
