// Package storage defines the narrow persistence interfaces the sync engine
// consumes. The engine never depends on a concrete backend.
package storage

import (
	"context"
	"errors"
	"time"

	"calsync/internal/domain"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("storage: not found")

// EventStore persists calendars and events. All writes must be serialized by
// the implementation (single-writer discipline); reads may be concurrent.
type EventStore interface {
	UpsertCalendar(ctx context.Context, cal domain.Calendar) error
	Calendars(ctx context.Context) ([]domain.Calendar, error)

	Insert(ctx context.Context, event *domain.CalendarEvent) error
	Update(ctx context.Context, event *domain.CalendarEvent) error
	// Remove hard-deletes an event. Used only once a remote deletion is
	// confirmed and no local edit is pending.
	Remove(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*domain.CalendarEvent, error)
	GetByRemoteID(ctx context.Context, calendarID, remoteID string) (*domain.CalendarEvent, error)
	GetByUID(ctx context.Context, calendarID, uid string) (*domain.CalendarEvent, error)

	// GetDirty returns events with NeedsSync=true and Deleted=false.
	GetDirty(ctx context.Context, calendarID string) ([]*domain.CalendarEvent, error)
	// GetDirtyDeleted returns soft-deleted events awaiting remote deletion.
	GetDirtyDeleted(ctx context.Context, calendarID string) ([]*domain.CalendarEvent, error)
}

// TokenStore persists per-calendar sync cursors. An absent token forces a
// range-bounded resync for that calendar.
type TokenStore interface {
	SyncToken(ctx context.Context, calendarKey string) (string, error)
	SaveSyncToken(ctx context.Context, calendarKey, token string) error
	ClearSyncToken(ctx context.Context, calendarKey string) error

	LastSyncAt(ctx context.Context, calendarKey string) (time.Time, error)
	SetLastSyncAt(ctx context.Context, calendarKey string, t time.Time) error
}
