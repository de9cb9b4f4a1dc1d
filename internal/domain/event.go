package domain

import (
	"time"
)

// ProviderType tags the backend a calendar or event belongs to.
type ProviderType string

const (
	ProviderLocal  ProviderType = "local"
	ProviderRest   ProviderType = "rest"
	ProviderCalDAV ProviderType = "caldav"
)

// CalendarEvent is the provider-agnostic event representation together with
// its sync bookkeeping. RemoteID and ETag are set only after the event has
// been round-tripped to a remote provider at least once.
type CalendarEvent struct {
	ID       string
	RemoteID string
	UID      string

	Title       string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	CalendarID string
	Provider   ProviderType

	// Carried verbatim, never expanded.
	RRule      string
	Categories []string

	ETag         string
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Deleted      bool
	NeedsSync    bool
}

// Touch records a local mutation: the copy is now strictly ahead of the
// last-known-synced remote state.
func (e *CalendarEvent) Touch(now time.Time) {
	e.UpdatedAt = now
	e.NeedsSync = true
}

// MarkSynced records a successful round trip to the remote provider.
func (e *CalendarEvent) MarkSynced(remoteID, etag string, now time.Time) {
	if remoteID != "" {
		e.RemoteID = remoteID
	}
	if etag != "" {
		e.ETag = etag
	}
	e.LastSyncedAt = now
	e.NeedsSync = false
}

// MarkDeleted soft-deletes the event. Events that never reached a remote are
// eligible for immediate hard removal instead of an upload tombstone.
func (e *CalendarEvent) MarkDeleted(now time.Time) {
	e.Deleted = true
	e.UpdatedAt = now
	e.NeedsSync = true
}

// DeletePending reports whether a local deletion still awaits remote
// confirmation.
func (e *CalendarEvent) DeletePending() bool {
	return e.Deleted && e.NeedsSync
}

// Synced reports whether the event has been round-tripped at least once.
func (e *CalendarEvent) Synced() bool {
	return e.RemoteID != ""
}

// Clone returns a deep copy.
func (e *CalendarEvent) Clone() *CalendarEvent {
	cp := *e
	if e.Categories != nil {
		cp.Categories = append([]string(nil), e.Categories...)
	}
	return &cp
}
