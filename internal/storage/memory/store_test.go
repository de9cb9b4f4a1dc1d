package memory

import (
	"context"
	"testing"
	"time"

	"calsync/internal/domain"
	"calsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_InsertAssignsID(t *testing.T) {
	ctx := context.Background()
	s := New()

	ev := &domain.CalendarEvent{UID: "u1", CalendarID: "cal"}
	require.NoError(t, s.Insert(ctx, ev))
	assert.NotEmpty(t, ev.ID)

	got, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)
}

func TestStore_CloneIsolation(t *testing.T) {
	ctx := context.Background()
	s := New()

	ev := &domain.CalendarEvent{UID: "u1", CalendarID: "cal", Title: "original"}
	require.NoError(t, s.Insert(ctx, ev))

	// Mutating the caller's copy must not leak into the store.
	ev.Title = "mutated"

	got, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Title)

	// And mutating a read result must not either.
	got.Title = "mutated again"
	again, err := s.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Title)
}

func TestStore_UpdateUnknownEvent(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), &domain.CalendarEvent{ID: "ghost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_LookupByRemoteIDAndUID(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.Insert(ctx, &domain.CalendarEvent{
		UID: "u1", RemoteID: "r1", CalendarID: "cal-a",
	}))

	got, err := s.GetByRemoteID(ctx, "cal-a", "r1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)

	_, err = s.GetByRemoteID(ctx, "cal-b", "r1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "lookups are calendar-scoped")

	_, err = s.GetByRemoteID(ctx, "cal-a", "")
	assert.ErrorIs(t, err, storage.ErrNotFound, "empty remote id never matches")

	got, err = s.GetByUID(ctx, "cal-a", "u1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.RemoteID)

	_, err = s.GetByUID(ctx, "cal-a", "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_DirtyQueries(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	clean := &domain.CalendarEvent{UID: "clean", CalendarID: "cal"}
	require.NoError(t, s.Insert(ctx, clean))

	edited := &domain.CalendarEvent{UID: "edited", CalendarID: "cal"}
	edited.Touch(now)
	require.NoError(t, s.Insert(ctx, edited))

	deleted := &domain.CalendarEvent{UID: "deleted", CalendarID: "cal", RemoteID: "r1"}
	deleted.MarkDeleted(now)
	require.NoError(t, s.Insert(ctx, deleted))

	other := &domain.CalendarEvent{UID: "other", CalendarID: "other-cal"}
	other.Touch(now)
	require.NoError(t, s.Insert(ctx, other))

	dirty, err := s.GetDirty(ctx, "cal")
	require.NoError(t, err)
	require.Len(t, dirty, 1)
	assert.Equal(t, "edited", dirty[0].UID)

	pending, err := s.GetDirtyDeleted(ctx, "cal")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "deleted", pending[0].UID)
}

func TestStore_UpsertCalendar(t *testing.T) {
	ctx := context.Background()
	s := New()

	cal := domain.Calendar{ID: "c1", Name: "Work", Provider: domain.ProviderRest, Visible: true}
	require.NoError(t, s.UpsertCalendar(ctx, cal))

	cal.Name = "Work (renamed)"
	require.NoError(t, s.UpsertCalendar(ctx, cal))

	cals, err := s.Calendars(ctx)
	require.NoError(t, err)
	require.Len(t, cals, 1)
	assert.Equal(t, "Work (renamed)", cals[0].Name)
}

func TestStore_TokenLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	tok, err := s.SyncToken(ctx, "rest:c1")
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, s.SaveSyncToken(ctx, "rest:c1", "tok-1"))
	tok, err = s.SyncToken(ctx, "rest:c1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	require.NoError(t, s.ClearSyncToken(ctx, "rest:c1"))
	tok, err = s.SyncToken(ctx, "rest:c1")
	require.NoError(t, err)
	assert.Empty(t, tok)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSyncAt(ctx, "rest:c1", at))
	got, err := s.LastSyncAt(ctx, "rest:c1")
	require.NoError(t, err)
	assert.Equal(t, at, got)
}
