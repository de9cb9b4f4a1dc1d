package sync

import (
	"context"
	"errors"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"calsync/internal/storage"
)

// merger folds downloaded remote changes into the event store. It runs
// single-goroutine (the merge phase is serialized) so uploads never race
// against a stale read.
type merger struct {
	events   storage.EventStore
	resolver *Resolver
}

// apply merges one remote change. Repeated applications of the same change
// set are idempotent: items are matched by RemoteID first, then by UID.
func (m *merger) apply(ctx context.Context, cal domain.Calendar, remote provider.RemoteEvent, res *domain.SyncResult, now time.Time) error {
	local, err := m.lookup(ctx, cal.ID, remote)
	if err != nil {
		return err
	}

	if remote.Cancelled {
		return m.applyDeletion(ctx, local, remote, res)
	}

	if local == nil {
		ev := &domain.CalendarEvent{
			CalendarID: cal.ID,
			Provider:   cal.Provider,
			CreatedAt:  remote.CreatedAt,
			UpdatedAt:  remote.LastModified(),
		}
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = now
		}
		setContent(ev, remote)
		setBookkeeping(ev, remote, now)
		if err := m.events.Insert(ctx, ev); err != nil {
			return err
		}
		res.Inserted++
		return nil
	}

	// Unchanged since the last pull and no pending local edit: no-op.
	if !local.NeedsSync && local.ETag != "" && local.ETag == remote.ETag {
		return nil
	}

	if local.NeedsSync {
		res.Conflicts++
		if m.resolver.Resolve(local, remote) == KeepLocal {
			// Local wins but adopts the remote identity and ETag, so the
			// pending push replaces the version it knowingly beat.
			local.RemoteID = remote.RemoteID
			if local.UID == "" {
				local.UID = remote.UID
			}
			local.ETag = remote.ETag
			return m.events.Update(ctx, local)
		}
		// Remote wins: local edits (including a pending delete) are
		// overwritten and the event is no longer dirty.
		local.Deleted = false
	}

	setContent(local, remote)
	setBookkeeping(local, remote, now)
	local.UpdatedAt = remote.LastModified()
	if err := m.events.Update(ctx, local); err != nil {
		return err
	}
	res.Updated++
	return nil
}

func (m *merger) applyDeletion(ctx context.Context, local *domain.CalendarEvent, remote provider.RemoteEvent, res *domain.SyncResult) error {
	if local == nil {
		return nil
	}

	if local.NeedsSync && !local.Deleted {
		res.Conflicts++
		if m.resolver.Resolve(local, remote) == KeepLocal {
			// The remote copy is gone; strip the remote identity so the
			// pending push recreates the resource.
			local.RemoteID = ""
			local.ETag = ""
			return m.events.Update(ctx, local)
		}
	}

	if err := m.events.Remove(ctx, local.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	res.Deleted++
	return nil
}

func (m *merger) lookup(ctx context.Context, calendarID string, remote provider.RemoteEvent) (*domain.CalendarEvent, error) {
	local, err := m.events.GetByRemoteID(ctx, calendarID, remote.RemoteID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	local, err = m.events.GetByUID(ctx, calendarID, remote.UID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	return nil, nil
}

func setContent(ev *domain.CalendarEvent, remote provider.RemoteEvent) {
	ev.Title = remote.Title
	ev.Description = remote.Description
	ev.Location = remote.Location
	ev.Start = remote.Start
	ev.End = remote.End
	ev.AllDay = remote.AllDay
	ev.RRule = remote.RRule
	ev.Categories = remote.Categories
}

func setBookkeeping(ev *domain.CalendarEvent, remote provider.RemoteEvent, now time.Time) {
	ev.RemoteID = remote.RemoteID
	if remote.UID != "" {
		ev.UID = remote.UID
	}
	ev.ETag = remote.ETag
	ev.LastSyncedAt = now
	ev.NeedsSync = false
	ev.Deleted = false
}
