// Package memory implements the storage interfaces on mutex-guarded maps.
// It backs tests and deployments that do not need durable local state.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"calsync/internal/domain"
	"calsync/internal/storage"
	"github.com/google/uuid"
)

// Store implements storage.EventStore and storage.TokenStore.
type Store struct {
	mu        sync.RWMutex
	calendars map[string]domain.Calendar
	events    map[string]*domain.CalendarEvent
	tokens    map[string]string
	lastSync  map[string]time.Time
}

// New -.
func New() *Store {
	return &Store{
		calendars: make(map[string]domain.Calendar),
		events:    make(map[string]*domain.CalendarEvent),
		tokens:    make(map[string]string),
		lastSync:  make(map[string]time.Time),
	}
}

func (s *Store) UpsertCalendar(_ context.Context, cal domain.Calendar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calendars[cal.Key()] = cal
	return nil
}

func (s *Store) Calendars(_ context.Context) ([]domain.Calendar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cals := make([]domain.Calendar, 0, len(s.calendars))
	for _, cal := range s.calendars {
		cals = append(cals, cal)
	}
	sort.Slice(cals, func(i, j int) bool { return cals[i].Key() < cals[j].Key() })
	return cals, nil
}

func (s *Store) Insert(_ context.Context, event *domain.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *Store) Update(_ context.Context, event *domain.CalendarEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[event.ID]; !ok {
		return storage.ErrNotFound
	}
	s.events[event.ID] = event.Clone()
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *Store) GetByID(_ context.Context, id string) (*domain.CalendarEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.events[id]; ok {
		return e.Clone(), nil
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetByRemoteID(_ context.Context, calendarID, remoteID string) (*domain.CalendarEvent, error) {
	if remoteID == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.CalendarID == calendarID && e.RemoteID == remoteID {
			return e.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetByUID(_ context.Context, calendarID, uid string) (*domain.CalendarEvent, error) {
	if uid == "" {
		return nil, storage.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.events {
		if e.CalendarID == calendarID && e.UID == uid {
			return e.Clone(), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) GetDirty(_ context.Context, calendarID string) ([]*domain.CalendarEvent, error) {
	return s.filter(func(e *domain.CalendarEvent) bool {
		return e.CalendarID == calendarID && e.NeedsSync && !e.Deleted
	}), nil
}

func (s *Store) GetDirtyDeleted(_ context.Context, calendarID string) ([]*domain.CalendarEvent, error) {
	return s.filter(func(e *domain.CalendarEvent) bool {
		return e.CalendarID == calendarID && e.NeedsSync && e.Deleted
	}), nil
}

func (s *Store) filter(keep func(*domain.CalendarEvent) bool) []*domain.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CalendarEvent
	for _, e := range s.events {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SyncToken(_ context.Context, calendarKey string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tokens[calendarKey], nil
}

func (s *Store) SaveSyncToken(_ context.Context, calendarKey, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[calendarKey] = token
	return nil
}

func (s *Store) ClearSyncToken(_ context.Context, calendarKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tokens, calendarKey)
	return nil
}

func (s *Store) LastSyncAt(_ context.Context, calendarKey string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSync[calendarKey], nil
}

func (s *Store) SetLastSyncAt(_ context.Context, calendarKey string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSync[calendarKey] = t
	return nil
}
