// Package postgres implements the storage interfaces on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calsync/internal/domain"
	"calsync/internal/storage"
	"calsync/pkg/logger"
	"calsync/pkg/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store implements storage.EventStore and storage.TokenStore on a pgx pool.
type Store struct {
	client *postgres.Postgres
	logger *logger.Logger
}

// New bootstraps the schema and returns a ready store.
func New(ctx context.Context, client *postgres.Postgres, l *logger.Logger) (*Store, error) {
	s := &Store{client: client, logger: l}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("postgres - New - migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calendars (
			key        TEXT PRIMARY KEY,
			id         TEXT NOT NULL,
			name       TEXT NOT NULL,
			color      TEXT NOT NULL DEFAULT '',
			provider   TEXT NOT NULL,
			account    TEXT NOT NULL DEFAULT '',
			ctag       TEXT NOT NULL DEFAULT '',
			visible    BOOLEAN NOT NULL DEFAULT TRUE,
			read_only  BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			id             TEXT PRIMARY KEY,
			remote_id      TEXT NOT NULL DEFAULT '',
			uid            TEXT NOT NULL DEFAULT '',
			title          TEXT NOT NULL DEFAULT '',
			description    TEXT NOT NULL DEFAULT '',
			location       TEXT NOT NULL DEFAULT '',
			start_at       TIMESTAMPTZ NOT NULL,
			end_at         TIMESTAMPTZ NOT NULL,
			all_day        BOOLEAN NOT NULL DEFAULT FALSE,
			calendar_id    TEXT NOT NULL,
			provider       TEXT NOT NULL,
			rrule          TEXT NOT NULL DEFAULT '',
			categories     TEXT[] NOT NULL DEFAULT '{}',
			etag           TEXT NOT NULL DEFAULT '',
			last_synced_at TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL,
			deleted        BOOLEAN NOT NULL DEFAULT FALSE,
			needs_sync     BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS events_remote_idx ON events (calendar_id, remote_id)`,
		`CREATE INDEX IF NOT EXISTS events_uid_idx ON events (calendar_id, uid)`,
		`CREATE INDEX IF NOT EXISTS events_dirty_idx ON events (calendar_id, needs_sync, deleted)`,
		`CREATE TABLE IF NOT EXISTS sync_state (
			calendar_key TEXT PRIMARY KEY,
			token        TEXT NOT NULL DEFAULT '',
			last_sync_at TIMESTAMPTZ
		)`,
	}

	for _, m := range migrations {
		if _, err := s.client.Pool.Exec(ctx, m); err != nil {
			return s.client.ToPgErr(err)
		}
	}
	return nil
}

func (s *Store) UpsertCalendar(ctx context.Context, cal domain.Calendar) error {
	s.logger.Debug("postgres.UpsertCalendar")

	_, err := s.client.Pool.Exec(ctx, `
		INSERT INTO calendars
			(key, id, name, color, provider, account, ctag, visible, read_only)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO UPDATE SET
			name = EXCLUDED.name,
			color = EXCLUDED.color,
			account = EXCLUDED.account,
			ctag = EXCLUDED.ctag,
			visible = EXCLUDED.visible,
			read_only = EXCLUDED.read_only
	`, cal.Key(), cal.ID, cal.Name, cal.Color, cal.Provider, cal.Account, cal.CTag, cal.Visible, cal.ReadOnly)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.UpsertCalendar", logger.Err(err))
		return err
	}
	return nil
}

func (s *Store) Calendars(ctx context.Context) ([]domain.Calendar, error) {
	s.logger.Debug("postgres.Calendars")

	rows, err := s.client.Pool.Query(ctx, `
		SELECT id, name, color, provider, account, ctag, visible, read_only
		FROM calendars
		ORDER BY key
	`)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.Calendars", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var cals []domain.Calendar
	for rows.Next() {
		var c domain.Calendar
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Provider, &c.Account, &c.CTag, &c.Visible, &c.ReadOnly); err != nil {
			return nil, s.client.ToPgErr(err)
		}
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

const eventColumns = `
	id, remote_id, uid, title, description, location, start_at, end_at, all_day,
	calendar_id, provider, rrule, categories, etag, last_synced_at, created_at,
	updated_at, deleted, needs_sync`

func (s *Store) Insert(ctx context.Context, event *domain.CalendarEvent) error {
	s.logger.Debug("postgres.Insert")

	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	_, err := s.client.Pool.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`, event.ID, event.RemoteID, event.UID, event.Title, event.Description, event.Location,
		event.Start, event.End, event.AllDay, event.CalendarID, event.Provider,
		event.RRule, event.Categories, event.ETag, nullTime(event.LastSyncedAt),
		event.CreatedAt, event.UpdatedAt, event.Deleted, event.NeedsSync)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.Insert", logger.Err(err))
		return err
	}
	return nil
}

func (s *Store) Update(ctx context.Context, event *domain.CalendarEvent) error {
	s.logger.Debug("postgres.Update")

	tag, err := s.client.Pool.Exec(ctx, `
		UPDATE events SET
			remote_id = $2, uid = $3, title = $4, description = $5, location = $6,
			start_at = $7, end_at = $8, all_day = $9, rrule = $10, categories = $11,
			etag = $12, last_synced_at = $13, updated_at = $14, deleted = $15, needs_sync = $16
		WHERE id = $1
	`, event.ID, event.RemoteID, event.UID, event.Title, event.Description, event.Location,
		event.Start, event.End, event.AllDay, event.RRule, event.Categories,
		event.ETag, nullTime(event.LastSyncedAt), event.UpdatedAt, event.Deleted, event.NeedsSync)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.Update", logger.Err(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.logger.Debug("postgres.Remove")

	tag, err := s.client.Pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.Remove", logger.Err(err))
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.CalendarEvent, error) {
	return s.getOne(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
}

func (s *Store) GetByRemoteID(ctx context.Context, calendarID, remoteID string) (*domain.CalendarEvent, error) {
	if remoteID == "" {
		return nil, storage.ErrNotFound
	}
	return s.getOne(ctx, `
		SELECT `+eventColumns+` FROM events WHERE calendar_id = $1 AND remote_id = $2
	`, calendarID, remoteID)
}

func (s *Store) GetByUID(ctx context.Context, calendarID, uid string) (*domain.CalendarEvent, error) {
	if uid == "" {
		return nil, storage.ErrNotFound
	}
	return s.getOne(ctx, `
		SELECT `+eventColumns+` FROM events WHERE calendar_id = $1 AND uid = $2
	`, calendarID, uid)
}

func (s *Store) GetDirty(ctx context.Context, calendarID string) ([]*domain.CalendarEvent, error) {
	return s.getMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE calendar_id = $1 AND needs_sync AND NOT deleted
		ORDER BY id
	`, calendarID)
}

func (s *Store) GetDirtyDeleted(ctx context.Context, calendarID string) ([]*domain.CalendarEvent, error) {
	return s.getMany(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE calendar_id = $1 AND needs_sync AND deleted
		ORDER BY id
	`, calendarID)
}

func (s *Store) getOne(ctx context.Context, sql string, args ...any) (*domain.CalendarEvent, error) {
	row := s.client.Pool.QueryRow(ctx, sql, args...)

	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.getOne", logger.Err(err))
		return nil, err
	}
	return event, nil
}

func (s *Store) getMany(ctx context.Context, sql string, args ...any) ([]*domain.CalendarEvent, error) {
	rows, err := s.client.Pool.Query(ctx, sql, args...)
	if err != nil {
		err = s.client.ToPgErr(err)
		s.logger.Error("postgres.getMany", logger.Err(err))
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CalendarEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, s.client.ToPgErr(err)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func scanEvent(row pgx.Row) (*domain.CalendarEvent, error) {
	var e domain.CalendarEvent
	var lastSynced *time.Time

	err := row.Scan(
		&e.ID, &e.RemoteID, &e.UID, &e.Title, &e.Description, &e.Location,
		&e.Start, &e.End, &e.AllDay, &e.CalendarID, &e.Provider,
		&e.RRule, &e.Categories, &e.ETag, &lastSynced,
		&e.CreatedAt, &e.UpdatedAt, &e.Deleted, &e.NeedsSync,
	)
	if err != nil {
		return nil, err
	}
	if lastSynced != nil {
		e.LastSyncedAt = *lastSynced
	}
	return &e, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (s *Store) SyncToken(ctx context.Context, calendarKey string) (string, error) {
	var token string

	err := s.client.Pool.QueryRow(ctx, `
		SELECT token FROM sync_state WHERE calendar_key = $1
	`, calendarKey).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", s.client.ToPgErr(err)
	}
	return token, nil
}

func (s *Store) SaveSyncToken(ctx context.Context, calendarKey, token string) error {
	_, err := s.client.Pool.Exec(ctx, `
		INSERT INTO sync_state (calendar_key, token)
		VALUES ($1, $2)
		ON CONFLICT (calendar_key) DO UPDATE SET token = EXCLUDED.token
	`, calendarKey, token)
	if err != nil {
		return s.client.ToPgErr(err)
	}
	return nil
}

func (s *Store) ClearSyncToken(ctx context.Context, calendarKey string) error {
	_, err := s.client.Pool.Exec(ctx, `
		UPDATE sync_state SET token = '' WHERE calendar_key = $1
	`, calendarKey)
	if err != nil {
		return s.client.ToPgErr(err)
	}
	return nil
}

func (s *Store) LastSyncAt(ctx context.Context, calendarKey string) (time.Time, error) {
	var at *time.Time

	err := s.client.Pool.QueryRow(ctx, `
		SELECT last_sync_at FROM sync_state WHERE calendar_key = $1
	`, calendarKey).Scan(&at)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, s.client.ToPgErr(err)
	}
	if at == nil {
		return time.Time{}, nil
	}
	return *at, nil
}

func (s *Store) SetLastSyncAt(ctx context.Context, calendarKey string, t time.Time) error {
	_, err := s.client.Pool.Exec(ctx, `
		INSERT INTO sync_state (calendar_key, last_sync_at)
		VALUES ($1, $2)
		ON CONFLICT (calendar_key) DO UPDATE SET last_sync_at = EXCLUDED.last_sync_at
	`, calendarKey, t)
	if err != nil {
		return s.client.ToPgErr(err)
	}
	return nil
}
