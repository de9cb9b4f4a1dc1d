package rest

import (
	"testing"
	"time"

	"calsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRemote_TimedEvent(t *testing.T) {
	m := newMapper("UTC")

	ev, err := m.toRemote(eventDTO{
		ID:          "evt-1",
		ETag:        `"123"`,
		Summary:     "Design review",
		Description: "bring sketches",
		Location:    "room 4",
		ICalUID:     "uid-1@example.com",
		Start:       &eventDateTime{DateTime: "2026-03-02T10:00:00Z"},
		End:         &eventDateTime{DateTime: "2026-03-02T11:30:00Z"},
		Created:     "2026-02-01T08:00:00Z",
		Updated:     "2026-03-01T09:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "evt-1", ev.RemoteID)
	assert.Equal(t, "uid-1@example.com", ev.UID)
	assert.Equal(t, "Design review", ev.Title)
	assert.False(t, ev.AllDay)
	assert.False(t, ev.Cancelled)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), ev.Start.UTC())
	assert.Equal(t, 90*time.Minute, ev.End.Sub(ev.Start))
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), ev.UpdatedAt)
}

func TestToRemote_AllDayEvent(t *testing.T) {
	m := newMapper("UTC")

	ev, err := m.toRemote(eventDTO{
		ID:    "evt-2",
		Start: &eventDateTime{Date: "2026-03-01"},
		End:   &eventDateTime{Date: "2026-03-02"},
	})
	require.NoError(t, err)

	assert.True(t, ev.AllDay)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), ev.Start)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), ev.End)
	assert.Equal(t, "evt-2", ev.UID, "UID falls back to the event id")
}

func TestToRemote_MissingEndDefaults(t *testing.T) {
	m := newMapper("UTC")

	timed, err := m.toRemote(eventDTO{
		ID:    "evt-3",
		Start: &eventDateTime{DateTime: "2026-03-02T10:00:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, timed.End.Sub(timed.Start))

	allDay, err := m.toRemote(eventDTO{
		ID:    "evt-4",
		Start: &eventDateTime{Date: "2026-03-01"},
	})
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, allDay.End.Sub(allDay.Start))
}

func TestToRemote_CancelledKeepsIdentityOnly(t *testing.T) {
	m := newMapper("UTC")

	ev, err := m.toRemote(eventDTO{ID: "evt-5", Status: statusCancelled})
	require.NoError(t, err)

	assert.True(t, ev.Cancelled)
	assert.Equal(t, "evt-5", ev.RemoteID)
	assert.True(t, ev.Start.IsZero())
}

func TestToRemote_MissingStartIsError(t *testing.T) {
	m := newMapper("UTC")

	_, err := m.toRemote(eventDTO{ID: "evt-6"})
	assert.Error(t, err)
}

func TestToRemote_RecurrenceValidation(t *testing.T) {
	m := newMapper("UTC")

	ev, err := m.toRemote(eventDTO{
		ID:         "evt-7",
		Start:      &eventDateTime{DateTime: "2026-03-02T10:00:00Z"},
		Recurrence: []string{"EXDATE:20260309T100000Z", "RRULE:FREQ=WEEKLY;BYDAY=MO"},
	})
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", ev.RRule)

	ev, err = m.toRemote(eventDTO{
		ID:         "evt-8",
		Start:      &eventDateTime{DateTime: "2026-03-02T10:00:00Z"},
		Recurrence: []string{"RRULE:FREQ=BOGUS"},
	})
	require.NoError(t, err)
	assert.Empty(t, ev.RRule, "unparsable rule is dropped, event kept")
}

func TestToRemote_ZoneFallback(t *testing.T) {
	m := newMapper("America/New_York")

	ev, err := m.toRemote(eventDTO{
		ID:    "evt-9",
		Start: &eventDateTime{Date: "2026-03-01", TimeZone: "Not/AZone"},
	})
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", ev.Start.Location().String())
}

func TestToDTO_RoundTrip(t *testing.T) {
	m := newMapper("UTC")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	dto := m.toDTO(&domain.CalendarEvent{
		UID:    "uid-1@example.com",
		Title:  "Design review",
		Start:  start,
		End:    start.Add(time.Hour),
		RRule:  "FREQ=WEEKLY;BYDAY=MO",
		AllDay: false,
	})

	require.NotNil(t, dto.Start)
	assert.Equal(t, "2026-03-02T10:00:00Z", dto.Start.DateTime)
	assert.Empty(t, dto.Start.Date)
	assert.Equal(t, []string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}, dto.Recurrence)

	back, err := m.toRemote(dto)
	require.NoError(t, err)
	assert.Equal(t, "Design review", back.Title)
	assert.Equal(t, start, back.Start.UTC())
}

func TestToDTO_AllDayUsesExclusiveEnd(t *testing.T) {
	m := newMapper("UTC")

	dto := m.toDTO(&domain.CalendarEvent{
		UID:    "uid-2",
		Title:  "Offsite",
		Start:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		AllDay: true,
	})

	require.NotNil(t, dto.Start)
	require.NotNil(t, dto.End)
	assert.Equal(t, "2026-03-01", dto.Start.Date)
	assert.Equal(t, "2026-03-02", dto.End.Date)
	assert.Empty(t, dto.Start.DateTime)
}
