package rest

import (
	"fmt"
	"strings"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"github.com/teambition/rrule-go"
)

const dateLayout = "2006-01-02"

// mapper translates REST DTOs to and from the domain model. accountZone is
// the account's declared zone, used when an event carries no explicit one;
// the final fallback is the system default.
type mapper struct {
	accountZone *time.Location
}

func newMapper(accountZone string) *mapper {
	loc, err := time.LoadLocation(accountZone)
	if err != nil || accountZone == "" {
		loc = time.Local
	}
	return &mapper{accountZone: loc}
}

func (m *mapper) zone(tzid string) *time.Location {
	if tzid != "" {
		if loc, err := time.LoadLocation(tzid); err == nil {
			return loc
		}
	}
	if m.accountZone != nil {
		return m.accountZone
	}
	return time.Local
}

// toRemote converts a wire event to a RemoteEvent. Cancelled tombstones keep
// only their identity; content fields of a cancellation are not meaningful.
func (m *mapper) toRemote(dto eventDTO) (provider.RemoteEvent, error) {
	ev := provider.RemoteEvent{
		RemoteID:    dto.ID,
		UID:         dto.ICalUID,
		ETag:        dto.ETag,
		Title:       dto.Summary,
		Description: dto.Description,
		Location:    dto.Location,
		Cancelled:   dto.Status == statusCancelled,
	}
	if ev.UID == "" {
		ev.UID = dto.ID
	}

	if t, err := time.Parse(time.RFC3339, dto.Created); err == nil {
		ev.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, dto.Updated); err == nil {
		ev.UpdatedAt = t
	}

	if ev.Cancelled {
		return ev, nil
	}

	if dto.Start == nil {
		return ev, fmt.Errorf("event %s: missing start", dto.ID)
	}

	start, allDay, err := m.parseDateTime(*dto.Start)
	if err != nil {
		return ev, fmt.Errorf("event %s: %w", dto.ID, err)
	}
	ev.Start = start
	ev.AllDay = allDay

	if dto.End != nil {
		end, _, err := m.parseDateTime(*dto.End)
		if err != nil {
			return ev, fmt.Errorf("event %s: %w", dto.ID, err)
		}
		ev.End = end
	} else if allDay {
		ev.End = start.AddDate(0, 0, 1)
	} else {
		ev.End = start.Add(time.Hour)
	}

	for _, line := range dto.Recurrence {
		rest, ok := strings.CutPrefix(line, "RRULE:")
		if !ok {
			continue
		}
		if _, err := rrule.StrToRRule(rest); err != nil {
			// Unparsable rule: keep the event, drop the rule.
			continue
		}
		ev.RRule = rest
		break
	}

	return ev, nil
}

func (m *mapper) parseDateTime(dt eventDateTime) (t time.Time, allDay bool, err error) {
	switch {
	case dt.Date != "":
		t, err = time.ParseInLocation(dateLayout, dt.Date, m.zone(dt.TimeZone))
		return t, true, err
	case dt.DateTime != "":
		t, err = time.Parse(time.RFC3339, dt.DateTime)
		if err != nil {
			return time.Time{}, false, err
		}
		if dt.TimeZone != "" {
			t = t.In(m.zone(dt.TimeZone))
		}
		return t, false, nil
	default:
		return time.Time{}, false, fmt.Errorf("empty date/dateTime")
	}
}

// toDTO converts a domain event to the wire shape for upload. All-day events
// are emitted as date pairs with the exclusive end the domain model already
// maintains.
func (m *mapper) toDTO(event *domain.CalendarEvent) eventDTO {
	dto := eventDTO{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		ICalUID:     event.UID,
	}

	end := event.End
	if event.AllDay {
		if end.IsZero() {
			end = event.Start.AddDate(0, 0, 1)
		}
		dto.Start = &eventDateTime{Date: event.Start.Format(dateLayout)}
		dto.End = &eventDateTime{Date: end.Format(dateLayout)}
	} else {
		if end.IsZero() {
			end = event.Start.Add(time.Hour)
		}
		dto.Start = &eventDateTime{DateTime: event.Start.Format(time.RFC3339)}
		dto.End = &eventDateTime{DateTime: end.Format(time.RFC3339)}
	}

	if event.RRule != "" {
		dto.Recurrence = []string{"RRULE:" + event.RRule}
	}

	return dto
}
