package caldav

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"
)

const prodID = "-//calsync//calendar sync engine//EN"

// mapper translates iCalendar objects to and from the domain model. Text
// escaping (backslash, semicolon, comma, newline) is handled by the ical
// encoder and decoder.
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

// toRemote extracts the first VEVENT of a calendar object. href and etag
// come from the WebDAV layer; they are the resource identity.
func (m *mapper) toRemote(href, etag string, cal *ical.Calendar) (provider.RemoteEvent, error) {
	ev := provider.RemoteEvent{RemoteID: href, ETag: etag}

	if cal == nil {
		return ev, fmt.Errorf("%s: empty calendar object", href)
	}

	var comp *ical.Component
	for _, child := range cal.Children {
		if child.Name == ical.CompEvent {
			comp = child
			break
		}
	}
	if comp == nil {
		return ev, fmt.Errorf("%s: no VEVENT component", href)
	}

	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		ev.UID = prop.Value
	}
	if ev.UID == "" {
		return ev, fmt.Errorf("%s: missing UID", href)
	}

	ev.Title = textProp(comp, ical.PropSummary)
	ev.Description = textProp(comp, ical.PropDescription)
	ev.Location = textProp(comp, ical.PropLocation)
	ev.Cancelled = strings.EqualFold(textProp(comp, ical.PropStatus), "CANCELLED")

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", href)
	}

	startAt, err := start.DateTime(m.accountZone)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", href, err)
	}
	ev.Start = startAt
	ev.AllDay = isDateValue(start)

	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		endAt, err := end.DateTime(m.accountZone)
		if err != nil {
			return ev, fmt.Errorf("%s: DTEND: %w", href, err)
		}
		ev.End = endAt
	} else if ev.AllDay {
		ev.End = startAt.AddDate(0, 0, 1)
	} else {
		ev.End = startAt.Add(time.Hour)
	}

	ev.CreatedAt = timeProp(comp, ical.PropCreated, m.accountZone)
	ev.UpdatedAt = timeProp(comp, ical.PropLastModified, m.accountZone)
	if ev.UpdatedAt.IsZero() {
		// DTSTAMP is required by the format and doubles as a change marker
		// when LAST-MODIFIED is absent.
		ev.UpdatedAt = timeProp(comp, ical.PropDateTimeStamp, m.accountZone)
	}

	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		if _, err := rrule.StrToRRule(prop.Value); err == nil {
			ev.RRule = prop.Value
		}
	}
	if prop := comp.Props.Get(ical.PropCategories); prop != nil {
		if cats, err := prop.TextList(); err == nil && len(cats) > 0 {
			ev.Categories = cats
		}
	}

	return ev, nil
}

// toCalendar renders a domain event as a single-VEVENT VCALENDAR. All-day
// events are written as DATE pairs; the domain end boundary is already
// exclusive, matching DTEND semantics.
func (m *mapper) toCalendar(event *domain.CalendarEvent, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, event.UID)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now.UTC())
	vevent.Props.SetText(ical.PropSummary, event.Title)

	end := event.End
	if event.AllDay {
		if end.IsZero() {
			end = event.Start.AddDate(0, 0, 1)
		}
		vevent.Props.SetDate(ical.PropDateTimeStart, event.Start)
		vevent.Props.SetDate(ical.PropDateTimeEnd, end)
	} else {
		if end.IsZero() {
			end = event.Start.Add(time.Hour)
		}
		vevent.Props.SetDateTime(ical.PropDateTimeStart, event.Start.UTC())
		vevent.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		vevent.Props.SetText(ical.PropLocation, event.Location)
	}
	if event.RRule != "" {
		// RRULE is a RECUR value; TEXT escaping would corrupt its semicolons.
		rule := ical.NewProp(ical.PropRecurrenceRule)
		rule.Value = event.RRule
		vevent.Props.Set(rule)
	}
	if len(event.Categories) > 0 {
		cats := ical.NewProp(ical.PropCategories)
		cats.SetTextList(event.Categories)
		vevent.Props.Set(cats)
	}
	if !event.CreatedAt.IsZero() {
		vevent.Props.SetDateTime(ical.PropCreated, event.CreatedAt.UTC())
	}
	if !event.UpdatedAt.IsZero() {
		vevent.Props.SetDateTime(ical.PropLastModified, event.UpdatedAt.UTC())
	}

	cal.Children = append(cal.Children, vevent.Component)
	return cal
}

func encodeCalendar(cal *ical.Calendar) ([]byte, error) {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeCalendar(data []byte) (*ical.Calendar, error) {
	return ical.NewDecoder(bytes.NewReader(data)).Decode()
}

// textProp returns the unescaped text of a property. prop.Value is the raw
// wire form; Text undoes the backslash escaping.
func textProp(comp *ical.Component, name string) string {
	prop := comp.Props.Get(name)
	if prop == nil {
		return ""
	}
	text, err := prop.Text()
	if err != nil {
		return prop.Value
	}
	return text
}

func timeProp(comp *ical.Component, name string, loc *time.Location) time.Time {
	prop := comp.Props.Get(name)
	if prop == nil {
		return time.Time{}
	}
	t, err := prop.DateTime(loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isDateValue(prop *ical.Prop) bool {
	if prop.Params.Get(ical.ParamValue) == string(ical.ValueDate) {
		return true
	}
	// Some servers omit VALUE=DATE and rely on the literal form.
	return len(prop.Value) == len("20060102")
}
