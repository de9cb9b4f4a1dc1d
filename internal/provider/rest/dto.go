package rest

// Wire DTOs for the REST provider. The shapes follow the Google Calendar v3
// API: event timing is either a date (all-day) or an RFC 3339 dateTime with
// an optional IANA zone, and deletions surface as status "cancelled"
// tombstones when showDeleted is requested.

type calendarListResponse struct {
	Items         []calendarDTO `json:"items"`
	NextPageToken string        `json:"nextPageToken,omitempty"`
}

type calendarDTO struct {
	ID              string `json:"id"`
	Summary         string `json:"summary"`
	BackgroundColor string `json:"backgroundColor,omitempty"`
	TimeZone        string `json:"timeZone,omitempty"`
	AccessRole      string `json:"accessRole,omitempty"`
	Primary         bool   `json:"primary,omitempty"`
	Hidden          bool   `json:"hidden,omitempty"`
	Deleted         bool   `json:"deleted,omitempty"`
}

type eventsResponse struct {
	Items         []eventDTO `json:"items"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
	NextSyncToken string     `json:"nextSyncToken,omitempty"`
	TimeZone      string     `json:"timeZone,omitempty"`
}

type eventDTO struct {
	ID          string         `json:"id,omitempty"`
	ETag        string         `json:"etag,omitempty"`
	Status      string         `json:"status,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Location    string         `json:"location,omitempty"`
	Start       *eventDateTime `json:"start,omitempty"`
	End         *eventDateTime `json:"end,omitempty"`
	Created     string         `json:"created,omitempty"`
	Updated     string         `json:"updated,omitempty"`
	ICalUID     string         `json:"iCalUID,omitempty"`
	Recurrence  []string       `json:"recurrence,omitempty"`
}

type eventDateTime struct {
	// Date is set for all-day values ("2006-01-02"), DateTime otherwise.
	Date     string `json:"date,omitempty"`
	DateTime string `json:"dateTime,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

const statusCancelled = "cancelled"
