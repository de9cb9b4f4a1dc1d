package domain

// Calendar is a synchronizable collection of events. For CalDAV calendars ID
// holds the collection path; for REST calendars the provider's calendar id.
type Calendar struct {
	ID       string
	Name     string
	Color    string
	Provider ProviderType
	Account  string

	// CTag is the collection-level change tag reported by CalDAV discovery.
	// Empty for REST calendars.
	CTag string

	Visible  bool
	ReadOnly bool
}

// Key returns the token-store key for this calendar. Sync tokens are scoped
// per collection URL (CalDAV) or per calendar id (REST).
func (c Calendar) Key() string {
	return string(c.Provider) + ":" + c.ID
}

// Syncable reports whether the calendar participates in sync at all.
func (c Calendar) Syncable() bool {
	return c.Visible
}

// Pushable reports whether local changes may be uploaded to this calendar.
// Read-only calendars are pulled but never pushed.
func (c Calendar) Pushable() bool {
	return c.Visible && !c.ReadOnly
}
