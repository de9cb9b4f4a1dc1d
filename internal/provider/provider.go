// Package provider defines the capability interface every calendar backend
// adapter implements, plus the wire-neutral change representations the sync
// pipeline consumes.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"calsync/internal/domain"
	"golang.org/x/oauth2"
)

// RemoteEvent is a provider change already translated out of its wire format
// but not yet merged into the local store.
type RemoteEvent struct {
	RemoteID string
	UID      string
	ETag     string

	Title       string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	// Cancelled marks a tombstone: either an explicit cancellation status in
	// the event body or a resource-gone entry in an incremental response.
	Cancelled bool

	RRule      string
	Categories []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LastModified returns the remote modification timestamp, falling back to the
// creation timestamp when the provider sent none.
func (e RemoteEvent) LastModified() time.Time {
	if !e.UpdatedAt.IsZero() {
		return e.UpdatedAt
	}
	return e.CreatedAt
}

// ChangeSet is one page of incremental changes. NextSyncToken is only set
// once the final page has been served.
type ChangeSet struct {
	Events        []RemoteEvent
	NextSyncToken string
	NextPageToken string
	HasMore       bool
}

// PushResult carries the identifiers assigned or refreshed by a successful
// upload.
type PushResult struct {
	RemoteID string
	ETag     string
}

// Adapter is the uniform capability interface over the two provider
// variants (REST and CalDAV).
type Adapter interface {
	Type() domain.ProviderType

	// Authenticate verifies credentials up front. A failure here aborts the
	// whole run; it is the only phase not isolated per calendar.
	Authenticate(ctx context.Context) error

	ListCalendars(ctx context.Context) ([]domain.Calendar, error)

	// FetchChanges returns changes since syncToken, one page at a time. A
	// stale token surfaces as CategoryTokenExpired; callers fall back to
	// FetchRange for that calendar only.
	FetchChanges(ctx context.Context, cal domain.Calendar, syncToken, pageToken string) (*ChangeSet, error)

	// FetchRange is the full, range-bounded fetch used when no usable token
	// exists. The returned token, when non-empty, resumes incremental sync
	// from the fetched state.
	FetchRange(ctx context.Context, cal domain.Calendar, start, end time.Time) ([]RemoteEvent, string, error)

	// Push uploads a created or edited event. The event's stored ETag is used
	// as an If-Match precondition; a mismatch surfaces as
	// CategoryPreconditionFailed.
	Push(ctx context.Context, cal domain.Calendar, event *domain.CalendarEvent) (*PushResult, error)

	// Delete removes a remote resource. A resource already gone (404) is
	// treated as success.
	Delete(ctx context.Context, cal domain.Calendar, remoteID, etag string) error
}

// CredentialProvider yields a ready-to-use Authorization header value.
// Credential acquisition (OAuth consent, app passwords) happens elsewhere.
type CredentialProvider interface {
	AuthorizationHeader(ctx context.Context) (string, error)
}

type basicAuth struct {
	user, password string
}

func (b basicAuth) AuthorizationHeader(context.Context) (string, error) {
	if b.user == "" {
		return "", domain.NewSyncError(domain.CategoryAuth, "no credentials configured", nil)
	}
	creds := base64.StdEncoding.EncodeToString([]byte(b.user + ":" + b.password))
	return "Basic " + creds, nil
}

// BasicAuth returns a CredentialProvider for username/password backends.
func BasicAuth(user, password string) CredentialProvider {
	return basicAuth{user: user, password: password}
}

type tokenSourceAuth struct {
	source oauth2.TokenSource
}

func (t tokenSourceAuth) AuthorizationHeader(context.Context) (string, error) {
	tok, err := t.source.Token()
	if err != nil {
		return "", domain.NewSyncError(domain.CategoryAuth, "access token refresh failed", err)
	}
	return fmt.Sprintf("%s %s", tok.Type(), tok.AccessToken), nil
}

// OAuth returns a CredentialProvider backed by an oauth2.TokenSource; the
// source is expected to refresh expired tokens itself.
func OAuth(source oauth2.TokenSource) CredentialProvider {
	return tokenSourceAuth{source: source}
}

// StaticToken returns a CredentialProvider for a fixed bearer token, mainly
// useful in tests.
func StaticToken(token string) CredentialProvider {
	return OAuth(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}
