// Package caldav implements the provider adapter for CalDAV/WebDAV calendar
// backends: PROPFIND discovery, sync-collection/calendar-query/multiget
// reports and ETag-guarded writes.
package caldav

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"calsync/pkg/logger"
	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
)

const (
	_defaultTimeout   = 30 * time.Second
	_multigetChunkLen = 50
)

// Config -.
type Config struct {
	BaseURL     string
	Account     string
	AccountZone string
	Timeout     time.Duration
}

// Adapter implements provider.Adapter over CalDAV. Discovery and bulk reads
// go through the go-webdav client; sync-collection reports and preconditioned
// writes go through rawClient.
type Adapter struct {
	cfg    Config
	client *caldav.Client
	raw    *rawClient
	mapper *mapper
	logger *logger.Logger

	homeSet string
}

type authTransport struct {
	creds provider.CredentialProvider
	next  http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	auth, err := t.creds.AuthorizationHeader(req.Context())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	return t.next.RoundTrip(req)
}

// New -.
func New(cfg Config, creds provider.CredentialProvider, l *logger.Logger) (*Adapter, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = _defaultTimeout
	}

	httpClient := &http.Client{
		Transport: &authTransport{creds: creds, next: http.DefaultTransport},
		Timeout:   cfg.Timeout,
	}

	client, err := caldav.NewClient(httpClient, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	raw, err := newRawClient(cfg.BaseURL, httpClient, creds)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		cfg:    cfg,
		client: client,
		raw:    raw,
		mapper: newMapper(cfg.AccountZone),
		logger: l,
	}, nil
}

func (a *Adapter) Type() domain.ProviderType { return domain.ProviderCalDAV }

func (a *Adapter) Authenticate(ctx context.Context) error {
	principal, err := a.raw.currentUserPrincipal(ctx)
	if err != nil {
		return err
	}

	homeSet, err := a.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return classify(err, "find calendar home set")
	}
	a.homeSet = homeSet
	return nil
}

func (a *Adapter) ListCalendars(ctx context.Context) ([]domain.Calendar, error) {
	if a.homeSet == "" {
		if err := a.Authenticate(ctx); err != nil {
			return nil, err
		}
	}

	found, err := a.client.FindCalendars(ctx, a.homeSet)
	if err != nil {
		return nil, classify(err, "find calendars")
	}

	var cals []domain.Calendar
	for _, cal := range found {
		if !supportsEvents(cal.SupportedComponentSet) {
			continue
		}

		out := domain.Calendar{
			ID:       cal.Path,
			Name:     cal.Name,
			Provider: domain.ProviderCalDAV,
			Account:  a.cfg.Account,
			Visible:  true,
		}

		// The collection PROPFIND fills what FindCalendars does not report:
		// change tag, color and write access.
		props, err := a.raw.propfindCollection(ctx, cal.Path)
		if err != nil {
			a.logger.Warn("caldav: collection propfind failed",
				"calendar", cal.Path, logger.Err(err))
		} else {
			out.CTag = props.CTag
			out.Color = props.Color
			out.ReadOnly = props.ReadOnly
			if out.Name == "" {
				out.Name = props.Name
			}
		}

		cals = append(cals, out)
	}
	return cals, nil
}

// FetchChanges runs a sync-collection report and resolves the changed hrefs
// through one or more calendar-multiget round trips. The report returns all
// changes at once; HasMore is always false.
func (a *Adapter) FetchChanges(ctx context.Context, cal domain.Calendar, syncToken, _ string) (*provider.ChangeSet, error) {
	report, err := a.raw.syncCollection(ctx, cal.ID, syncToken)
	if err != nil {
		return nil, err
	}

	cs := &provider.ChangeSet{NextSyncToken: report.Token}

	for _, href := range report.Deleted {
		cs.Events = append(cs.Events, provider.RemoteEvent{
			RemoteID:  href,
			UID:       uidFromHref(href),
			Cancelled: true,
		})
	}

	for start := 0; start < len(report.Changed); start += _multigetChunkLen {
		end := min(start+_multigetChunkLen, len(report.Changed))

		paths := make([]string, 0, end-start)
		for _, ref := range report.Changed[start:end] {
			paths = append(paths, ref.Href)
		}

		objects, err := a.client.MultiGetCalendar(ctx, cal.ID, &caldav.CalendarMultiGet{
			Paths:       paths,
			CompRequest: caldav.CalendarCompRequest{Name: ical.CompCalendar, AllProps: true, AllComps: true},
		})
		if err != nil {
			return nil, classify(err, "calendar multiget")
		}

		for _, obj := range objects {
			ev, err := a.mapper.toRemote(obj.Path, unquoteETag(obj.ETag), obj.Data)
			if err != nil {
				a.logger.Warn("caldav: skipping malformed object",
					"calendar", cal.ID, logger.Err(err))
				continue
			}
			cs.Events = append(cs.Events, ev)
		}
	}

	return cs, nil
}

// FetchRange runs a time-range calendar-query. The collection's DAV
// sync-token is read before the query: changes landing in between are then
// re-surfaced by the next incremental report instead of being skipped.
func (a *Adapter) FetchRange(ctx context.Context, cal domain.Calendar, start, end time.Time) ([]provider.RemoteEvent, string, error) {
	token := ""
	if props, err := a.raw.propfindCollection(ctx, cal.ID); err == nil {
		token = props.SyncToken
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{Name: ical.CompCalendar, AllProps: true, AllComps: true},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	objects, err := a.client.QueryCalendar(ctx, cal.ID, query)
	if err != nil {
		return nil, "", classify(err, "calendar query")
	}

	var events []provider.RemoteEvent
	for _, obj := range objects {
		ev, err := a.mapper.toRemote(obj.Path, unquoteETag(obj.ETag), obj.Data)
		if err != nil {
			a.logger.Warn("caldav: skipping malformed object",
				"calendar", cal.ID, logger.Err(err))
			continue
		}
		events = append(events, ev)
	}
	return events, token, nil
}

func (a *Adapter) Push(ctx context.Context, cal domain.Calendar, event *domain.CalendarEvent) (*provider.PushResult, error) {
	if event.UID == "" {
		event.UID = uuid.NewString()
	}

	href := event.RemoteID
	if href == "" {
		href = path.Join(cal.ID, event.UID+".ics")
	}

	data, err := encodeCalendar(a.mapper.toCalendar(event, time.Now()))
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryParse, "encode calendar object", err)
	}

	etag, err := a.raw.putObject(ctx, href, data, event.ETag)
	if err != nil {
		return nil, err
	}
	if etag == "" {
		// Servers may answer PUT without an ETag header.
		etag, err = a.raw.resourceETag(ctx, href)
		if err != nil {
			a.logger.Warn("caldav: etag lookup after put failed",
				"href", href, logger.Err(err))
		}
	}

	return &provider.PushResult{RemoteID: href, ETag: etag}, nil
}

func (a *Adapter) Delete(ctx context.Context, _ domain.Calendar, remoteID, etag string) error {
	return a.raw.deleteObject(ctx, remoteID, etag)
}

// classify wraps go-webdav client errors. HTTP failures keep their status
// category; anything else surfaces with the retryable network category.
func classify(err error, op string) error {
	var se *domain.SyncError
	if errors.As(err, &se) {
		return err
	}

	var httpErr *webdav.HTTPError
	if errors.As(err, &httpErr) {
		return domain.NewSyncError(categoryForStatus(httpErr.Code), op, err)
	}
	return domain.NewSyncError(domain.CategoryNetwork, op, err)
}

func supportsEvents(components []string) bool {
	if len(components) == 0 {
		return true
	}
	for _, c := range components {
		if c == ical.CompEvent {
			return true
		}
	}
	return false
}

func uidFromHref(href string) string {
	return strings.TrimSuffix(path.Base(href), ".ics")
}
