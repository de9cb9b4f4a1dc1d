// Package rest implements the provider adapter for token-based REST calendar
// backends (Google Calendar v3-shaped API).
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"calsync/pkg/logger"
)

const (
	_defaultPageSize = 250
	_defaultTimeout  = 30 * time.Second
)

// Config -.
type Config struct {
	BaseURL     string
	Account     string
	AccountZone string
	PageSize    int
	Timeout     time.Duration
}

// Adapter implements provider.Adapter over HTTP+JSON. Change detection uses
// a single opaque sync token per calendar; removals surface as cancelled
// tombstones because showDeleted is always requested.
type Adapter struct {
	cfg    Config
	http   *http.Client
	creds  provider.CredentialProvider
	mapper *mapper
	logger *logger.Logger
}

// New -.
func New(cfg Config, creds provider.CredentialProvider, l *logger.Logger) *Adapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = _defaultPageSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = _defaultTimeout
	}
	return &Adapter{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		creds:  creds,
		mapper: newMapper(cfg.AccountZone),
		logger: l,
	}
}

func (a *Adapter) Type() domain.ProviderType { return domain.ProviderRest }

func (a *Adapter) Authenticate(ctx context.Context) error {
	q := url.Values{"maxResults": {"1"}}
	resp, err := a.do(ctx, http.MethodGet, "/users/me/calendarList", q, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return a.statusError("", resp)
	}
	return nil
}

func (a *Adapter) ListCalendars(ctx context.Context) ([]domain.Calendar, error) {
	var cals []domain.Calendar
	pageToken := ""

	for {
		q := url.Values{"maxResults": {strconv.Itoa(a.cfg.PageSize)}}
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var list calendarListResponse
		if err := a.getJSON(ctx, "/users/me/calendarList", q, "", &list); err != nil {
			return nil, err
		}

		for _, item := range list.Items {
			if item.Deleted {
				continue
			}
			cals = append(cals, domain.Calendar{
				ID:       item.ID,
				Name:     item.Summary,
				Color:    item.BackgroundColor,
				Provider: domain.ProviderRest,
				Account:  a.cfg.Account,
				Visible:  !item.Hidden,
				ReadOnly: item.AccessRole == "reader" || item.AccessRole == "freeBusyReader",
			})
		}

		if list.NextPageToken == "" {
			return cals, nil
		}
		pageToken = list.NextPageToken
	}
}

func (a *Adapter) FetchChanges(ctx context.Context, cal domain.Calendar, syncToken, pageToken string) (*provider.ChangeSet, error) {
	q := a.eventQuery()
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	} else if syncToken != "" {
		q.Set("syncToken", syncToken)
	}

	var page eventsResponse
	if err := a.getJSON(ctx, a.eventsPath(cal.ID), q, cal.ID, &page); err != nil {
		return nil, err
	}

	return a.changeSet(cal, page), nil
}

func (a *Adapter) FetchRange(ctx context.Context, cal domain.Calendar, start, end time.Time) ([]provider.RemoteEvent, string, error) {
	var events []provider.RemoteEvent
	pageToken := ""

	for {
		q := a.eventQuery()
		q.Set("timeMin", start.UTC().Format(time.RFC3339))
		q.Set("timeMax", end.UTC().Format(time.RFC3339))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page eventsResponse
		if err := a.getJSON(ctx, a.eventsPath(cal.ID), q, cal.ID, &page); err != nil {
			return nil, "", err
		}

		cs := a.changeSet(cal, page)
		events = append(events, cs.Events...)

		if !cs.HasMore {
			return events, cs.NextSyncToken, nil
		}
		pageToken = cs.NextPageToken
	}
}

func (a *Adapter) Push(ctx context.Context, cal domain.Calendar, event *domain.CalendarEvent) (*provider.PushResult, error) {
	body, err := json.Marshal(a.mapper.toDTO(event))
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryParse, "encode event", err)
	}

	method := http.MethodPost
	path := a.eventsPath(cal.ID)
	etag := ""
	if event.RemoteID != "" {
		method = http.MethodPut
		path += "/" + url.PathEscape(event.RemoteID)
		etag = event.ETag
	}

	resp, err := a.doWithETag(ctx, method, path, nil, bytes.NewReader(body), cal.ID, etag)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, a.statusError(cal.ID, resp)
	}

	var saved eventDTO
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return nil, domain.NewSyncError(domain.CategoryParse, "decode push response", err)
	}
	return &provider.PushResult{RemoteID: saved.ID, ETag: saved.ETag}, nil
}

func (a *Adapter) Delete(ctx context.Context, cal domain.Calendar, remoteID, etag string) error {
	path := a.eventsPath(cal.ID) + "/" + url.PathEscape(remoteID)

	resp, err := a.doWithETag(ctx, http.MethodDelete, path, nil, nil, cal.ID, etag)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		// Already gone upstream counts as a successful delete.
		return nil
	default:
		return a.statusError(cal.ID, resp)
	}
}

func (a *Adapter) eventsPath(calendarID string) string {
	return "/calendars/" + url.PathEscape(calendarID) + "/events"
}

func (a *Adapter) eventQuery() url.Values {
	return url.Values{
		"maxResults":   {strconv.Itoa(a.cfg.PageSize)},
		"showDeleted":  {"true"},
		"singleEvents": {"true"},
	}
}

func (a *Adapter) changeSet(cal domain.Calendar, page eventsResponse) *provider.ChangeSet {
	cs := &provider.ChangeSet{
		NextSyncToken: page.NextSyncToken,
		NextPageToken: page.NextPageToken,
		HasMore:       page.NextPageToken != "",
	}
	for _, item := range page.Items {
		ev, err := a.mapper.toRemote(item)
		if err != nil {
			// Malformed item: skip it, keep the rest of the page.
			a.logger.Warn("rest: skipping malformed event",
				"calendar", cal.ID, logger.Err(err))
			continue
		}
		cs.Events = append(cs.Events, ev)
	}
	return cs
}

func (a *Adapter) getJSON(ctx context.Context, path string, q url.Values, calendarID string, out any) error {
	resp, err := a.do(ctx, http.MethodGet, path, q, nil, calendarID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return a.statusError(calendarID, resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewSyncError(domain.CategoryParse, "decode response", err)
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, method, path string, q url.Values, body io.Reader, calendarID string) (*http.Response, error) {
	return a.doWithETag(ctx, method, path, q, body, calendarID, "")
}

func (a *Adapter) doWithETag(ctx context.Context, method, path string, q url.Values, body io.Reader, calendarID, etag string) (*http.Response, error) {
	u := a.cfg.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryNetwork, "build request", err)
	}

	auth, err := a.creds.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if etag != "" {
		req.Header.Set("If-Match", etag)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryNetwork, fmt.Sprintf("%s %s", method, path), err)
	}
	return resp, nil
}

func (a *Adapter) statusError(calendarID string, resp *http.Response) error {
	msg := httpErrorMessage(resp)

	var category domain.ErrorCategory
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		category = domain.CategoryAuth
	case resp.StatusCode == http.StatusNotFound:
		category = domain.CategoryNotFound
	case resp.StatusCode == http.StatusGone:
		category = domain.CategoryTokenExpired
	case resp.StatusCode == http.StatusPreconditionFailed:
		category = domain.CategoryPreconditionFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		// Throttling is retryable and must not be conflated with 5xx.
		category = domain.CategoryRateLimited
	case resp.StatusCode >= 500:
		category = domain.CategoryServer
	default:
		category = domain.CategoryNetwork
	}

	return &domain.SyncError{
		Category:   category,
		CalendarID: calendarID,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg),
	}
}

func httpErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(data) == 0 {
		return resp.Status
	}
	var body errorResponse
	if err := json.Unmarshal(data, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return resp.Status
}
