package caldav

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"calsync/internal/domain"
	"calsync/internal/provider"
)

// rawClient issues the WebDAV requests the go-webdav client does not cover:
// sync-collection reports, enriched collection PROPFINDs and ETag
// preconditioned writes.
type rawClient struct {
	base  *url.URL
	http  *http.Client
	creds provider.CredentialProvider
}

func newRawClient(baseURL string, httpClient *http.Client, creds provider.CredentialProvider) (*rawClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("caldav - newRawClient - url.Parse: %w", err)
	}
	return &rawClient{base: u, http: httpClient, creds: creds}, nil
}

// resolve turns a server-absolute href into a full request URL.
func (c *rawClient) resolve(href string) string {
	u := *c.base
	if strings.HasPrefix(href, "/") {
		u.Path = href
	} else {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + href
	}
	return u.String()
}

// currentUserPrincipal resolves the authenticated principal path. It doubles
// as the credential check: a 401/403 here is an auth failure, not a
// degradable calendar error.
func (c *rawClient) currentUserPrincipal(ctx context.Context) (string, error) {
	ms, err := c.multistatusRequest(ctx, propfindMethod, c.base.Path, "0", principalPropfindBody)
	if err != nil {
		return "", err
	}
	for _, resp := range ms.Responses {
		ps := resp.okPropstat()
		if ps == nil || ps.Prop.Principal == nil {
			continue
		}
		if href := strings.TrimSpace(ps.Prop.Principal.Href); href != "" {
			return href, nil
		}
	}
	return "", domain.NewSyncError(domain.CategoryAuth, "no current-user-principal in response", nil)
}

type collectionProps struct {
	Name       string
	CTag       string
	SyncToken  string
	Color      string
	IsCalendar bool
	ReadOnly   bool
}

// propfindCollection fetches the collection-level properties of one calendar
// (Depth: 0): display name, change tag, color and write access.
func (c *rawClient) propfindCollection(ctx context.Context, path string) (*collectionProps, error) {
	ms, err := c.multistatusRequest(ctx, propfindMethod, path, "0", collectionPropfindBody)
	if err != nil {
		return nil, err
	}

	for _, resp := range ms.Responses {
		ps := resp.okPropstat()
		if ps == nil {
			continue
		}
		return &collectionProps{
			Name:       ps.Prop.DisplayName,
			CTag:       ps.Prop.CTag,
			SyncToken:  ps.Prop.SyncToken,
			Color:      ps.Prop.CalendarColor,
			IsCalendar: ps.Prop.ResourceType != nil && ps.Prop.ResourceType.Calendar != nil,
			ReadOnly:   !ps.Prop.Privileges.Writable(),
		}, nil
	}
	return nil, &domain.SyncError{
		Category:   domain.CategoryNotFound,
		CalendarID: path,
		Message:    "collection properties not found",
	}
}

type syncReport struct {
	// Changed holds hrefs (with their ETags) of created or modified
	// resources; bodies are resolved separately through calendar-multiget.
	Changed []itemRef
	// Deleted holds hrefs of removed resources.
	Deleted []string
	Token   string
}

type itemRef struct {
	Href string
	ETag string
}

// syncCollection runs an incremental sync-collection report. An expired
// token surfaces as CategoryTokenExpired (the 410-equivalent signal).
func (c *rawClient) syncCollection(ctx context.Context, path, token string) (*syncReport, error) {
	ms, err := c.multistatusRequest(ctx, reportMethod, path, "1", syncCollectionBody(token))
	if err != nil {
		return nil, err
	}

	report := &syncReport{Token: ms.SyncToken}
	for _, resp := range ms.Responses {
		href := resp.Href
		// The collection itself appears in some server responses.
		if href == "" || strings.TrimSuffix(href, "/") == strings.TrimSuffix(path, "/") {
			continue
		}
		if resp.gone() {
			report.Deleted = append(report.Deleted, href)
			continue
		}
		ref := itemRef{Href: href}
		if ps := resp.okPropstat(); ps != nil {
			ref.ETag = ps.Prop.ETag
		}
		report.Changed = append(report.Changed, ref)
	}
	return report, nil
}

// putObject uploads an iCalendar resource. An empty etag requests create-only
// semantics (If-None-Match: *); otherwise the etag guards the update.
func (c *rawClient) putObject(ctx context.Context, path string, data []byte, etag string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPut, path, strings.NewReader(string(data)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/calendar; charset=utf-8")
	if etag == "" {
		req.Header.Set("If-None-Match", "*")
	} else {
		req.Header.Set("If-Match", quoteETag(etag))
	}

	resp, err := c.do(req, path)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return unquoteETag(resp.Header.Get("ETag")), nil
	default:
		return "", c.statusError(path, resp)
	}
}

// deleteObject removes a resource; a resource already gone is success.
func (c *rawClient) deleteObject(ctx context.Context, path, etag string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if etag != "" {
		req.Header.Set("If-Match", quoteETag(etag))
	}

	resp, err := c.do(req, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return c.statusError(path, resp)
	}
}

// resourceETag fetches the current ETag of a single resource, used when a
// server answers PUT without an ETag header.
func (c *rawClient) resourceETag(ctx context.Context, path string) (string, error) {
	const body = `<?xml version="1.0" encoding="UTF-8"?>
<d:propfind xmlns:d="DAV:"><d:prop><d:getetag/></d:prop></d:propfind>`

	ms, err := c.multistatusRequest(ctx, propfindMethod, path, "0", body)
	if err != nil {
		return "", err
	}
	for _, resp := range ms.Responses {
		if ps := resp.okPropstat(); ps != nil {
			return unquoteETag(ps.Prop.ETag), nil
		}
	}
	return "", nil
}

func (c *rawClient) multistatusRequest(ctx context.Context, method, path, depth, body string) (*multistatus, error) {
	req, err := c.newRequest(ctx, method, path, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml; charset=utf-8")
	req.Header.Set(depthHeader, depth)

	resp, err := c.do(req, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMultiStatus && resp.StatusCode != http.StatusOK {
		return nil, c.statusError(path, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryNetwork, "read multistatus body", err)
	}
	ms, err := parseMultistatus(data)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryParse, "malformed multistatus", err)
	}
	return ms, nil
}

func (c *rawClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(path), body)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryNetwork, "build request", err)
	}
	auth, err := c.creds.AuthorizationHeader(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", auth)
	return req, nil
}

func (c *rawClient) do(req *http.Request, path string) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, domain.NewSyncError(domain.CategoryNetwork,
			fmt.Sprintf("%s %s", req.Method, path), err)
	}
	return resp, nil
}

func (c *rawClient) statusError(path string, resp *http.Response) error {
	return &domain.SyncError{
		Category:   categoryForStatus(resp.StatusCode),
		CalendarID: path,
		Message:    fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}

// categoryForStatus maps a WebDAV status code onto the error taxonomy. Shared
// by the raw client and the go-webdav error classification.
func categoryForStatus(code int) domain.ErrorCategory {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.CategoryAuth
	case code == http.StatusNotFound:
		return domain.CategoryNotFound
	case code == http.StatusGone:
		return domain.CategoryTokenExpired
	case code == http.StatusPreconditionFailed:
		return domain.CategoryPreconditionFailed
	case code == http.StatusLocked:
		return domain.CategoryLocked
	case code == http.StatusTooManyRequests:
		return domain.CategoryRateLimited
	case code >= 500:
		return domain.CategoryServer
	default:
		return domain.CategoryNetwork
	}
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) {
		return etag
	}
	return `"` + etag + `"`
}

func unquoteETag(etag string) string {
	return strings.Trim(etag, `"`)
}
