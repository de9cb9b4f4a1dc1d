package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"calsync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAdapter(t *testing.T, handler http.Handler) *Adapter {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return New(Config{
		BaseURL:     srv.URL,
		Account:     "user@example.com",
		AccountZone: "UTC",
		PageSize:    2,
	}, provider.StaticToken("test-token"), logger.New("error", "test"))
}

func TestListCalendars_Pagination(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/me/calendarList", r.URL.Path)
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		switch r.URL.Query().Get("pageToken") {
		case "":
			_ = json.NewEncoder(w).Encode(calendarListResponse{
				Items: []calendarDTO{
					{ID: "primary", Summary: "Primary", AccessRole: "owner"},
					{ID: "team", Summary: "Team", AccessRole: "reader"},
				},
				NextPageToken: "page-2",
			})
		case "page-2":
			_ = json.NewEncoder(w).Encode(calendarListResponse{
				Items: []calendarDTO{
					{ID: "gone", Summary: "Gone", Deleted: true},
					{ID: "hidden", Summary: "Hidden", Hidden: true},
				},
			})
		default:
			t.Fatalf("unexpected pageToken %q", r.URL.Query().Get("pageToken"))
		}
	}))

	cals, err := a.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, cals, 3, "deleted entries are dropped")

	assert.Equal(t, "primary", cals[0].ID)
	assert.False(t, cals[0].ReadOnly)
	assert.True(t, cals[1].ReadOnly, "reader access maps to read-only")
	assert.False(t, cals[2].Visible, "hidden calendars are kept but not visible")
}

func TestFetchChanges_SendsSyncToken(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/calendars/primary/events", r.URL.Path)
		require.Equal(t, "tok-1", r.URL.Query().Get("syncToken"))
		require.Equal(t, "true", r.URL.Query().Get("showDeleted"))

		_ = json.NewEncoder(w).Encode(eventsResponse{
			Items: []eventDTO{
				{ID: "e1", Summary: "One", Start: &eventDateTime{DateTime: "2026-03-02T10:00:00Z"}},
				{ID: "e2", Status: statusCancelled},
			},
			NextSyncToken: "tok-2",
		})
	}))

	cs, err := a.FetchChanges(context.Background(), domain.Calendar{ID: "primary"}, "tok-1", "")
	require.NoError(t, err)

	require.Len(t, cs.Events, 2)
	assert.False(t, cs.Events[0].Cancelled)
	assert.True(t, cs.Events[1].Cancelled)
	assert.Equal(t, "tok-2", cs.NextSyncToken)
	assert.False(t, cs.HasMore)
}

func TestFetchChanges_PageTokenReplacesSyncToken(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "page-2", r.URL.Query().Get("pageToken"))
		require.Empty(t, r.URL.Query().Get("syncToken"))

		_ = json.NewEncoder(w).Encode(eventsResponse{NextSyncToken: "tok-2"})
	}))

	_, err := a.FetchChanges(context.Background(), domain.Calendar{ID: "primary"}, "tok-1", "page-2")
	require.NoError(t, err)
}

func TestFetchChanges_ExpiredTokenSurfacesAsCategory(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
		_, _ = w.Write([]byte(`{"error":{"code":410,"message":"Sync token is no longer valid"}}`))
	}))

	_, err := a.FetchChanges(context.Background(), domain.Calendar{ID: "primary"}, "stale", "")
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryTokenExpired))
	assert.Contains(t, err.Error(), "no longer valid")
}

func TestFetchChanges_RateLimitIsRetryable(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := a.FetchChanges(context.Background(), domain.Calendar{ID: "primary"}, "tok", "")
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryRateLimited))
	assert.True(t, domain.CategoryOf(err).Retryable())
}

func TestFetchChanges_MalformedItemIsSkipped(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(eventsResponse{
			Items: []eventDTO{
				{ID: "broken"}, // no start
				{ID: "ok", Start: &eventDateTime{DateTime: "2026-03-02T10:00:00Z"}},
			},
		})
	}))

	cs, err := a.FetchChanges(context.Background(), domain.Calendar{ID: "primary"}, "tok", "")
	require.NoError(t, err)
	require.Len(t, cs.Events, 1)
	assert.Equal(t, "ok", cs.Events[0].RemoteID)
}

func TestFetchRange_PaginatesAndReturnsFinalToken(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.NotEmpty(t, q.Get("timeMin"))
		require.NotEmpty(t, q.Get("timeMax"))

		if q.Get("pageToken") == "" {
			_ = json.NewEncoder(w).Encode(eventsResponse{
				Items:         []eventDTO{{ID: "e1", Start: &eventDateTime{DateTime: "2026-03-02T10:00:00Z"}}},
				NextPageToken: "page-2",
			})
			return
		}
		_ = json.NewEncoder(w).Encode(eventsResponse{
			Items:         []eventDTO{{ID: "e2", Start: &eventDateTime{DateTime: "2026-03-03T10:00:00Z"}}},
			NextSyncToken: "tok-after-range",
		})
	}))

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	events, token, err := a.FetchRange(context.Background(), domain.Calendar{ID: "primary"}, start, start.AddDate(0, 2, 0))
	require.NoError(t, err)

	assert.Len(t, events, 2)
	assert.Equal(t, "tok-after-range", token)
}

func TestPush_CreateAndUpdate(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dto eventDTO
		require.NoError(t, json.NewDecoder(r.Body).Decode(&dto))

		switch r.Method {
		case http.MethodPost:
			require.Equal(t, "/calendars/primary/events", r.URL.Path)
			require.Empty(t, r.Header.Get("If-Match"))
			dto.ID, dto.ETag = "created-id", `"etag-1"`
		case http.MethodPut:
			require.Equal(t, "/calendars/primary/events/created-id", r.URL.Path)
			require.Equal(t, `"etag-1"`, r.Header.Get("If-Match"))
			dto.ID, dto.ETag = "created-id", `"etag-2"`
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
		_ = json.NewEncoder(w).Encode(dto)
	}))

	cal := domain.Calendar{ID: "primary"}
	event := &domain.CalendarEvent{
		UID:   "uid-1",
		Title: "New event",
		Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
	}

	created, err := a.Push(context.Background(), cal, event)
	require.NoError(t, err)
	assert.Equal(t, "created-id", created.RemoteID)

	event.RemoteID, event.ETag = created.RemoteID, created.ETag
	updated, err := a.Push(context.Background(), cal, event)
	require.NoError(t, err)
	assert.Equal(t, `"etag-2"`, updated.ETag)
}

func TestPush_PreconditionFailed(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusPreconditionFailed)
	}))

	_, err := a.Push(context.Background(), domain.Calendar{ID: "primary"}, &domain.CalendarEvent{
		UID: "uid-1", RemoteID: "e1", ETag: `"stale"`,
		Start: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryPreconditionFailed))
}

func TestDelete_AlreadyGoneIsSuccess(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNotFound)
	}))

	err := a.Delete(context.Background(), domain.Calendar{ID: "primary"}, "e1", `"etag"`)
	assert.NoError(t, err)
}

func TestAuthenticate_MapsUnauthorized(t *testing.T) {
	a := newTestAdapter(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	err := a.Authenticate(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsCategory(err, domain.CategoryAuth))
	assert.True(t, domain.CategoryOf(err).Fatal())
}
