package caldav

import (
	"errors"
	"testing"

	"calsync/internal/domain"
	"github.com/emersion/go-webdav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_KeepsHTTPStatusCategory(t *testing.T) {
	cases := []struct {
		name string
		code int
		want domain.ErrorCategory
	}{
		{"unauthorized", 401, domain.CategoryAuth},
		{"forbidden", 403, domain.CategoryAuth},
		{"gone", 410, domain.CategoryTokenExpired},
		{"service unavailable", 503, domain.CategoryServer},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classify(webdav.NewHTTPError(tc.code, errors.New("upstream")), "find calendars")

			var se *domain.SyncError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.want, se.Category)
		})
	}
}

func TestClassify_PlainErrorIsNetwork(t *testing.T) {
	err := classify(errors.New("connection reset"), "calendar query")

	var se *domain.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, domain.CategoryNetwork, se.Category)
	assert.True(t, se.Category.Retryable())
}

func TestClassify_SyncErrorPassesThrough(t *testing.T) {
	orig := &domain.SyncError{Category: domain.CategoryPreconditionFailed, Message: "HTTP 412"}

	var se *domain.SyncError
	require.ErrorAs(t, classify(orig, "put object"), &se)
	assert.Same(t, orig, se)
}
