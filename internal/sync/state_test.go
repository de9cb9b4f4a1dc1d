package sync

import (
	"testing"

	"calsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_InitialState(t *testing.T) {
	tr := NewTracker()

	state := tr.State()
	assert.Equal(t, domain.StatusIdle, state.Status)
	assert.Equal(t, domain.PhaseIdle, state.Phase)
}

func TestTracker_PhaseUpdatesReachSubscribers(t *testing.T) {
	tr := NewTracker()

	ch, cancel := tr.Subscribe()
	defer cancel()

	tr.Phase(domain.PhaseDownloading, "downloading", 0.3)

	got := <-ch
	assert.Equal(t, domain.StatusRunning, got.Status)
	assert.Equal(t, domain.PhaseDownloading, got.Phase)
	assert.Equal(t, 0.3, got.Progress)
	assert.Equal(t, got, tr.State())
}

func TestTracker_FinishMapsRunStatus(t *testing.T) {
	for _, tc := range []struct {
		run  domain.RunStatus
		want domain.SyncStatus
	}{
		{domain.RunSuccess, domain.StatusSuccess},
		{domain.RunPartialSuccess, domain.StatusPartial},
		{domain.RunError, domain.StatusFailed},
	} {
		tr := NewTracker()
		tr.Finish(&domain.SyncResult{Status: tc.run})
		assert.Equal(t, tc.want, tr.State().Status)
		assert.Equal(t, domain.PhaseDone, tr.State().Phase)
	}
}

func TestTracker_FinishRetainsLastError(t *testing.T) {
	tr := NewTracker()

	result := &domain.SyncResult{Status: domain.RunPartialSuccess}
	result.Record(&domain.SyncError{Category: domain.CategoryServer, Message: "HTTP 503"})
	tr.Finish(result)

	assert.Contains(t, tr.State().Error, "HTTP 503")
}

func TestTracker_CancelledSubscriberIsDropped(t *testing.T) {
	tr := NewTracker()

	ch, cancel := tr.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic on the closed channel.
	tr.Phase(domain.PhaseMerging, "merging", 0.5)
}
