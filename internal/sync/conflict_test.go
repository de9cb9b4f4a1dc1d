package sync

import (
	"testing"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"github.com/stretchr/testify/assert"
)

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, PolicyLastWriteWins, ParsePolicy(""))
	assert.Equal(t, PolicyLastWriteWins, ParsePolicy("garbage"))
	assert.Equal(t, PolicyPreferLocal, ParsePolicy("prefer_local"))
	assert.Equal(t, PolicyPreferRemote, ParsePolicy(" Prefer_Remote "))
	assert.Equal(t, PolicyLastWriteWins, ParsePolicy("LAST_WRITE_WINS"))
}

func TestResolve_LastWriteWins(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolver(PolicyLastWriteWins)

	local := &domain.CalendarEvent{UpdatedAt: base.Add(time.Minute)}
	remote := provider.RemoteEvent{UpdatedAt: base}
	assert.Equal(t, KeepLocal, r.Resolve(local, remote))

	local.UpdatedAt = base.Add(-time.Minute)
	assert.Equal(t, TakeRemote, r.Resolve(local, remote))
}

func TestResolve_TieGoesToRemote(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolver(PolicyLastWriteWins)

	local := &domain.CalendarEvent{UpdatedAt: base}
	remote := provider.RemoteEvent{UpdatedAt: base}
	assert.Equal(t, TakeRemote, r.Resolve(local, remote))
}

func TestResolve_RemoteFallsBackToCreatedAt(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	r := NewResolver(PolicyLastWriteWins)

	local := &domain.CalendarEvent{UpdatedAt: base}
	remote := provider.RemoteEvent{CreatedAt: base.Add(time.Hour)}
	assert.Equal(t, TakeRemote, r.Resolve(local, remote))
}

func TestResolve_FixedPolicies(t *testing.T) {
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	local := &domain.CalendarEvent{UpdatedAt: base.Add(-time.Hour)}
	remote := provider.RemoteEvent{UpdatedAt: base}

	assert.Equal(t, KeepLocal, NewResolver(PolicyPreferLocal).Resolve(local, remote))

	local.UpdatedAt = base.Add(time.Hour)
	assert.Equal(t, TakeRemote, NewResolver(PolicyPreferRemote).Resolve(local, remote))
}
