package sync

import (
	"strings"

	"calsync/internal/domain"
	"calsync/internal/provider"
)

// Policy selects which side wins when both the local copy and the remote
// item changed since the last sync.
type Policy string

const (
	PolicyLastWriteWins Policy = "last_write_wins"
	PolicyPreferLocal   Policy = "prefer_local"
	PolicyPreferRemote  Policy = "prefer_remote"
)

// ParsePolicy maps a config string to a policy, defaulting to
// last-write-wins.
func ParsePolicy(s string) Policy {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyPreferLocal:
		return PolicyPreferLocal
	case PolicyPreferRemote:
		return PolicyPreferRemote
	default:
		return PolicyLastWriteWins
	}
}

// Resolution is the per-event outcome of conflict resolution.
type Resolution int

const (
	// TakeRemote replaces local content with the remote item and clears
	// NeedsSync.
	TakeRemote Resolution = iota
	// KeepLocal retains local content with NeedsSync still set, so the local
	// edit is pushed upstream in the same run.
	KeepLocal
)

// Resolver decides, per event, whether local or remote wins.
type Resolver struct {
	policy Policy
}

// NewResolver -.
func NewResolver(policy Policy) *Resolver {
	return &Resolver{policy: policy}
}

// Resolve picks a side for an event that is locally dirty while a remote
// change for it arrived. Under last-write-wins the strictly later timestamp
// wins; an exact tie goes to remote, which is already the version persisted
// upstream.
func (r *Resolver) Resolve(local *domain.CalendarEvent, remote provider.RemoteEvent) Resolution {
	switch r.policy {
	case PolicyPreferLocal:
		return KeepLocal
	case PolicyPreferRemote:
		return TakeRemote
	default:
		if local.UpdatedAt.After(remote.LastModified()) {
			return KeepLocal
		}
		return TakeRemote
	}
}
