package domain

import (
	"time"
)

// RunStatus is the terminal outcome of one pipeline run.
type RunStatus string

const (
	RunSuccess        RunStatus = "success"
	RunPartialSuccess RunStatus = "partial_success"
	RunError          RunStatus = "error"
)

// SyncResult is the immutable record of a completed pipeline run.
type SyncResult struct {
	Downloaded int
	Inserted   int
	Updated    int
	Deleted    int
	Uploaded   int
	Conflicts  int

	Errors      []*SyncError
	StartedAt   time.Time
	Duration    time.Duration
	Incremental bool
	Status      RunStatus
}

// Record appends a typed error to the run, keeping arrival order.
func (r *SyncResult) Record(err *SyncError) {
	r.Errors = append(r.Errors, err)
}

// Merge folds a per-calendar result into the aggregate.
func (r *SyncResult) Merge(other *SyncResult) {
	r.Downloaded += other.Downloaded
	r.Inserted += other.Inserted
	r.Updated += other.Updated
	r.Deleted += other.Deleted
	r.Uploaded += other.Uploaded
	r.Conflicts += other.Conflicts
	r.Errors = append(r.Errors, other.Errors...)
}

// Succeeded reports whether anything at all was accomplished, used to pick
// between partial success and outright failure.
func (r *SyncResult) Succeeded() bool {
	return r.Downloaded > 0 || r.Inserted > 0 || r.Updated > 0 ||
		r.Deleted > 0 || r.Uploaded > 0
}

// LastError returns the most recent error, retained for display even on
// partial success.
func (r *SyncResult) LastError() *SyncError {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[len(r.Errors)-1]
}
