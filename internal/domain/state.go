package domain

// SyncPhase identifies the pipeline stage a run is in. Phases are strictly
// ordered; a run never moves backwards.
type SyncPhase string

const (
	PhaseIdle           SyncPhase = "idle"
	PhaseAuthenticating SyncPhase = "authenticating"
	PhaseFetchingCals   SyncPhase = "fetching_calendars"
	PhaseDownloading    SyncPhase = "downloading_events"
	PhaseMerging        SyncPhase = "merging"
	PhaseUploading      SyncPhase = "uploading_changes"
	PhaseDeletingRemote SyncPhase = "deleting_remote"
	PhaseFinalizing     SyncPhase = "finalizing"
	PhaseDone           SyncPhase = "done"
)

// SyncStatus is the coarse run state observable by a UI layer.
type SyncStatus string

const (
	StatusIdle    SyncStatus = "idle"
	StatusRunning SyncStatus = "running"
	StatusSuccess SyncStatus = "success"
	StatusPartial SyncStatus = "partial_success"
	StatusFailed  SyncStatus = "error"
)

// SyncState is a snapshot of the engine published to observers while a run
// progresses. Progress is in [0,1]; Message is human-readable.
type SyncState struct {
	Status   SyncStatus `json:"status"`
	Phase    SyncPhase  `json:"phase"`
	Progress float64    `json:"progress"`
	Message  string     `json:"message"`
	Error    string     `json:"error,omitempty"`
}
