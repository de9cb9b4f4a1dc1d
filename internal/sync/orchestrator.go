// Package sync implements the phased synchronization pipeline: authenticate,
// discover calendars, download changes, merge, upload local edits, propagate
// deletions, persist cursors.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"calsync/internal/domain"
	"calsync/internal/provider"
	"calsync/internal/storage"
	"calsync/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	_defaultRangePast    = 30 * 24 * time.Hour
	_defaultRangeFuture  = 365 * 24 * time.Hour
	_defaultMaxParallel  = 4
	_defaultPushRetries  = 3
	_defaultRetryBackoff = 2 * time.Second
)

// Config -.
type Config struct {
	// RangePast and RangeFuture bound the window of a full (token-less) fetch.
	RangePast   time.Duration
	RangeFuture time.Duration

	// MaxParallel caps concurrent per-calendar downloads.
	MaxParallel int

	// PushRetries and RetryBackoff govern retries of transient upload
	// failures (locked resources, 5xx, rate limits).
	PushRetries  int
	RetryBackoff time.Duration

	Policy Policy
}

func (c *Config) defaults() {
	if c.RangePast <= 0 {
		c.RangePast = _defaultRangePast
	}
	if c.RangeFuture <= 0 {
		c.RangeFuture = _defaultRangeFuture
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = _defaultMaxParallel
	}
	if c.PushRetries <= 0 {
		c.PushRetries = _defaultPushRetries
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = _defaultRetryBackoff
	}
}

// Orchestrator drives the pipeline. One run at a time per process: a trigger
// arriving while a run is active is rejected with domain.ErrSyncInProgress,
// never queued.
type Orchestrator struct {
	cfg      Config
	adapters map[domain.ProviderType]provider.Adapter
	events   storage.EventStore
	tokens   storage.TokenStore
	tracker  *Tracker
	merger   *merger
	logger   *logger.Logger

	running atomic.Bool

	mu         sync.RWMutex
	lastResult *domain.SyncResult
}

// New -.
func New(
	cfg Config,
	adapters []provider.Adapter,
	events storage.EventStore,
	tokens storage.TokenStore,
	l *logger.Logger,
) *Orchestrator {
	cfg.defaults()

	byType := make(map[domain.ProviderType]provider.Adapter, len(adapters))
	for _, a := range adapters {
		byType[a.Type()] = a
	}

	return &Orchestrator{
		cfg:      cfg,
		adapters: byType,
		events:   events,
		tokens:   tokens,
		tracker:  NewTracker(),
		merger:   &merger{events: events, resolver: NewResolver(cfg.Policy)},
		logger:   l,
	}
}

// Tracker exposes the state tracker for observers (HTTP status endpoint).
func (o *Orchestrator) Tracker() *Tracker { return o.tracker }

// LastResult returns the record of the most recently completed run, or nil if
// none has finished yet.
func (o *Orchestrator) LastResult() *domain.SyncResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.lastResult
}

// download holds the outcome of one calendar's download phase. Slots are
// written by their own goroutine only; the merge phase reads them serially.
type download struct {
	cal         domain.Calendar
	events      []provider.RemoteEvent
	token       string
	incremental bool
	// clean gates token persistence: a calendar whose download or merge hit
	// an error keeps its old cursor and retries the span next run.
	clean bool
}

// Run executes one full pipeline pass. It returns domain.ErrSyncInProgress
// when another run is already active.
func (o *Orchestrator) Run(ctx context.Context) (*domain.SyncResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer o.running.Store(false)

	return o.run(ctx)
}

// Start launches a run in the background. The concurrency check happens
// before returning, so callers can reject a duplicate trigger immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return domain.ErrSyncInProgress
	}

	go func() {
		defer o.running.Store(false)
		_, _ = o.run(ctx)
	}()
	return nil
}

func (o *Orchestrator) run(ctx context.Context) (*domain.SyncResult, error) {
	started := time.Now()
	result := &domain.SyncResult{StartedAt: started, Incremental: true}

	var downloads []*download

	finish := func() (*domain.SyncResult, error) {
		result.Duration = time.Since(started)
		result.Status = deriveStatus(result, downloads)

		o.mu.Lock()
		o.lastResult = result
		o.mu.Unlock()

		o.tracker.Finish(result)
		o.logger.Info("sync run finished",
			"status", string(result.Status),
			"downloaded", result.Downloaded,
			"uploaded", result.Uploaded,
			"conflicts", result.Conflicts,
			"errors", len(result.Errors),
			"duration", result.Duration.String(),
		)
		return result, ctx.Err()
	}

	o.tracker.Phase(domain.PhaseAuthenticating, "verifying provider credentials", 0.05)
	if err := o.authenticate(ctx, result); err != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseFetchingCals, "discovering calendars", 0.15)
	cals := o.fetchCalendars(ctx, result)
	if ctx.Err() != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseDownloading,
		fmt.Sprintf("downloading changes for %d calendars", len(cals)), 0.3)
	downloads = o.downloadAll(ctx, cals, result)
	if ctx.Err() != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseMerging, "merging remote changes", 0.55)
	o.mergeAll(ctx, downloads, result)
	if ctx.Err() != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseUploading, "uploading local edits", 0.7)
	o.uploadAll(ctx, cals, result)
	if ctx.Err() != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseDeletingRemote, "propagating local deletions", 0.85)
	o.deleteAll(ctx, cals, result)
	if ctx.Err() != nil {
		return finish()
	}

	o.tracker.Phase(domain.PhaseFinalizing, "persisting sync cursors", 0.95)
	o.finalize(ctx, downloads, result)

	return finish()
}

// authenticate verifies every configured adapter. Any failure aborts the run:
// proceeding with partially valid credentials would desynchronize providers.
func (o *Orchestrator) authenticate(ctx context.Context, result *domain.SyncResult) error {
	for typ, adapter := range o.adapters {
		if err := adapter.Authenticate(ctx); err != nil {
			o.logger.Error("authentication failed", "provider", string(typ), logger.Err(err))
			result.Record(asSyncError(err, ""))
			return err
		}
	}
	return nil
}

// fetchCalendars lists calendars from every adapter, persists them and
// returns the syncable set. A provider whose listing fails is dropped from
// this run; the others proceed.
func (o *Orchestrator) fetchCalendars(ctx context.Context, result *domain.SyncResult) []domain.Calendar {
	var cals []domain.Calendar

	for typ, adapter := range o.adapters {
		listed, err := adapter.ListCalendars(ctx)
		if err != nil {
			o.logger.Error("calendar listing failed", "provider", string(typ), logger.Err(err))
			result.Record(asSyncError(err, ""))
			continue
		}

		for _, cal := range listed {
			if err := o.events.UpsertCalendar(ctx, cal); err != nil {
				result.Record(asSyncError(err, cal.ID))
				continue
			}
			if cal.Syncable() {
				cals = append(cals, cal)
			}
		}
	}
	return cals
}

// downloadAll fetches changes for every calendar, bounded by MaxParallel.
// Failures are isolated per calendar.
func (o *Orchestrator) downloadAll(ctx context.Context, cals []domain.Calendar, result *domain.SyncResult) []*download {
	downloads := make([]*download, len(cals))
	errs := make([]*domain.SyncError, len(cals))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxParallel)

	for i, cal := range cals {
		i, cal := i, cal
		g.Go(func() error {
			d, err := o.downloadCalendar(gctx, cal)
			if err != nil {
				o.logger.Error("download failed", "calendar", cal.ID, logger.Err(err))
				errs[i] = asSyncError(err, cal.ID)
				downloads[i] = &download{cal: cal}
				return nil
			}
			downloads[i] = d
			return nil
		})
	}
	_ = g.Wait()

	for i, d := range downloads {
		if errs[i] != nil {
			result.Record(errs[i])
			continue
		}
		result.Downloaded += len(d.events)
		if !d.incremental {
			result.Incremental = false
		}
	}
	return downloads
}

// downloadCalendar pulls one calendar's changes: incremental via the stored
// token when one exists, otherwise a range-bounded full fetch. An expired
// token falls back to the full fetch within the same run.
func (o *Orchestrator) downloadCalendar(ctx context.Context, cal domain.Calendar) (*download, error) {
	adapter, ok := o.adapters[cal.Provider]
	if !ok {
		return nil, &domain.SyncError{
			Category:   domain.CategoryServer,
			CalendarID: cal.ID,
			Message:    "no adapter for provider " + string(cal.Provider),
		}
	}

	token, err := o.tokens.SyncToken(ctx, cal.Key())
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if token != "" {
		d, err := o.downloadIncremental(ctx, adapter, cal, token)
		switch {
		case err == nil:
			return d, nil
		case domain.IsCategory(err, domain.CategoryTokenExpired):
			o.logger.Warn("sync token expired, falling back to full fetch", "calendar", cal.ID)
			if err := o.tokens.ClearSyncToken(ctx, cal.Key()); err != nil {
				return nil, err
			}
		default:
			return nil, err
		}
	}

	return o.downloadRange(ctx, adapter, cal)
}

func (o *Orchestrator) downloadIncremental(ctx context.Context, adapter provider.Adapter, cal domain.Calendar, token string) (*download, error) {
	d := &download{cal: cal, incremental: true, clean: true}

	pageToken := ""
	for {
		cs, err := adapter.FetchChanges(ctx, cal, token, pageToken)
		if err != nil {
			return nil, err
		}

		d.events = append(d.events, cs.Events...)
		if cs.NextSyncToken != "" {
			d.token = cs.NextSyncToken
		}

		if !cs.HasMore {
			return d, nil
		}
		pageToken = cs.NextPageToken
	}
}

func (o *Orchestrator) downloadRange(ctx context.Context, adapter provider.Adapter, cal domain.Calendar) (*download, error) {
	now := time.Now()

	events, token, err := adapter.FetchRange(ctx, cal, now.Add(-o.cfg.RangePast), now.Add(o.cfg.RangeFuture))
	if err != nil {
		return nil, err
	}
	return &download{cal: cal, events: events, token: token, clean: true}, nil
}

// mergeAll folds every download into the store, serially. A merge error marks
// the calendar dirty so its cursor is not advanced.
func (o *Orchestrator) mergeAll(ctx context.Context, downloads []*download, result *domain.SyncResult) {
	now := time.Now()

	for _, d := range downloads {
		if !d.clean {
			continue
		}
		for _, remote := range d.events {
			if ctx.Err() != nil {
				d.clean = false
				return
			}
			if err := o.merger.apply(ctx, d.cal, remote, result, now); err != nil {
				o.logger.Error("merge failed",
					"calendar", d.cal.ID, "uid", remote.UID, logger.Err(err))
				result.Record(asSyncError(err, d.cal.ID))
				d.clean = false
			}
		}
	}
}

// uploadAll pushes dirty events of every writable calendar. A precondition
// failure counts as a conflict and leaves the event dirty; the next run merges
// the winning remote version first.
func (o *Orchestrator) uploadAll(ctx context.Context, cals []domain.Calendar, result *domain.SyncResult) {
	for _, cal := range cals {
		if !cal.Pushable() {
			continue
		}
		adapter := o.adapters[cal.Provider]

		dirty, err := o.events.GetDirty(ctx, cal.ID)
		if err != nil {
			result.Record(asSyncError(err, cal.ID))
			continue
		}

		for _, ev := range dirty {
			if ctx.Err() != nil {
				return
			}
			o.uploadOne(ctx, adapter, cal, ev, result)
		}
	}
}

func (o *Orchestrator) uploadOne(ctx context.Context, adapter provider.Adapter, cal domain.Calendar, ev *domain.CalendarEvent, result *domain.SyncResult) {
	pushed, err := o.withRetry(ctx, func() (*provider.PushResult, error) {
		return adapter.Push(ctx, cal, ev)
	})
	if err == nil {
		ev.MarkSynced(pushed.RemoteID, pushed.ETag, time.Now())
		if err := o.events.Update(ctx, ev); err != nil {
			result.Record(asSyncError(err, cal.ID))
			return
		}
		result.Uploaded++
		return
	}

	se := asSyncError(err, cal.ID)
	se.ItemUID = ev.UID

	switch se.Category {
	case domain.CategoryPreconditionFailed:
		// The remote copy moved underneath us. The event stays dirty; the
		// next run downloads the winner and resolves the conflict properly.
		result.Conflicts++
	case domain.CategoryNotFound:
		// Target vanished remotely; recreate on the next attempt.
		ev.RemoteID = ""
		ev.ETag = ""
		if uerr := o.events.Update(ctx, ev); uerr != nil {
			result.Record(asSyncError(uerr, cal.ID))
		}
	}

	o.logger.Error("upload failed", "calendar", cal.ID, "uid", ev.UID, logger.Err(err))
	result.Record(se)
}

// deleteAll propagates pending local deletions. Events never pushed upstream
// are dropped locally without a remote call.
func (o *Orchestrator) deleteAll(ctx context.Context, cals []domain.Calendar, result *domain.SyncResult) {
	for _, cal := range cals {
		if !cal.Pushable() {
			continue
		}
		adapter := o.adapters[cal.Provider]

		pending, err := o.events.GetDirtyDeleted(ctx, cal.ID)
		if err != nil {
			result.Record(asSyncError(err, cal.ID))
			continue
		}

		for _, ev := range pending {
			if ctx.Err() != nil {
				return
			}

			if ev.RemoteID != "" {
				_, err := o.withRetry(ctx, func() (*provider.PushResult, error) {
					return nil, adapter.Delete(ctx, cal, ev.RemoteID, ev.ETag)
				})
				if err != nil {
					se := asSyncError(err, cal.ID)
					se.ItemUID = ev.UID
					o.logger.Error("remote delete failed",
						"calendar", cal.ID, "uid", ev.UID, logger.Err(err))
					result.Record(se)
					continue
				}
			}

			if err := o.events.Remove(ctx, ev.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				result.Record(asSyncError(err, cal.ID))
				continue
			}
			result.Deleted++
		}
	}
}

// finalize persists sync cursors for calendars that completed cleanly, plus
// the per-calendar last-sync timestamp.
func (o *Orchestrator) finalize(ctx context.Context, downloads []*download, result *domain.SyncResult) {
	now := time.Now()

	for _, d := range downloads {
		if !d.clean {
			continue
		}
		if d.token != "" {
			if err := o.tokens.SaveSyncToken(ctx, d.cal.Key(), d.token); err != nil {
				result.Record(asSyncError(err, d.cal.ID))
				continue
			}
		}
		if err := o.tokens.SetLastSyncAt(ctx, d.cal.Key(), now); err != nil {
			result.Record(asSyncError(err, d.cal.ID))
		}
	}
}

// withRetry retries transient failures (locked, rate limited, 5xx) with a
// fixed backoff. Non-retryable categories surface immediately.
func (o *Orchestrator) withRetry(ctx context.Context, fn func() (*provider.PushResult, error)) (*provider.PushResult, error) {
	var lastErr error

	for attempt := 0; attempt < o.cfg.PushRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(o.cfg.RetryBackoff):
			}
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if !domain.CategoryOf(err).Retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

// deriveStatus grades the run. A calendar that completed cleanly counts as
// progress even when it carried zero changes, so one failing calendar next to
// a clean idle one is a partial success, not an error.
func deriveStatus(result *domain.SyncResult, downloads []*download) domain.RunStatus {
	if len(result.Errors) == 0 {
		return domain.RunSuccess
	}
	for _, d := range downloads {
		if d.clean {
			return domain.RunPartialSuccess
		}
	}
	if result.Succeeded() {
		return domain.RunPartialSuccess
	}
	return domain.RunError
}

func asSyncError(err error, calendarID string) *domain.SyncError {
	var se *domain.SyncError
	if errors.As(err, &se) {
		if se.CalendarID == "" {
			se.CalendarID = calendarID
		}
		return se
	}
	return &domain.SyncError{
		Category:   domain.CategoryOf(err),
		CalendarID: calendarID,
		Message:    err.Error(),
		Err:        err,
	}
}
