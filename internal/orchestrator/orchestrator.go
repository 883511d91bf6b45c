package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/appbridge/appbridge/internal/api"
	"github.com/appbridge/appbridge/internal/catalog"
	"github.com/appbridge/appbridge/internal/fetcher"
	"github.com/appbridge/appbridge/internal/store"
)

// ErrAlreadySyncing is returned when a sync is requested for a source
// (or for all sources) while one is still in flight. Requests are never
// queued; callers retry after the in-flight sync completes.
var ErrAlreadySyncing = errors.New("sync already in progress")

// Config controls sync scheduling and fan-out.
type Config struct {
	Interval    time.Duration
	Concurrency int
}

// SyncStatus is the per-source view of the last sync attempt.
type SyncStatus struct {
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	LastSync   time.Time `json:"last_sync"`
	LastError  string    `json:"last_error,omitempty"`
	AppsLoaded int       `json:"apps_loaded"`
}

// PurgeResult reports the outcome of a cache purge and resync.
type PurgeResult struct {
	BytesBefore int64 `json:"bytes_before"`
	BytesAfter  int64 `json:"bytes_after"`
	Purged      int   `json:"repositories_purged"`
	SyncError   error `json:"-"`
}

// Orchestrator owns the catalog snapshot and coordinates fetches with
// rebuilds. Readers always see a complete snapshot; a rebuild swaps the
// pointer once, after the new snapshot is fully indexed.
type Orchestrator struct {
	store   store.Store
	fetcher *fetcher.Fetcher
	builder *catalog.Builder
	logger  *slog.Logger
	config  Config

	snapshot atomic.Pointer[catalog.Snapshot]

	mu       sync.Mutex
	inflight map[string]bool
	allBusy  bool
	statuses map[string]*SyncStatus
}

// New creates an orchestrator holding an empty snapshot. The snapshot
// pointer is valid (and empty) before the first sync completes.
func New(st store.Store, f *fetcher.Fetcher, b *catalog.Builder, logger *slog.Logger, cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	o := &Orchestrator{
		store:    st,
		fetcher:  f,
		builder:  b,
		logger:   logger,
		config:   cfg,
		inflight: make(map[string]bool),
		statuses: make(map[string]*SyncStatus),
	}
	o.snapshot.Store(catalog.EmptySnapshot())
	return o
}

// Snapshot returns the current catalog snapshot. The returned value is
// immutable and remains consistent for as long as the caller holds it.
func (o *Orchestrator) Snapshot() *catalog.Snapshot {
	return o.snapshot.Load()
}

// Run starts the periodic sync loop. A manual SyncAll or SyncOne does
// not reset the ticker.
func (o *Orchestrator) Run(ctx context.Context) {
	if o.config.Interval <= 0 {
		o.logger.Info("Periodic sync disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(o.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Sync loop stopped")
			return
		case <-ticker.C:
			if err := o.SyncAll(ctx); err != nil {
				if errors.Is(err, ErrAlreadySyncing) {
					o.logger.Debug("Skipping scheduled sync; previous sync still running")
					continue
				}
				o.logger.Error("Scheduled sync failed", "error", err)
			}
		}
	}
}

// SyncAll fetches every enabled source concurrently, then rebuilds the
// snapshot once from all checkouts. Individual fetch failures are
// recorded per source and do not abort the rebuild.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}

	var enabled []*api.Source
	for _, source := range sources {
		if source.Enabled {
			enabled = append(enabled, source)
		}
	}

	release, err := o.acquireAll(enabled)
	if err != nil {
		return err
	}
	defer release()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.Concurrency)
	for _, source := range enabled {
		source := source
		group.Go(func() error {
			o.fetchSource(groupCtx, source)
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	o.rebuild(sources)
	return nil
}

// SyncOne fetches a single source and rebuilds the snapshot from the
// on-disk state of all enabled sources. A fetch failure leaves the
// prior snapshot in place.
func (o *Orchestrator) SyncOne(ctx context.Context, id string) error {
	source, err := o.store.GetSource(ctx, id)
	if err != nil {
		return err
	}
	if !source.Enabled {
		return fmt.Errorf("source %s is disabled", source.Name)
	}

	release, err := o.acquireOne(source)
	if err != nil {
		return err
	}
	defer release()

	if err := o.fetchSource(ctx, source); err != nil {
		return err
	}

	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	o.rebuild(sources)
	return nil
}

// PurgeAll deletes every cached checkout, drops the snapshot to empty,
// and triggers a full resync. Size is measured before and after so the
// caller can report reclaimed space.
func (o *Orchestrator) PurgeAll(ctx context.Context) (*PurgeResult, error) {
	result := &PurgeResult{BytesBefore: o.fetcher.Size()}

	purged, err := o.fetcher.PurgeAll()
	if err != nil {
		return nil, fmt.Errorf("failed to purge cache: %w", err)
	}
	result.Purged = purged

	o.mu.Lock()
	o.statuses = make(map[string]*SyncStatus)
	o.mu.Unlock()
	o.snapshot.Store(catalog.EmptySnapshot())

	result.SyncError = o.SyncAll(ctx)
	result.BytesAfter = o.fetcher.Size()
	return result, nil
}

// DropSource removes a deleted source's checkout and status, then
// rebuilds the snapshot so its apps disappear immediately.
func (o *Orchestrator) DropSource(ctx context.Context, id string) error {
	if err := o.fetcher.Purge(id); err != nil {
		return fmt.Errorf("failed to purge checkout: %w", err)
	}

	o.mu.Lock()
	delete(o.statuses, id)
	o.mu.Unlock()

	sources, err := o.store.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sources: %w", err)
	}
	o.rebuild(sources)
	return nil
}

// CacheSize returns the total on-disk size of all checkouts in bytes.
func (o *Orchestrator) CacheSize() int64 {
	return o.fetcher.Size()
}

// SourceStatuses returns the per-source sync statuses, ordered by
// source name.
func (o *Orchestrator) SourceStatuses() []SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	statuses := make([]SyncStatus, 0, len(o.statuses))
	for _, status := range o.statuses {
		statuses = append(statuses, *status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].SourceName < statuses[j].SourceName
	})
	return statuses
}

// Status aggregates the global sync state for GET /status.
func (o *Orchestrator) Status() api.StatusResponse {
	snap := o.snapshot.Load()

	o.mu.Lock()
	defer o.mu.Unlock()

	response := api.StatusResponse{
		AppsLoaded: snap.Len(),
		Healthy:    true,
	}
	for _, status := range o.statuses {
		if status.LastError != "" {
			response.RecentErrors = append(response.RecentErrors, api.SourceError{
				SourceID:   status.SourceID,
				SourceName: status.SourceName,
				Error:      status.LastError,
				OccurredAt: status.LastSync,
			})
			continue
		}
		if status.LastSync.IsZero() {
			continue
		}
		response.RepositoriesSynced++
		if status.LastSync.After(response.LastSync) {
			response.LastSync = status.LastSync
		}
	}
	sort.Slice(response.RecentErrors, func(i, j int) bool {
		return response.RecentErrors[i].SourceName < response.RecentErrors[j].SourceName
	})
	if len(response.RecentErrors) > 0 && response.RepositoriesSynced == 0 {
		response.Healthy = false
	}
	return response
}

func (o *Orchestrator) acquireOne(source *api.Source) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.allBusy || o.inflight[source.ID] {
		return nil, ErrAlreadySyncing
	}
	o.inflight[source.ID] = true
	return func() {
		o.mu.Lock()
		delete(o.inflight, source.ID)
		o.mu.Unlock()
	}, nil
}

func (o *Orchestrator) acquireAll(sources []*api.Source) (func(), error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.allBusy || len(o.inflight) > 0 {
		return nil, ErrAlreadySyncing
	}
	o.allBusy = true
	for _, source := range sources {
		o.inflight[source.ID] = true
	}
	return func() {
		o.mu.Lock()
		o.allBusy = false
		for _, source := range sources {
			delete(o.inflight, source.ID)
		}
		o.mu.Unlock()
	}, nil
}

// fetchSource fetches one source and records the outcome, both in the
// in-memory status map and in the store. It never returns a nil status.
func (o *Orchestrator) fetchSource(ctx context.Context, source *api.Source) error {
	result, err := o.fetcher.Fetch(ctx, source)
	now := time.Now().UTC()

	status := &SyncStatus{
		SourceID:   source.ID,
		SourceName: source.Name,
		LastSync:   now,
	}
	if err != nil {
		status.LastError = err.Error()
		o.logger.Error("Source fetch failed", "source", source.Name, "error", err)
	} else {
		o.logger.Info("Source fetched", "source", source.Name, "commit", result.CommitRef)
	}

	o.mu.Lock()
	o.statuses[source.ID] = status
	o.mu.Unlock()

	if storeErr := o.store.UpdateSourceSyncState(ctx, source.ID, now, status.LastError); storeErr != nil {
		o.logger.Warn("Failed to persist sync state", "source", source.Name, "error", storeErr)
	}
	return err
}

// rebuild constructs a fresh snapshot from the on-disk checkouts of all
// enabled sources and publishes it atomically.
func (o *Orchestrator) rebuild(sources []*api.Source) {
	var checkouts []catalog.SourceCheckout
	for _, source := range sources {
		if !source.Enabled || !o.fetcher.HasCheckout(source.ID) {
			continue
		}
		checkouts = append(checkouts, catalog.SourceCheckout{
			SourceID:   source.ID,
			SourceName: source.Name,
			Priority:   source.Priority,
			Path:       o.fetcher.CheckoutPath(source.ID),
		})
	}

	snap := o.builder.Build(checkouts)

	counts := snap.CountBySource()
	o.mu.Lock()
	for _, checkout := range checkouts {
		if status, ok := o.statuses[checkout.SourceID]; ok {
			status.AppsLoaded = counts[checkout.SourceID]
		}
	}
	o.mu.Unlock()

	o.snapshot.Store(snap)
	o.logger.Info("Catalog rebuilt",
		"apps", snap.Len(),
		"sources", len(checkouts),
		"issues", len(snap.Issues()),
	)
}
