// Package status tracks indexer health: consecutive failures,
// exponential backoff and per-indexer priority.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/indexer/types"
)

// BackoffConfig controls failure escalation.
type BackoffConfig struct {
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultBackoffConfig returns the default escalation policy.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialBackoff: 5 * time.Minute,
		Multiplier:     2.0,
		MaxBackoff:     3 * time.Hour,
	}
}

// Store persists status records. The tracker works without one; the
// storage collaborator is external to this core.
type Store interface {
	SaveStatus(ctx context.Context, status types.IndexerStatus) error
}

// DefaultPriority is assumed for indexers that never declared one.
const DefaultPriority = 25

// Tracker records indexer outcomes and answers backoff queries.
type Tracker struct {
	config BackoffConfig
	store  Store
	logger zerolog.Logger

	mu       sync.RWMutex
	statuses map[int64]*types.IndexerStatus
}

// NewTracker creates a tracker with the default backoff configuration.
func NewTracker(logger zerolog.Logger) *Tracker {
	return NewTrackerWithConfig(DefaultBackoffConfig(), logger)
}

// NewTrackerWithConfig creates a tracker with a custom policy.
func NewTrackerWithConfig(config BackoffConfig, logger zerolog.Logger) *Tracker {
	return &Tracker{
		config:   config,
		logger:   logger.With().Str("component", "indexer-status").Logger(),
		statuses: make(map[int64]*types.IndexerStatus),
	}
}

// SetStore attaches an external persistence collaborator.
func (t *Tracker) SetStore(store Store) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.store = store
}

// RecordSuccess clears any failure state for the indexer.
func (t *Tracker) RecordSuccess(ctx context.Context, indexerID int64) {
	t.mu.Lock()
	st := t.getOrCreateLocked(indexerID)
	now := time.Now()
	st.ConsecutiveFailures = 0
	st.BackoffUntil = nil
	st.LastSuccess = &now
	st.LastError = ""
	snapshot := *st
	store := t.store
	t.mu.Unlock()

	t.persist(ctx, store, snapshot)

	t.logger.Debug().Int64("indexerId", indexerID).Msg("Recorded successful indexer operation")
}

// RecordFailure advances the failure count and extends the backoff.
func (t *Tracker) RecordFailure(ctx context.Context, indexerID int64, opError error) {
	t.mu.Lock()
	st := t.getOrCreateLocked(indexerID)
	st.ConsecutiveFailures++
	backoff := t.backoffFor(st.ConsecutiveFailures)
	until := time.Now().Add(backoff)
	st.BackoffUntil = &until
	if opError != nil {
		st.LastError = opError.Error()
	}
	snapshot := *st
	store := t.store
	t.mu.Unlock()

	t.persist(ctx, store, snapshot)

	t.logger.Warn().
		Int64("indexerId", indexerID).
		Int("consecutiveFailures", snapshot.ConsecutiveFailures).
		Dur("backoff", backoff).
		Time("backoffUntil", until).
		Err(opError).
		Msg("Recorded indexer failure, applying backoff")
}

// CanUse reports whether the indexer is currently outside its backoff
// window.
func (t *Tracker) CanUse(indexerID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[indexerID]
	if !ok || st.BackoffUntil == nil {
		return true
	}
	return !time.Now().Before(*st.BackoffUntil)
}

// IsEnabled reports the enabled flag; indexers default to enabled.
func (t *Tracker) IsEnabled(indexerID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.statuses[indexerID]
	if !ok {
		return true
	}
	return st.Enabled
}

// SetEnabled flips the enabled flag.
func (t *Tracker) SetEnabled(indexerID int64, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.getOrCreateLocked(indexerID)
	st.Enabled = enabled
}

// Status returns a copy of the last known state for an indexer.
func (t *Tracker) Status(indexerID int64) types.IndexerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if st, ok := t.statuses[indexerID]; ok {
		return *st
	}
	return types.IndexerStatus{IndexerID: indexerID, Enabled: true, Priority: DefaultPriority}
}

// Snapshot returns copies of all tracked statuses.
func (t *Tracker) Snapshot() []types.IndexerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.IndexerStatus, 0, len(t.statuses))
	for _, st := range t.statuses {
		out = append(out, *st)
	}
	return out
}

func (t *Tracker) getOrCreateLocked(indexerID int64) *types.IndexerStatus {
	if st, ok := t.statuses[indexerID]; ok {
		return st
	}
	st := &types.IndexerStatus{
		IndexerID: indexerID,
		Enabled:   true,
		Priority:  DefaultPriority,
	}
	t.statuses[indexerID] = st
	return st
}

func (t *Tracker) backoffFor(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	backoff := t.config.InitialBackoff
	for i := 1; i < failures; i++ {
		backoff = time.Duration(float64(backoff) * t.config.Multiplier)
		if backoff >= t.config.MaxBackoff {
			return t.config.MaxBackoff
		}
	}
	return backoff
}

func (t *Tracker) persist(ctx context.Context, store Store, snapshot types.IndexerStatus) {
	if store == nil {
		return
	}
	if err := store.SaveStatus(ctx, snapshot); err != nil {
		t.logger.Warn().Err(err).Int64("indexerId", snapshot.IndexerID).Msg("Failed to persist indexer status")
	}
}
