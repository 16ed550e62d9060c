// Package registry enforces the one-run-per-source invariant.
package registry

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// Registry guards source run state. TryAcquire/Release is the single
// synchronization point between the automatic tick and manual triggers;
// the atomicity itself lives in the store's compare-and-set.
type Registry struct {
	store  feed.Store
	clock  feed.Clock
	logger *zap.Logger
}

// New creates a Registry.
func New(store feed.Store, clock feed.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// TryAcquire attempts to move the source into running state. On success it
// returns the source; otherwise it returns feed.ErrSourceInactive,
// feed.ErrSourceRunning or feed.ErrNotFound without mutating anything.
func (r *Registry) TryAcquire(ctx context.Context, ownerID, sourceID string) (feed.Source, error) {
	src, err := r.store.GetSource(ctx, ownerID, sourceID)
	if err != nil {
		return feed.Source{}, fmt.Errorf("get source: %w", err)
	}
	if !src.IsActive {
		return feed.Source{}, feed.ErrSourceInactive
	}

	acquired, err := r.store.TryAcquireSource(ctx, ownerID, sourceID)
	if err != nil {
		return feed.Source{}, fmt.Errorf("acquire source: %w", err)
	}
	if !acquired {
		return feed.Source{}, feed.ErrSourceRunning
	}

	src.Status = feed.StatusRunning
	r.logger.Debug("source acquired",
		zap.String("owner_id", ownerID),
		zap.String("source_id", sourceID),
	)
	return src, nil
}

// Release records the run outcome. lastRunAt is always advanced, even on
// failure: a failed attempt still counts as attempted for scheduling, so a
// permanently broken feed cannot hot-loop.
func (r *Registry) Release(ctx context.Context, ownerID, sourceID string, outcome feed.RunOutcome, runErr string) error {
	now := r.clock.Now()
	if err := r.store.ReleaseSource(ctx, ownerID, sourceID, outcome, now, runErr); err != nil {
		return fmt.Errorf("release source: %w", err)
	}
	r.logger.Debug("source released",
		zap.String("owner_id", ownerID),
		zap.String("source_id", sourceID),
		zap.String("outcome", string(outcome)),
	)
	return nil
}
