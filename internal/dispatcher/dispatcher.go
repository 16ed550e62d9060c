// Package dispatcher drives crawl execution: a periodic tick that finds due
// sources, a manual trigger entry point, and the bounded worker pool both
// feed into.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/metrics"
	"github.com/linkhoard/feedwatch/internal/registry"
	"github.com/linkhoard/feedwatch/internal/schedule"
)

// CrawlRunner executes one run for an acquired source.
type CrawlRunner interface {
	Crawl(ctx context.Context, src feed.Source)
}

// Config controls Dispatcher behavior.
type Config struct {
	TickInterval time.Duration
	Workers      int
	QueueDepth   int
}

// task carries a source to a worker. A manually triggered source arrives
// already acquired; tick candidates are acquired by the worker so stale
// queue entries lose cleanly to whoever got there first.
type task struct {
	src      feed.Source
	acquired bool
}

// Dispatcher owns the tick loop and the worker pool.
type Dispatcher struct {
	store    feed.Store
	registry *registry.Registry
	runner   CrawlRunner
	clock    feed.Clock
	cfg      Config
	tasks    chan task
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(store feed.Store, reg *registry.Registry, runner CrawlRunner, clock feed.Clock, cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	return &Dispatcher{
		store:    store,
		registry: reg,
		runner:   runner,
		clock:    clock,
		cfg:      cfg,
		tasks:    make(chan task, cfg.QueueDepth),
		logger:   logger,
	}
}

// Run starts the worker pool and the tick loop, blocking until the context
// finishes and all workers have drained. Sources left in running state by a
// previous process are reset first so the acquisition guard can see them
// again.
func (d *Dispatcher) Run(ctx context.Context) {
	if n, err := d.store.ResetRunningSources(ctx); err != nil {
		d.logger.Error("reset stale running sources failed", zap.Error(err))
	} else if n > 0 {
		d.logger.Warn("reset stale running sources", zap.Int("count", n))
	}

	var wg sync.WaitGroup
	for i := 0; i < d.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.workerLoop(ctx)
		}()
	}

	ticker := time.NewTicker(d.cfg.TickInterval)
	defer ticker.Stop()

	d.logger.Info("dispatcher started",
		zap.Duration("tick_interval", d.cfg.TickInterval),
		zap.Int("workers", d.cfg.Workers),
	)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			d.drainQueue(ctx)
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick evaluates every crawlable source against its schedule and submits
// the due ones. Exported so tests can drive ticks without real time.
func (d *Dispatcher) Tick(ctx context.Context) {
	started := time.Now()
	defer func() {
		metrics.ObserveTick(time.Since(started))
	}()
	now := d.clock.Now()

	sources, err := d.store.ListCrawlableSources(ctx)
	if err != nil {
		// Nothing here may halt future ticks; log and wait for the next one.
		d.logger.Error("list crawlable sources failed", zap.Error(err))
		return
	}

	settingsCache := make(map[string]feed.Settings)
	due := 0
	for _, src := range sources {
		settings, ok := settingsCache[src.OwnerID]
		if !ok {
			settings, err = d.store.GetSettings(ctx, src.OwnerID)
			if err != nil {
				d.logger.Error("load settings failed",
					zap.String("owner_id", src.OwnerID),
					zap.Error(err),
				)
				continue
			}
			settingsCache[src.OwnerID] = settings
		}
		if !settings.Enabled {
			continue
		}
		if !schedule.IsDue(src, settings, now) {
			continue
		}
		due++
		select {
		case d.tasks <- task{src: src}:
		case <-ctx.Done():
			return
		default:
			// Pool saturated; the source stays due and the next tick retries.
			d.logger.Warn("task queue full, deferring source",
				zap.String("source_id", src.ID),
			)
		}
	}
	if due > 0 {
		d.logger.Debug("tick evaluated", zap.Int("sources", len(sources)), zap.Int("due", due))
	}
}

// TriggerNow runs one source out of band. It bypasses the schedule but not
// the active/running guard: refusal is returned synchronously, never queued.
func (d *Dispatcher) TriggerNow(ctx context.Context, ownerID, sourceID string) error {
	src, err := d.registry.TryAcquire(ctx, ownerID, sourceID)
	if err != nil {
		switch {
		case errors.Is(err, feed.ErrSourceRunning):
			metrics.ObserveTriggerRefusal("running")
		case errors.Is(err, feed.ErrSourceInactive):
			metrics.ObserveTriggerRefusal("inactive")
		case errors.Is(err, feed.ErrNotFound):
			metrics.ObserveTriggerRefusal("not_found")
		}
		return err
	}

	select {
	case d.tasks <- task{src: src, acquired: true}:
		d.logger.Info("manual trigger accepted",
			zap.String("owner_id", ownerID),
			zap.String("source_id", sourceID),
		)
		return nil
	case <-ctx.Done():
		// Undo the acquisition so the source is not stuck running. The
		// request context is already done, so release on a fresh one.
		if relErr := d.registry.Release(context.WithoutCancel(ctx), ownerID, sourceID, feed.OutcomeFailed, "trigger canceled before execution"); relErr != nil {
			d.logger.Error("release after canceled trigger failed", zap.Error(relErr))
		}
		return fmt.Errorf("trigger canceled: %w", ctx.Err())
	}
}

// drainQueue empties the task channel after the workers have exited. Tasks
// from a tick were never acquired and need nothing; a queued manual trigger
// holds the acquisition and must be released, or the source would stay in
// running state past the shutdown.
func (d *Dispatcher) drainQueue(ctx context.Context) {
	for {
		select {
		case t := <-d.tasks:
			if !t.acquired {
				continue
			}
			if err := d.registry.Release(context.WithoutCancel(ctx), t.src.OwnerID, t.src.ID, feed.OutcomeFailed, "shutdown before execution"); err != nil {
				d.logger.Error("release queued source at shutdown failed",
					zap.String("source_id", t.src.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}

func (d *Dispatcher) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			src := t.src
			if !t.acquired {
				acquired, err := d.registry.TryAcquire(ctx, src.OwnerID, src.ID)
				if err != nil {
					// Lost the race to a manual trigger or a prior tick.
					d.logger.Debug("skipping source",
						zap.String("source_id", src.ID),
						zap.Error(err),
					)
					continue
				}
				src = acquired
			}
			d.runner.Crawl(ctx, src)
		}
	}
}
