// Package executor implements the crawl pipeline for one acquired source.
package executor

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/metrics"
	"github.com/linkhoard/feedwatch/internal/notify"
	"github.com/linkhoard/feedwatch/internal/registry"
)

// Config controls Executor behavior.
type Config struct {
	// DefaultMaxItems applies when the owner's settings are unreadable.
	DefaultMaxItems int
	// ArchivePrefix is the key prefix for archived raw documents.
	ArchivePrefix string
}

// Executor runs the fetch -> dedup -> cap -> enrich -> persist pipeline and
// releases the source when done. The caller must have acquired the source
// through the registry first.
type Executor struct {
	store    feed.Store
	registry *registry.Registry
	fetcher  feed.Fetcher
	enricher feed.Enricher
	archive  feed.BlobStore
	notifier *notify.Notifier
	ids      feed.IDGenerator
	clock    feed.Clock
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Executor.
func New(
	store feed.Store,
	reg *registry.Registry,
	fetcher feed.Fetcher,
	enricher feed.Enricher,
	archive feed.BlobStore,
	notifier *notify.Notifier,
	ids feed.IDGenerator,
	clock feed.Clock,
	cfg Config,
	logger *zap.Logger,
) *Executor {
	if cfg.DefaultMaxItems <= 0 {
		cfg.DefaultMaxItems = 10
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "feeds"
	}
	return &Executor{
		store:    store,
		registry: reg,
		fetcher:  fetcher,
		enricher: enricher,
		archive:  archive,
		notifier: notifier,
		ids:      ids,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Crawl executes one run for an acquired source. The source always ends the
// run released: completed when fetch and parse succeeded (even with zero
// new items), failed on fetch-level or persistence failure.
func (e *Executor) Crawl(ctx context.Context, src feed.Source) {
	metrics.CrawlStarted()
	defer metrics.CrawlFinished()

	log := e.logger.With(
		zap.String("owner_id", src.OwnerID),
		zap.String("source_id", src.ID),
	)

	inserted, runErr := e.run(ctx, src, log)
	outcome := feed.OutcomeCompleted
	errText := ""
	if runErr != nil {
		outcome = feed.OutcomeFailed
		errText = runErr.Error()
		log.Warn("crawl run failed", zap.Error(runErr))
	}
	metrics.ObserveRun(string(outcome))

	// Release must succeed even when the run context was canceled mid-crawl,
	// or the source stays stuck in running state across a shutdown.
	if err := e.registry.Release(context.WithoutCancel(ctx), src.OwnerID, src.ID, outcome, errText); err != nil {
		log.Error("release source failed", zap.Error(err))
	}

	// Fan-out happens after release so a slow endpoint cannot hold the
	// source in running state.
	if runErr == nil && len(inserted) > 0 {
		e.notifier.FanOut(ctx, src, inserted)
	}
}

func (e *Executor) run(ctx context.Context, src feed.Source, log *zap.Logger) ([]feed.Article, error) {
	maxItems := e.maxItems(ctx, src.OwnerID)

	result, err := e.fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", src.FeedURL, err)
	}

	e.archiveRaw(ctx, src, result.Raw, log)

	if result.NotModified {
		log.Debug("feed not modified")
		return nil, nil
	}

	fresh, err := e.selectNewEntries(ctx, src, result.Entries, maxItems, log)
	if err != nil {
		return nil, err
	}

	articles, err := e.buildArticles(ctx, src, fresh, log)
	if err != nil {
		return nil, err
	}

	if len(articles) > 0 {
		if err := e.store.InsertArticles(ctx, articles); err != nil {
			return nil, fmt.Errorf("persist articles: %w", err)
		}
		metrics.AddArticlesIngested(len(articles))
	}

	title := ""
	if src.Title == "" {
		title = result.FeedTitle
	}
	if err := e.store.SetSourceFetchMeta(ctx, src.OwnerID, src.ID, result.ETag, result.LastModified, title); err != nil {
		log.Warn("store fetch metadata failed", zap.Error(err))
	}

	log.Info("crawl run finished",
		zap.Int("entries", len(result.Entries)),
		zap.Int("ingested", len(articles)),
	)
	return articles, nil
}

func (e *Executor) maxItems(ctx context.Context, ownerID string) int {
	settings, err := e.store.GetSettings(ctx, ownerID)
	if err != nil || settings.MaxItemsPerSource <= 0 {
		return e.cfg.DefaultMaxItems
	}
	return settings.MaxItemsPerSource
}

// archiveRaw stores the fetched document. Archive failure is transient
// infrastructure and never fails the run.
func (e *Executor) archiveRaw(ctx context.Context, src feed.Source, raw []byte, log *zap.Logger) {
	if e.archive == nil || len(raw) == 0 {
		return
	}
	runID, err := e.ids.NewID()
	if err != nil {
		log.Warn("generate archive run id failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%s/%s.xml", e.cfg.ArchivePrefix, src.ID, runID)
	if _, err := e.archive.Put(ctx, path, "application/xml", raw); err != nil {
		log.Warn("archive raw feed failed", zap.Error(err))
	}
}

// selectNewEntries drops already-seen guids, then keeps at most maxItems of
// the remainder, newest published first with feed order as the tie-break.
// Overflow entries are simply not ingested this cycle.
func (e *Executor) selectNewEntries(ctx context.Context, src feed.Source, entries []feed.Entry, maxItems int, log *zap.Logger) ([]feed.Entry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	guids := make([]string, 0, len(entries))
	for _, entry := range entries {
		guids = append(guids, entry.GUID)
	}
	existing, err := e.store.ExistingGUIDs(ctx, src.ID, guids)
	if err != nil {
		return nil, fmt.Errorf("check existing guids: %w", err)
	}

	var fresh []feed.Entry
	seen := make(map[string]bool, len(entries))
	duplicates := 0
	for _, entry := range entries {
		if existing[entry.GUID] || seen[entry.GUID] {
			duplicates++
			continue
		}
		seen[entry.GUID] = true
		fresh = append(fresh, entry)
	}
	metrics.AddEntriesSkipped("duplicate", duplicates)

	// Stable sort preserves feed order for equal or missing timestamps.
	sort.SliceStable(fresh, func(i, j int) bool {
		pi, pj := fresh[i].PublishedAt, fresh[j].PublishedAt
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})

	if len(fresh) > maxItems {
		metrics.AddEntriesSkipped("overflow", len(fresh)-maxItems)
		log.Debug("capping new entries",
			zap.Int("new", len(fresh)),
			zap.Int("max", maxItems),
		)
		fresh = fresh[:maxItems]
	}
	return fresh, nil
}

// buildArticles enriches each kept entry and assembles article rows.
// Enrichment failure downgrades the entry to raw content; it never drops it.
func (e *Executor) buildArticles(ctx context.Context, src feed.Source, entries []feed.Entry, log *zap.Logger) ([]feed.Article, error) {
	now := e.clock.Now()
	articles := make([]feed.Article, 0, len(entries))
	for _, entry := range entries {
		id, err := e.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate article id: %w", err)
		}

		summary := entry.Summary
		content := entry.Content
		enrichment, err := e.enricher.Enrich(ctx, entry)
		if err != nil {
			metrics.ObserveEnrichmentFailure()
			log.Warn("enrichment failed, keeping raw content",
				zap.String("guid", entry.GUID),
				zap.Error(err),
			)
			summary = ""
		} else {
			if enrichment.Summary != "" {
				summary = enrichment.Summary
			}
			if enrichment.FormattedContent != "" {
				content = enrichment.FormattedContent
			}
		}

		articles = append(articles, feed.Article{
			ID:               id,
			SourceID:         src.ID,
			OwnerID:          src.OwnerID,
			Title:            entry.Title,
			Summary:          summary,
			FormattedContent: content,
			URL:              entry.Link,
			GUID:             entry.GUID,
			ImageURL:         entry.ImageURL,
			PublishedAt:      entry.PublishedAt,
			CreatedAt:        now,
		})
	}
	return articles, nil
}
