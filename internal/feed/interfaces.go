package feed

import (
	"context"
	"time"
)

// Store persists settings, sources, articles and push subscriptions.
type Store interface {
	// GetSettings returns the owner's settings, creating defaults on first access.
	GetSettings(ctx context.Context, ownerID string) (Settings, error)
	UpdateSettings(ctx context.Context, settings Settings) error

	CreateSource(ctx context.Context, src Source) error
	GetSource(ctx context.Context, ownerID, sourceID string) (Source, error)
	ListSources(ctx context.Context, ownerID string) ([]Source, error)
	UpdateSource(ctx context.Context, src Source) error
	// DeleteSource removes a source and cascades deletion of its articles.
	DeleteSource(ctx context.Context, ownerID, sourceID string) error
	// ListCrawlableSources returns active sources whose owner has crawling enabled.
	ListCrawlableSources(ctx context.Context) ([]Source, error)

	// TryAcquireSource atomically moves an active, non-running source to
	// running. Returns false without mutation if the guard does not hold.
	TryAcquireSource(ctx context.Context, ownerID, sourceID string) (bool, error)
	// ReleaseSource records the run outcome and always sets lastRunAt.
	ReleaseSource(ctx context.Context, ownerID, sourceID string, outcome RunOutcome, runAt time.Time, runErr string) error
	// ResetRunningSources marks every running source as failed and reports
	// how many were reset. Used at startup to recover rows a previous
	// process left behind; lastRunAt is not advanced so the sources become
	// due again on their own schedule.
	ResetRunningSources(ctx context.Context) (int, error)
	// SetSourceFetchMeta stores conditional-GET validators and the adopted title.
	SetSourceFetchMeta(ctx context.Context, ownerID, sourceID, etag, lastModified, title string) error

	// ExistingGUIDs reports which of the given guids already have an article
	// row for the source.
	ExistingGUIDs(ctx context.Context, sourceID string, guids []string) (map[string]bool, error)
	InsertArticles(ctx context.Context, articles []Article) error
	GetArticle(ctx context.Context, ownerID, articleID string) (Article, error)
	ListArticles(ctx context.Context, ownerID string, q ArticleQuery) ([]Article, error)
	DeleteArticle(ctx context.Context, ownerID, articleID string) error
	SetArticleShare(ctx context.Context, ownerID, articleID, shareID string, shared bool) error
	GetSharedArticle(ctx context.Context, shareID string) (Article, error)
	ListSharedArticles(ctx context.Context, q DiscoveryQuery) ([]Article, error)
	MarkArticlesNotified(ctx context.Context, articleIDs []string) error
	CountArticlesBySource(ctx context.Context, ownerID string) (map[string]int, error)

	UpsertSubscription(ctx context.Context, sub Subscription) error
	ListActiveSubscriptions(ctx context.Context, ownerID string) ([]Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID string) ([]Subscription, error)
	DeactivateSubscription(ctx context.Context, ownerID, endpoint string) error
	DeleteSubscription(ctx context.Context, ownerID, endpoint string) error
}

// Fetcher retrieves and parses one feed document.
type Fetcher interface {
	Fetch(ctx context.Context, src Source) (FetchResult, error)
}

// Enricher produces a summary and formatted content for an entry.
// Failure is non-fatal; callers fall back to the raw entry content.
type Enricher interface {
	Enrich(ctx context.Context, entry Entry) (Enrichment, error)
}

// PushSender delivers one notification payload to one endpoint.
// A permanently dead endpoint is reported as ErrEndpointGone.
type PushSender interface {
	Send(ctx context.Context, sub Subscription, payload NotificationPayload) error
}

// BlobStore archives raw feed documents.
type BlobStore interface {
	Put(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces row IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
