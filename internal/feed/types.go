// Package feed defines core types shared across subsystems.
package feed

import "time"

// SourceStatus represents the run-lifecycle state of a feed source.
type SourceStatus string

// Source status values persisted in the store.
const (
	StatusIdle      SourceStatus = "idle"
	StatusRunning   SourceStatus = "running"
	StatusCompleted SourceStatus = "completed"
	StatusFailed    SourceStatus = "failed"
)

// ScheduleMode selects how a crawl schedule is interpreted.
type ScheduleMode string

// Schedule modes. Inherit is only valid on a source and means
// "use the owner's global settings".
const (
	ScheduleInherit    ScheduleMode = "inherit"
	ScheduleEveryHours ScheduleMode = "every_hours"
	ScheduleDaily      ScheduleMode = "daily"
)

// RunOutcome is the terminal result of a single crawl run.
type RunOutcome string

// Run outcomes passed to ReleaseSource.
const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeFailed    RunOutcome = "failed"
)

// Settings holds the per-owner crawler configuration. Created lazily with
// defaults on first read, never deleted.
type Settings struct {
	OwnerID           string       `json:"owner_id"`
	MaxItemsPerSource int          `json:"max_items_per_source"`
	Enabled           bool         `json:"enabled"`
	ScheduleMode      ScheduleMode `json:"schedule_mode"`
	ScheduleValue     string       `json:"schedule_value"`
	Timezone          string       `json:"timezone"`
}

// DefaultSettings is what an owner gets on first access, before any
// explicit settings update.
func DefaultSettings(ownerID string) Settings {
	return Settings{
		OwnerID:           ownerID,
		MaxItemsPerSource: 10,
		Enabled:           true,
		ScheduleMode:      ScheduleEveryHours,
		ScheduleValue:     "6",
		Timezone:          "UTC",
	}
}

// Source is a feed subscription owned by an account.
type Source struct {
	ID            string       `json:"id"`
	OwnerID       string       `json:"owner_id"`
	FeedURL       string       `json:"feed_url"`
	Title         string       `json:"title"`
	IsActive      bool         `json:"is_active"`
	Status        SourceStatus `json:"status"`
	LastRunAt     *time.Time   `json:"last_run_at,omitempty"`
	LastError     string       `json:"last_error,omitempty"`
	ScheduleMode  ScheduleMode `json:"schedule_mode"`
	ScheduleValue string       `json:"schedule_value,omitempty"`
	ETag          string       `json:"-"`
	LastModified  string       `json:"-"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Article is one ingested feed entry. (SourceID, GUID) is unique.
type Article struct {
	ID               string     `json:"id"`
	SourceID         string     `json:"source_id"`
	OwnerID          string     `json:"owner_id"`
	Title            string     `json:"title"`
	Summary          string     `json:"summary"`
	FormattedContent string     `json:"formatted_content"`
	URL              string     `json:"url"`
	GUID             string     `json:"guid"`
	ImageURL         string     `json:"image_url,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ShareID          string     `json:"share_id,omitempty"`
	IsShared         bool       `json:"is_shared"`
	NotificationSent bool       `json:"notification_sent"`
}

// Subscription is a registered push endpoint for an owner.
type Subscription struct {
	Endpoint  string            `json:"endpoint"`
	Keys      map[string]string `json:"keys"`
	OwnerID   string            `json:"owner_id"`
	Active    bool              `json:"active"`
	CreatedAt time.Time         `json:"created_at"`
}

// Entry is one parsed feed item, before dedup and enrichment.
type Entry struct {
	Title       string
	Link        string
	GUID        string
	Summary     string
	Content     string
	ImageURL    string
	PublishedAt *time.Time
}

// FetchResult is the outcome of fetching and parsing one feed document.
type FetchResult struct {
	FeedTitle    string
	Entries      []Entry
	Raw          []byte
	NotModified  bool
	ETag         string
	LastModified string
}

// Enrichment is the output of the enrichment collaborator for one entry.
type Enrichment struct {
	Summary          string `json:"summary"`
	FormattedContent string `json:"formatted_content"`
}

// NotificationPayload is delivered to each push endpoint for a new article.
type NotificationPayload struct {
	ArticleID string `json:"article_id"`
	SourceID  string `json:"source_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url"`
}

// ArticleQuery selects a page of an owner's articles.
type ArticleQuery struct {
	SourceID string
	Page     int
	PageSize int
}

// DiscoveryQuery selects a page of shared articles for the public listing.
type DiscoveryQuery struct {
	SourceID string
	Search   string
	Page     int
	PageSize int
}

// SourceStats summarizes one source for the status endpoint.
type SourceStats struct {
	Source   Source `json:"source"`
	Articles int    `json:"articles"`
}
