// Package postgres provides the Postgres-backed persistence implementation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linkhoard/feedwatch/internal/feed"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements feed.Store on Postgres.
type Store struct {
	pool querier
}

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewStore connects a pool and ensures the schema exists.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool querier) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS feed_settings (
			owner_id             TEXT PRIMARY KEY,
			max_items_per_source INT NOT NULL,
			enabled              BOOLEAN NOT NULL,
			schedule_mode        TEXT NOT NULL,
			schedule_value       TEXT NOT NULL,
			timezone             TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS feed_sources (
			id             TEXT PRIMARY KEY,
			owner_id       TEXT NOT NULL,
			feed_url       TEXT NOT NULL,
			title          TEXT NOT NULL DEFAULT '',
			is_active      BOOLEAN NOT NULL DEFAULT TRUE,
			status         TEXT NOT NULL DEFAULT 'idle',
			last_run_at    TIMESTAMPTZ,
			last_error     TEXT NOT NULL DEFAULT '',
			schedule_mode  TEXT NOT NULL DEFAULT 'inherit',
			schedule_value TEXT NOT NULL DEFAULT '',
			etag           TEXT NOT NULL DEFAULT '',
			last_modified  TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_sources_owner ON feed_sources (owner_id)`,
		`CREATE TABLE IF NOT EXISTS feed_articles (
			id                TEXT PRIMARY KEY,
			source_id         TEXT NOT NULL REFERENCES feed_sources (id) ON DELETE CASCADE,
			owner_id          TEXT NOT NULL,
			title             TEXT NOT NULL DEFAULT '',
			summary           TEXT NOT NULL DEFAULT '',
			formatted_content TEXT NOT NULL DEFAULT '',
			url               TEXT NOT NULL DEFAULT '',
			guid              TEXT NOT NULL,
			image_url         TEXT NOT NULL DEFAULT '',
			published_at      TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			share_id          TEXT NOT NULL DEFAULT '',
			is_shared         BOOLEAN NOT NULL DEFAULT FALSE,
			notification_sent BOOLEAN NOT NULL DEFAULT FALSE,
			UNIQUE (source_id, guid)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_articles_owner ON feed_articles (owner_id, created_at DESC, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_feed_articles_share ON feed_articles (share_id) WHERE is_shared`,
		`CREATE TABLE IF NOT EXISTS push_subscriptions (
			owner_id   TEXT NOT NULL,
			endpoint   TEXT NOT NULL,
			keys       JSONB NOT NULL DEFAULT '{}',
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (owner_id, endpoint)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetSettings returns the owner's settings, creating defaults on first access.
func (s *Store) GetSettings(ctx context.Context, ownerID string) (feed.Settings, error) {
	query := `
		SELECT owner_id, max_items_per_source, enabled, schedule_mode, schedule_value, timezone
		FROM feed_settings
		WHERE owner_id = $1;
	`
	var out feed.Settings
	err := s.pool.QueryRow(ctx, query, ownerID).Scan(
		&out.OwnerID,
		&out.MaxItemsPerSource,
		&out.Enabled,
		&out.ScheduleMode,
		&out.ScheduleValue,
		&out.Timezone,
	)
	if err == nil {
		return out, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return feed.Settings{}, fmt.Errorf("get settings: %w", err)
	}

	defaults := feed.DefaultSettings(ownerID)
	insert := `
		INSERT INTO feed_settings (owner_id, max_items_per_source, enabled, schedule_mode, schedule_value, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO NOTHING;
	`
	if _, err := s.pool.Exec(ctx, insert,
		defaults.OwnerID,
		defaults.MaxItemsPerSource,
		defaults.Enabled,
		defaults.ScheduleMode,
		defaults.ScheduleValue,
		defaults.Timezone,
	); err != nil {
		return feed.Settings{}, fmt.Errorf("create default settings: %w", err)
	}
	return defaults, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings feed.Settings) error {
	query := `
		INSERT INTO feed_settings (owner_id, max_items_per_source, enabled, schedule_mode, schedule_value, timezone)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE
		SET max_items_per_source = EXCLUDED.max_items_per_source,
		    enabled = EXCLUDED.enabled,
		    schedule_mode = EXCLUDED.schedule_mode,
		    schedule_value = EXCLUDED.schedule_value,
		    timezone = EXCLUDED.timezone;
	`
	if _, err := s.pool.Exec(ctx, query,
		settings.OwnerID,
		settings.MaxItemsPerSource,
		settings.Enabled,
		settings.ScheduleMode,
		settings.ScheduleValue,
		settings.Timezone,
	); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	return nil
}

func (s *Store) CreateSource(ctx context.Context, src feed.Source) error {
	query := `
		INSERT INTO feed_sources (id, owner_id, feed_url, title, is_active, status, schedule_mode, schedule_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := s.pool.Exec(ctx, query,
		src.ID,
		src.OwnerID,
		src.FeedURL,
		src.Title,
		src.IsActive,
		src.Status,
		src.ScheduleMode,
		src.ScheduleValue,
		src.CreatedAt,
	)
	if isUniqueViolation(err) {
		return feed.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create source: %w", err)
	}
	return nil
}

const sourceColumns = `id, owner_id, feed_url, title, is_active, status, last_run_at, last_error,
	schedule_mode, schedule_value, etag, last_modified, created_at`

func scanSource(row pgx.Row) (feed.Source, error) {
	var src feed.Source
	err := row.Scan(
		&src.ID,
		&src.OwnerID,
		&src.FeedURL,
		&src.Title,
		&src.IsActive,
		&src.Status,
		&src.LastRunAt,
		&src.LastError,
		&src.ScheduleMode,
		&src.ScheduleValue,
		&src.ETag,
		&src.LastModified,
		&src.CreatedAt,
	)
	return src, err
}

func (s *Store) GetSource(ctx context.Context, ownerID, sourceID string) (feed.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM feed_sources WHERE owner_id = $1 AND id = $2;`
	src, err := scanSource(s.pool.QueryRow(ctx, query, ownerID, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Source{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.Source{}, fmt.Errorf("get source: %w", err)
	}
	return src, nil
}

func (s *Store) ListSources(ctx context.Context, ownerID string) ([]feed.Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM feed_sources WHERE owner_id = $1 ORDER BY created_at DESC, id DESC;`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []feed.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *Store) UpdateSource(ctx context.Context, src feed.Source) error {
	query := `
		UPDATE feed_sources
		SET feed_url = $1, title = $2, is_active = $3, schedule_mode = $4, schedule_value = $5
		WHERE owner_id = $6 AND id = $7;
	`
	tag, err := s.pool.Exec(ctx, query,
		src.FeedURL,
		src.Title,
		src.IsActive,
		src.ScheduleMode,
		src.ScheduleValue,
		src.OwnerID,
		src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSource(ctx context.Context, ownerID, sourceID string) error {
	// Articles go with the source via ON DELETE CASCADE.
	tag, err := s.pool.Exec(ctx, `DELETE FROM feed_sources WHERE owner_id = $1 AND id = $2;`, ownerID, sourceID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) ListCrawlableSources(ctx context.Context) ([]feed.Source, error) {
	// Owners without a settings row crawl with defaults, hence the COALESCE.
	query := `
		SELECT src.id, src.owner_id, src.feed_url, src.title, src.is_active, src.status,
			src.last_run_at, src.last_error, src.schedule_mode, src.schedule_value,
			src.etag, src.last_modified, src.created_at
		FROM feed_sources src
		LEFT JOIN feed_settings st ON st.owner_id = src.owner_id
		WHERE src.is_active AND COALESCE(st.enabled, TRUE)
		ORDER BY src.created_at, src.id;
	`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list crawlable sources: %w", err)
	}
	defer rows.Close()

	var sources []feed.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *Store) TryAcquireSource(ctx context.Context, ownerID, sourceID string) (bool, error) {
	query := `
		UPDATE feed_sources
		SET status = 'running', last_error = ''
		WHERE owner_id = $1 AND id = $2 AND is_active AND status <> 'running';
	`
	tag, err := s.pool.Exec(ctx, query, ownerID, sourceID)
	if err != nil {
		return false, fmt.Errorf("acquire source: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseSource(ctx context.Context, ownerID, sourceID string, outcome feed.RunOutcome, runAt time.Time, runErr string) error {
	query := `
		UPDATE feed_sources
		SET status = $1, last_run_at = $2, last_error = $3
		WHERE owner_id = $4 AND id = $5;
	`
	status := feed.StatusCompleted
	if outcome == feed.OutcomeFailed {
		status = feed.StatusFailed
	}
	tag, err := s.pool.Exec(ctx, query, status, runAt, runErr, ownerID, sourceID)
	if err != nil {
		return fmt.Errorf("release source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) ResetRunningSources(ctx context.Context) (int, error) {
	query := `
		UPDATE feed_sources
		SET status = 'failed', last_error = 'interrupted by restart'
		WHERE status = 'running';
	`
	tag, err := s.pool.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("reset running sources: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *Store) SetSourceFetchMeta(ctx context.Context, ownerID, sourceID, etag, lastModified, title string) error {
	query := `
		UPDATE feed_sources
		SET etag = $1,
		    last_modified = $2,
		    title = CASE WHEN $3 <> '' THEN $3 ELSE title END
		WHERE owner_id = $4 AND id = $5;
	`
	tag, err := s.pool.Exec(ctx, query, etag, lastModified, title, ownerID, sourceID)
	if err != nil {
		return fmt.Errorf("set source fetch meta: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) ExistingGUIDs(ctx context.Context, sourceID string, guids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(guids))
	if len(guids) == 0 {
		return out, nil
	}
	query := `SELECT guid FROM feed_articles WHERE source_id = $1 AND guid = ANY($2);`
	rows, err := s.pool.Query(ctx, query, sourceID, guids)
	if err != nil {
		return nil, fmt.Errorf("query existing guids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var guid string
		if err := rows.Scan(&guid); err != nil {
			return nil, fmt.Errorf("scan guid row: %w", err)
		}
		out[guid] = true
	}
	return out, rows.Err()
}

func (s *Store) InsertArticles(ctx context.Context, articles []feed.Article) error {
	query := `
		INSERT INTO feed_articles (id, source_id, owner_id, title, summary, formatted_content,
			url, guid, image_url, published_at, created_at, notification_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	for _, a := range articles {
		_, err := s.pool.Exec(ctx, query,
			a.ID,
			a.SourceID,
			a.OwnerID,
			a.Title,
			a.Summary,
			a.FormattedContent,
			a.URL,
			a.GUID,
			a.ImageURL,
			a.PublishedAt,
			a.CreatedAt,
			a.NotificationSent,
		)
		if isUniqueViolation(err) {
			return feed.ErrDuplicate
		}
		if err != nil {
			return fmt.Errorf("insert article: %w", err)
		}
	}
	return nil
}

const articleColumns = `id, source_id, owner_id, title, summary, formatted_content, url, guid,
	image_url, published_at, created_at, share_id, is_shared, notification_sent`

func scanArticle(row pgx.Row) (feed.Article, error) {
	var a feed.Article
	err := row.Scan(
		&a.ID,
		&a.SourceID,
		&a.OwnerID,
		&a.Title,
		&a.Summary,
		&a.FormattedContent,
		&a.URL,
		&a.GUID,
		&a.ImageURL,
		&a.PublishedAt,
		&a.CreatedAt,
		&a.ShareID,
		&a.IsShared,
		&a.NotificationSent,
	)
	return a, err
}

func (s *Store) GetArticle(ctx context.Context, ownerID, articleID string) (feed.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM feed_articles WHERE owner_id = $1 AND id = $2;`
	a, err := scanArticle(s.pool.QueryRow(ctx, query, ownerID, articleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Article{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.Article{}, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

func (s *Store) ListArticles(ctx context.Context, ownerID string, q feed.ArticleQuery) ([]feed.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM feed_articles
		WHERE owner_id = $1 AND ($2 = '' OR source_id = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4;
	`
	limit, offset := pageBounds(q.Page, q.PageSize)
	rows, err := s.pool.Query(ctx, query, ownerID, q.SourceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *Store) DeleteArticle(ctx context.Context, ownerID, articleID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM feed_articles WHERE owner_id = $1 AND id = $2;`, ownerID, articleID)
	if err != nil {
		return fmt.Errorf("delete article: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) SetArticleShare(ctx context.Context, ownerID, articleID, shareID string, shared bool) error {
	query := `
		UPDATE feed_articles
		SET share_id = $1, is_shared = $2
		WHERE owner_id = $3 AND id = $4;
	`
	tag, err := s.pool.Exec(ctx, query, shareID, shared, ownerID, articleID)
	if err != nil {
		return fmt.Errorf("set article share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) GetSharedArticle(ctx context.Context, shareID string) (feed.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM feed_articles WHERE is_shared AND share_id = $1;`
	a, err := scanArticle(s.pool.QueryRow(ctx, query, shareID))
	if errors.Is(err, pgx.ErrNoRows) {
		return feed.Article{}, feed.ErrNotFound
	}
	if err != nil {
		return feed.Article{}, fmt.Errorf("get shared article: %w", err)
	}
	return a, nil
}

func (s *Store) ListSharedArticles(ctx context.Context, q feed.DiscoveryQuery) ([]feed.Article, error) {
	query := `
		SELECT ` + articleColumns + `
		FROM feed_articles
		WHERE is_shared
		  AND ($1 = '' OR source_id = $1)
		  AND ($2 = '' OR title ILIKE '%' || $2 || '%' OR summary ILIKE '%' || $2 || '%')
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4;
	`
	limit, offset := pageBounds(q.Page, q.PageSize)
	rows, err := s.pool.Query(ctx, query, q.SourceID, strings.TrimSpace(q.Search), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list shared articles: %w", err)
	}
	defer rows.Close()
	return collectArticles(rows)
}

func (s *Store) MarkArticlesNotified(ctx context.Context, articleIDs []string) error {
	if len(articleIDs) == 0 {
		return nil
	}
	query := `UPDATE feed_articles SET notification_sent = TRUE WHERE id = ANY($1);`
	if _, err := s.pool.Exec(ctx, query, articleIDs); err != nil {
		return fmt.Errorf("mark articles notified: %w", err)
	}
	return nil
}

func (s *Store) CountArticlesBySource(ctx context.Context, ownerID string) (map[string]int, error) {
	query := `SELECT source_id, COUNT(*) FROM feed_articles WHERE owner_id = $1 GROUP BY source_id;`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count articles: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var sourceID string
		var n int
		if err := rows.Scan(&sourceID, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[sourceID] = n
	}
	return counts, rows.Err()
}

func (s *Store) UpsertSubscription(ctx context.Context, sub feed.Subscription) error {
	keysJSON, err := json.Marshal(sub.Keys)
	if err != nil {
		return fmt.Errorf("marshal subscription keys: %w", err)
	}
	query := `
		INSERT INTO push_subscriptions (owner_id, endpoint, keys, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, endpoint) DO UPDATE
		SET keys = EXCLUDED.keys, active = EXCLUDED.active;
	`
	if _, err := s.pool.Exec(ctx, query, sub.OwnerID, sub.Endpoint, keysJSON, sub.Active, sub.CreatedAt); err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, ownerID string) ([]feed.Subscription, error) {
	return s.listSubscriptions(ctx, ownerID, true)
}

func (s *Store) ListSubscriptions(ctx context.Context, ownerID string) ([]feed.Subscription, error) {
	return s.listSubscriptions(ctx, ownerID, false)
}

func (s *Store) listSubscriptions(ctx context.Context, ownerID string, activeOnly bool) ([]feed.Subscription, error) {
	query := `
		SELECT owner_id, endpoint, keys, active, created_at
		FROM push_subscriptions
		WHERE owner_id = $1 AND (NOT $2 OR active)
		ORDER BY created_at, endpoint;
	`
	rows, err := s.pool.Query(ctx, query, ownerID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []feed.Subscription
	for rows.Next() {
		var sub feed.Subscription
		var keysJSON []byte
		if err := rows.Scan(&sub.OwnerID, &sub.Endpoint, &keysJSON, &sub.Active, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		if len(keysJSON) > 0 {
			if err := json.Unmarshal(keysJSON, &sub.Keys); err != nil {
				return nil, fmt.Errorf("unmarshal subscription keys: %w", err)
			}
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *Store) DeactivateSubscription(ctx context.Context, ownerID, endpoint string) error {
	query := `UPDATE push_subscriptions SET active = FALSE WHERE owner_id = $1 AND endpoint = $2;`
	tag, err := s.pool.Exec(ctx, query, ownerID, endpoint)
	if err != nil {
		return fmt.Errorf("deactivate subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, ownerID, endpoint string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM push_subscriptions WHERE owner_id = $1 AND endpoint = $2;`, ownerID, endpoint)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return feed.ErrNotFound
	}
	return nil
}

func collectArticles(rows pgx.Rows) ([]feed.Article, error) {
	var articles []feed.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article row: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func pageBounds(page, pageSize int) (limit, offset int) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if page <= 0 {
		page = 1
	}
	return pageSize, (page - 1) * pageSize
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
