// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linkhoard/feedwatch/internal/feed"
)

type subKey struct {
	ownerID  string
	endpoint string
}

// Store keeps everything behind a single RWMutex. The mutex makes
// TryAcquireSource an atomic compare-and-set, mirroring the conditional
// UPDATE the Postgres store uses.
type Store struct {
	mu       sync.RWMutex
	settings map[string]feed.Settings
	sources  map[string]feed.Source
	articles map[string]feed.Article
	subs     map[subKey]feed.Subscription
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		settings: make(map[string]feed.Settings),
		sources:  make(map[string]feed.Source),
		articles: make(map[string]feed.Article),
		subs:     make(map[subKey]feed.Subscription),
	}
}

// GetSettings returns the owner's settings, creating defaults lazily.
func (s *Store) GetSettings(_ context.Context, ownerID string) (feed.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.settings[ownerID]; ok {
		return st, nil
	}
	st := feed.DefaultSettings(ownerID)
	s.settings[ownerID] = st
	return st, nil
}

// UpdateSettings replaces the owner's settings.
func (s *Store) UpdateSettings(_ context.Context, settings feed.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.OwnerID] = settings
	return nil
}

// CreateSource stores a new source.
func (s *Store) CreateSource(_ context.Context, src feed.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sources[src.ID]; exists {
		return feed.ErrDuplicate
	}
	if src.Status == "" {
		src.Status = feed.StatusIdle
	}
	s.sources[src.ID] = src
	return nil
}

// GetSource fetches a source scoped to its owner.
func (s *Store) GetSource(_ context.Context, ownerID, sourceID string) (feed.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[sourceID]
	if !ok || src.OwnerID != ownerID {
		return feed.Source{}, feed.ErrNotFound
	}
	return src, nil
}

// ListSources returns all of an owner's sources, oldest first.
func (s *Store) ListSources(_ context.Context, ownerID string) ([]feed.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Source
	for _, src := range s.sources {
		if src.OwnerID == ownerID {
			out = append(out, src)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateSource replaces a source's user-editable fields.
func (s *Store) UpdateSource(_ context.Context, src feed.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sources[src.ID]
	if !ok || cur.OwnerID != src.OwnerID {
		return feed.ErrNotFound
	}
	cur.FeedURL = src.FeedURL
	cur.Title = src.Title
	cur.IsActive = src.IsActive
	cur.ScheduleMode = src.ScheduleMode
	cur.ScheduleValue = src.ScheduleValue
	s.sources[src.ID] = cur
	return nil
}

// DeleteSource removes a source and cascades deletion of its articles.
func (s *Store) DeleteSource(_ context.Context, ownerID, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok || src.OwnerID != ownerID {
		return feed.ErrNotFound
	}
	delete(s.sources, sourceID)
	for id, a := range s.articles {
		if a.SourceID == sourceID {
			delete(s.articles, id)
		}
	}
	return nil
}

// ListCrawlableSources returns active sources of owners with crawling enabled.
func (s *Store) ListCrawlableSources(_ context.Context) ([]feed.Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Source
	for _, src := range s.sources {
		if !src.IsActive {
			continue
		}
		if st, ok := s.settings[src.OwnerID]; ok && !st.Enabled {
			continue
		}
		out = append(out, src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TryAcquireSource is the compare-and-set behind the run-state guard.
func (s *Store) TryAcquireSource(_ context.Context, ownerID, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok || src.OwnerID != ownerID {
		return false, feed.ErrNotFound
	}
	if !src.IsActive || src.Status == feed.StatusRunning {
		return false, nil
	}
	src.Status = feed.StatusRunning
	s.sources[sourceID] = src
	return true, nil
}

// ReleaseSource records the outcome and always advances lastRunAt.
func (s *Store) ReleaseSource(_ context.Context, ownerID, sourceID string, outcome feed.RunOutcome, runAt time.Time, runErr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok || src.OwnerID != ownerID {
		return feed.ErrNotFound
	}
	if outcome == feed.OutcomeCompleted {
		src.Status = feed.StatusCompleted
	} else {
		src.Status = feed.StatusFailed
	}
	src.LastRunAt = &runAt
	src.LastError = runErr
	s.sources[sourceID] = src
	return nil
}

// ResetRunningSources recovers sources a previous process left in running
// state.
func (s *Store) ResetRunningSources(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reset := 0
	for id, src := range s.sources {
		if src.Status != feed.StatusRunning {
			continue
		}
		src.Status = feed.StatusFailed
		src.LastError = "interrupted by restart"
		s.sources[id] = src
		reset++
	}
	return reset, nil
}

// SetSourceFetchMeta stores conditional-GET validators and the adopted title.
func (s *Store) SetSourceFetchMeta(_ context.Context, ownerID, sourceID, etag, lastModified, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[sourceID]
	if !ok || src.OwnerID != ownerID {
		return feed.ErrNotFound
	}
	src.ETag = etag
	src.LastModified = lastModified
	if title != "" {
		src.Title = title
	}
	s.sources[sourceID] = src
	return nil
}

// ExistingGUIDs reports which guids already have a row for the source.
func (s *Store) ExistingGUIDs(_ context.Context, sourceID string, guids []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool, len(guids))
	existing := make(map[string]bool)
	for _, g := range guids {
		seen[g] = true
	}
	for _, a := range s.articles {
		if a.SourceID == sourceID && seen[a.GUID] {
			existing[a.GUID] = true
		}
	}
	return existing, nil
}

// InsertArticles stores new article rows, refusing (sourceID, guid) duplicates.
func (s *Store) InsertArticles(_ context.Context, articles []feed.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range articles {
		for _, cur := range s.articles {
			if cur.SourceID == a.SourceID && cur.GUID == a.GUID {
				return feed.ErrDuplicate
			}
		}
		s.articles[a.ID] = a
	}
	return nil
}

// GetArticle fetches an article scoped to its owner.
func (s *Store) GetArticle(_ context.Context, ownerID, articleID string) (feed.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return feed.Article{}, feed.ErrNotFound
	}
	return a, nil
}

// ListArticles returns one page of the owner's articles, newest first.
func (s *Store) ListArticles(_ context.Context, ownerID string, q feed.ArticleQuery) ([]feed.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Article
	for _, a := range s.articles {
		if a.OwnerID != ownerID {
			continue
		}
		if q.SourceID != "" && a.SourceID != q.SourceID {
			continue
		}
		out = append(out, a)
	}
	return paginate(out, q.Page, q.PageSize), nil
}

// DeleteArticle removes one article.
func (s *Store) DeleteArticle(_ context.Context, ownerID, articleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return feed.ErrNotFound
	}
	delete(s.articles, articleID)
	return nil
}

// SetArticleShare updates the share token state of an article.
func (s *Store) SetArticleShare(_ context.Context, ownerID, articleID, shareID string, shared bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[articleID]
	if !ok || a.OwnerID != ownerID {
		return feed.ErrNotFound
	}
	a.ShareID = shareID
	a.IsShared = shared
	s.articles[articleID] = a
	return nil
}

// GetSharedArticle resolves a share token to its article.
func (s *Store) GetSharedArticle(_ context.Context, shareID string) (feed.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.articles {
		if a.IsShared && a.ShareID == shareID {
			return a, nil
		}
	}
	return feed.Article{}, feed.ErrNotFound
}

// ListSharedArticles returns one page of the public discovery listing.
func (s *Store) ListSharedArticles(_ context.Context, q feed.DiscoveryQuery) ([]feed.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(q.Search))
	var out []feed.Article
	for _, a := range s.articles {
		if !a.IsShared {
			continue
		}
		if q.SourceID != "" && a.SourceID != q.SourceID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(a.Title), search) &&
			!strings.Contains(strings.ToLower(a.Summary), search) {
			continue
		}
		out = append(out, a)
	}
	return paginate(out, q.Page, q.PageSize), nil
}

// MarkArticlesNotified flips notificationSent for the given articles.
func (s *Store) MarkArticlesNotified(_ context.Context, articleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range articleIDs {
		if a, ok := s.articles[id]; ok {
			a.NotificationSent = true
			s.articles[id] = a
		}
	}
	return nil
}

// CountArticlesBySource returns article totals per source for an owner.
func (s *Store) CountArticlesBySource(_ context.Context, ownerID string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, a := range s.articles {
		if a.OwnerID == ownerID {
			counts[a.SourceID]++
		}
	}
	return counts, nil
}

// UpsertSubscription registers or reactivates a push endpoint.
func (s *Store) UpsertSubscription(_ context.Context, sub feed.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[subKey{sub.OwnerID, sub.Endpoint}] = sub
	return nil
}

// ListActiveSubscriptions returns the owner's active endpoints.
func (s *Store) ListActiveSubscriptions(_ context.Context, ownerID string) ([]feed.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Subscription
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID && sub.Active {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// ListSubscriptions returns all of the owner's endpoints.
func (s *Store) ListSubscriptions(_ context.Context, ownerID string) ([]feed.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []feed.Subscription
	for _, sub := range s.subs {
		if sub.OwnerID == ownerID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out, nil
}

// DeactivateSubscription marks a dead endpoint inactive.
func (s *Store) DeactivateSubscription(_ context.Context, ownerID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subKey{ownerID, endpoint}
	sub, ok := s.subs[key]
	if !ok {
		return feed.ErrNotFound
	}
	sub.Active = false
	s.subs[key] = sub
	return nil
}

// DeleteSubscription removes an endpoint registration.
func (s *Store) DeleteSubscription(_ context.Context, ownerID, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subKey{ownerID, endpoint}
	if _, ok := s.subs[key]; !ok {
		return feed.ErrNotFound
	}
	delete(s.subs, key)
	return nil
}

// paginate orders by createdAt desc with id desc as tie-break, then slices
// the requested page. The tie-break keeps concurrent inserts from
// duplicating or skipping rows across pages.
func paginate(articles []feed.Article, page, pageSize int) []feed.Article {
	sort.Slice(articles, func(i, j int) bool {
		if !articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].CreatedAt.After(articles[j].CreatedAt)
		}
		return articles[i].ID > articles[j].ID
	})
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		return nil
	}
	start := (page - 1) * pageSize
	if start >= len(articles) {
		return nil
	}
	end := start + pageSize
	if end > len(articles) {
		end = len(articles)
	}
	out := make([]feed.Article, end-start)
	copy(out, articles[start:end])
	return out
}
