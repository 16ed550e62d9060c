package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
)

type sourceRequest struct {
	FeedURL       string  `json:"feed_url"`
	Title         string  `json:"title"`
	IsActive      *bool   `json:"is_active"`
	ScheduleMode  string  `json:"schedule_mode"`
	ScheduleValue *string `json:"schedule_value"`
}

type settingsRequest struct {
	MaxItemsPerSource *int    `json:"max_items_per_source"`
	Enabled           *bool   `json:"enabled"`
	ScheduleMode      *string `json:"schedule_mode"`
	ScheduleValue     *string `json:"schedule_value"`
	Timezone          *string `json:"timezone"`
}

type subscriptionRequest struct {
	Endpoint string            `json:"endpoint"`
	Keys     map[string]string `json:"keys"`
}

// publicArticle is the shared-article shape. Owner and notification
// fields stay private.
type publicArticle struct {
	ShareID          string     `json:"share_id"`
	Title            string     `json:"title"`
	Summary          string     `json:"summary"`
	FormattedContent string     `json:"formatted_content"`
	URL              string     `json:"url"`
	ImageURL         string     `json:"image_url,omitempty"`
	PublishedAt      *time.Time `json:"published_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func toPublicArticle(a feed.Article) publicArticle {
	return publicArticle{
		ShareID:          a.ShareID,
		Title:            a.Title,
		Summary:          a.Summary,
		FormattedContent: a.FormattedContent,
		URL:              a.URL,
		ImageURL:         a.ImageURL,
		PublishedAt:      a.PublishedAt,
		CreatedAt:        a.CreatedAt,
	}
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateFeedURL(req.FeedURL); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	mode := feed.ScheduleMode(req.ScheduleMode)
	if mode == "" {
		mode = feed.ScheduleInherit
	}
	value := ""
	if req.ScheduleValue != nil {
		value = *req.ScheduleValue
	}
	if err := validateSchedule(mode, value, true); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.ids.NewID()
	if err != nil {
		writeError(s.logger, w, http.StatusInternalServerError, "generate source id")
		return
	}
	src := feed.Source{
		ID:            id,
		OwnerID:       ownerID(r.Context()),
		FeedURL:       req.FeedURL,
		Title:         req.Title,
		IsActive:      req.IsActive == nil || *req.IsActive,
		Status:        feed.StatusIdle,
		ScheduleMode:  mode,
		ScheduleValue: value,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.CreateSource(r.Context(), src); err != nil {
		s.respondStoreError(w, err, "create source")
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, src)
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context(), ownerID(r.Context()))
	if err != nil {
		s.respondStoreError(w, err, "list sources")
		return
	}
	if sources == nil {
		sources = []feed.Source{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.store.GetSource(r.Context(), ownerID(r.Context()), chi.URLParam(r, "source_id"))
	if err != nil {
		s.respondStoreError(w, err, "get source")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, src)
}

func (s *Server) updateSource(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r.Context())
	src, err := s.store.GetSource(r.Context(), owner, chi.URLParam(r, "source_id"))
	if err != nil {
		s.respondStoreError(w, err, "get source")
		return
	}

	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.FeedURL != "" {
		if err := validateFeedURL(req.FeedURL); err != nil {
			writeError(s.logger, w, http.StatusBadRequest, err.Error())
			return
		}
		src.FeedURL = req.FeedURL
	}
	if req.Title != "" {
		src.Title = req.Title
	}
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}
	if req.ScheduleMode != "" {
		src.ScheduleMode = feed.ScheduleMode(req.ScheduleMode)
	}
	if req.ScheduleValue != nil {
		src.ScheduleValue = *req.ScheduleValue
	}
	if err := validateSchedule(src.ScheduleMode, src.ScheduleValue, true); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateSource(r.Context(), src); err != nil {
		s.respondStoreError(w, err, "update source")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, src)
}

func (s *Server) deleteSource(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteSource(r.Context(), ownerID(r.Context()), chi.URLParam(r, "source_id"))
	if err != nil {
		s.respondStoreError(w, err, "delete source")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) runSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "source_id")
	err := s.trigger.TriggerNow(r.Context(), ownerID(r.Context()), sourceID)
	switch {
	case err == nil:
		writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
			"source_id": sourceID,
			"status":    string(feed.StatusRunning),
		})
	case errors.Is(err, feed.ErrNotFound):
		writeError(s.logger, w, http.StatusNotFound, "source not found")
	case errors.Is(err, feed.ErrSourceRunning):
		writeError(s.logger, w, http.StatusConflict, "source is already running")
	case errors.Is(err, feed.ErrSourceInactive):
		writeError(s.logger, w, http.StatusUnprocessableEntity, "source is inactive")
	default:
		writeError(s.logger, w, http.StatusInternalServerError, "trigger crawl")
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r.Context())
	sources, err := s.store.ListSources(r.Context(), owner)
	if err != nil {
		s.respondStoreError(w, err, "list sources")
		return
	}
	counts, err := s.store.CountArticlesBySource(r.Context(), owner)
	if err != nil {
		s.respondStoreError(w, err, "count articles")
		return
	}
	stats := make([]feed.SourceStats, 0, len(sources))
	for _, src := range sources {
		stats = append(stats, feed.SourceStats{Source: src, Articles: counts[src.ID]})
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"sources": stats})
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.GetSettings(r.Context(), ownerID(r.Context()))
	if err != nil {
		s.respondStoreError(w, err, "get settings")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, settings)
}

func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r.Context())
	settings, err := s.store.GetSettings(r.Context(), owner)
	if err != nil {
		s.respondStoreError(w, err, "get settings")
		return
	}

	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.MaxItemsPerSource != nil {
		if *req.MaxItemsPerSource <= 0 {
			writeError(s.logger, w, http.StatusBadRequest, "max_items_per_source must be > 0")
			return
		}
		settings.MaxItemsPerSource = *req.MaxItemsPerSource
	}
	if req.Enabled != nil {
		settings.Enabled = *req.Enabled
	}
	if req.ScheduleMode != nil {
		settings.ScheduleMode = feed.ScheduleMode(*req.ScheduleMode)
	}
	if req.ScheduleValue != nil {
		settings.ScheduleValue = *req.ScheduleValue
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "unknown timezone")
			return
		}
		settings.Timezone = *req.Timezone
	}
	// Global settings are the inheritance root; "inherit" is only valid
	// on a source.
	if err := validateSchedule(settings.ScheduleMode, settings.ScheduleValue, false); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateSettings(r.Context(), settings); err != nil {
		s.respondStoreError(w, err, "update settings")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, settings)
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.store.ListArticles(r.Context(), ownerID(r.Context()), feed.ArticleQuery{
		SourceID: r.URL.Query().Get("source"),
		Page:     pageParam(r),
		PageSize: s.pageSize(),
	})
	if err != nil {
		s.respondStoreError(w, err, "list articles")
		return
	}
	if articles == nil {
		articles = []feed.Article{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"articles":  articles,
		"page":      pageParam(r),
		"page_size": s.pageSize(),
	})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	a, err := s.store.GetArticle(r.Context(), ownerID(r.Context()), chi.URLParam(r, "article_id"))
	if err != nil {
		s.respondStoreError(w, err, "get article")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, a)
}

func (s *Server) deleteArticle(w http.ResponseWriter, r *http.Request) {
	err := s.store.DeleteArticle(r.Context(), ownerID(r.Context()), chi.URLParam(r, "article_id"))
	if err != nil {
		s.respondStoreError(w, err, "delete article")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) shareArticle(w http.ResponseWriter, r *http.Request) {
	shareID, err := s.shares.Share(r.Context(), ownerID(r.Context()), chi.URLParam(r, "article_id"))
	if err != nil {
		s.respondStoreError(w, err, "share article")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{
		"share_id": shareID,
		"path":     "/public/articles/" + shareID,
	})
}

func (s *Server) unshareArticle(w http.ResponseWriter, r *http.Request) {
	err := s.shares.Unshare(r.Context(), ownerID(r.Context()), chi.URLParam(r, "article_id"))
	if err != nil {
		s.respondStoreError(w, err, "unshare article")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := s.store.ListSubscriptions(r.Context(), ownerID(r.Context()))
	if err != nil {
		s.respondStoreError(w, err, "list subscriptions")
		return
	}
	if subs == nil {
		subs = []feed.Subscription{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"subscriptions": subs})
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := validateEndpoint(req.Endpoint); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	sub := feed.Subscription{
		OwnerID:   ownerID(r.Context()),
		Endpoint:  req.Endpoint,
		Keys:      req.Keys,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.UpsertSubscription(r.Context(), sub); err != nil {
		s.respondStoreError(w, err, "upsert subscription")
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, sub)
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		writeError(s.logger, w, http.StatusBadRequest, "endpoint query parameter is required")
		return
	}
	err := s.store.DeleteSubscription(r.Context(), ownerID(r.Context()), endpoint)
	if err != nil {
		s.respondStoreError(w, err, "delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) discoverArticles(w http.ResponseWriter, r *http.Request) {
	articles, err := s.shares.Discover(r.Context(), feed.DiscoveryQuery{
		SourceID: r.URL.Query().Get("source"),
		Search:   r.URL.Query().Get("q"),
		Page:     pageParam(r),
		PageSize: s.pageSize(),
	})
	if err != nil {
		s.respondStoreError(w, err, "discover articles")
		return
	}
	out := make([]publicArticle, 0, len(articles))
	for _, a := range articles {
		out = append(out, toPublicArticle(a))
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"articles":  out,
		"page":      pageParam(r),
		"page_size": s.pageSize(),
	})
}

func (s *Server) getSharedArticle(w http.ResponseWriter, r *http.Request) {
	a, err := s.shares.GetShared(r.Context(), chi.URLParam(r, "share_id"))
	if err != nil {
		s.respondStoreError(w, err, "get shared article")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, toPublicArticle(a))
}

func (s *Server) respondStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, feed.ErrNotFound) {
		writeError(s.logger, w, http.StatusNotFound, "not found")
		return
	}
	s.logger.Error(action+" failed", zap.Error(err))
	writeError(s.logger, w, http.StatusInternalServerError, action+" failed")
}

func validateFeedURL(raw string) error {
	if raw == "" {
		return errors.New("feed_url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("feed_url must be an absolute http(s) URL")
	}
	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("endpoint is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return errors.New("endpoint must be an absolute https URL")
	}
	return nil
}

// validateSchedule rejects values the resolver would treat as never due.
func validateSchedule(mode feed.ScheduleMode, value string, allowInherit bool) error {
	switch mode {
	case feed.ScheduleInherit:
		if !allowInherit {
			return errors.New("schedule_mode 'inherit' is not valid here")
		}
		return nil
	case feed.ScheduleEveryHours:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			return errors.New("schedule_value must be a positive hour count")
		}
		return nil
	case feed.ScheduleDaily:
		if _, err := time.Parse("15:04", strings.TrimSpace(value)); err != nil {
			return errors.New("schedule_value must be a HH:MM clock time")
		}
		return nil
	default:
		return errors.New("unknown schedule_mode")
	}
}

func pageParam(r *http.Request) int {
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}
