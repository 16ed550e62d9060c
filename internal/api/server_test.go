package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/config"
	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/share"
	"github.com/linkhoard/feedwatch/internal/storage/memory"
)

type fakeTrigger struct {
	err    error
	called []string
}

func (f *fakeTrigger) TriggerNow(_ context.Context, _, sourceID string) error {
	f.called = append(f.called, sourceID)
	return f.err
}

type fakeIDGen struct{ next int }

func (f *fakeIDGen) NewID() (string, error) {
	f.next++
	return fmt.Sprintf("id-%d", f.next), nil
}

type fakeTokens struct{ next int }

func (f *fakeTokens) New() (string, error) {
	f.next++
	return fmt.Sprintf("tok-%d", f.next), nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type testServer struct {
	srv     *Server
	store   *memory.Store
	trigger *fakeTrigger
}

func newTestServer(t *testing.T, cfg config.APIConfig) *testServer {
	t.Helper()
	if cfg.PageSize == 0 {
		cfg.PageSize = 20
	}
	store := memory.NewStore()
	trigger := &fakeTrigger{}
	shares := share.New(store, &fakeTokens{}, zap.NewNop())
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	srv := NewServer(store, trigger, shares, &fakeIDGen{}, clock, cfg, zap.NewNop())
	return &testServer{srv: srv, store: store, trigger: trigger}
}

func (ts *testServer) do(t *testing.T, method, path, owner string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if owner != "" {
		req.Header.Set(ownerHeader, owner)
	}
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestPrivateRoutesRequireOwnerHeader(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})
	rec := ts.do(t, http.MethodGet, "/v1/sources", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}})

	rec := ts.do(t, http.MethodGet, "/v1/sources", "owner-1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set(ownerHeader, "owner-1")
	req.Header.Set("X-API-Key", "secret")
	out := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(out, req)
	require.Equal(t, http.StatusOK, out.Code)
}

func TestCreateAndListSources(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})

	rec := ts.do(t, http.MethodPost, "/v1/sources", "owner-1", map[string]any{
		"feed_url": "https://example.com/feed.xml",
		"title":    "Example",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created feed.Source
	decodeBody(t, rec, &created)
	require.Equal(t, "id-1", created.ID)
	require.True(t, created.IsActive)
	require.Equal(t, feed.ScheduleInherit, created.ScheduleMode)

	rec = ts.do(t, http.MethodGet, "/v1/sources", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Sources []feed.Source `json:"sources"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Sources, 1)

	// Another owner sees nothing.
	rec = ts.do(t, http.MethodGet, "/v1/sources", "owner-2", nil)
	decodeBody(t, rec, &listed)
	require.Empty(t, listed.Sources)
}

func TestCreateSourceValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})

	cases := []map[string]any{
		{"feed_url": ""},
		{"feed_url": "ftp://example.com/feed.xml"},
		{"feed_url": "https://example.com/feed.xml", "schedule_mode": "every_hours", "schedule_value": "zero"},
		{"feed_url": "https://example.com/feed.xml", "schedule_mode": "daily", "schedule_value": "25:61"},
		{"feed_url": "https://example.com/feed.xml", "schedule_mode": "weekly"},
	}
	for _, body := range cases {
		rec := ts.do(t, http.MethodPost, "/v1/sources", "owner-1", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}
}

func TestRunSourceStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"running", feed.ErrSourceRunning, http.StatusConflict},
		{"inactive", feed.ErrSourceInactive, http.StatusUnprocessableEntity},
		{"missing", feed.ErrNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ts := newTestServer(t, config.APIConfig{})
			ts.trigger.err = tc.err
			rec := ts.do(t, http.MethodPost, "/v1/sources/src-1/run", "owner-1", nil)
			require.Equal(t, tc.code, rec.Code)
			require.Equal(t, []string{"src-1"}, ts.trigger.called)
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})

	rec := ts.do(t, http.MethodGet, "/v1/settings", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var settings feed.Settings
	decodeBody(t, rec, &settings)
	require.Equal(t, feed.DefaultSettings("owner-1"), settings)

	rec = ts.do(t, http.MethodPut, "/v1/settings", "owner-1", map[string]any{
		"schedule_mode":  "daily",
		"schedule_value": "08:30",
		"timezone":       "America/New_York",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &settings)
	require.Equal(t, feed.ScheduleDaily, settings.ScheduleMode)
	require.Equal(t, "America/New_York", settings.Timezone)
}

func TestPutSettingsValidation(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})

	cases := []map[string]any{
		{"max_items_per_source": 0},
		{"schedule_mode": "inherit"},
		{"timezone": "Mars/Olympus_Mons"},
		{"schedule_mode": "daily", "schedule_value": "sunrise"},
	}
	for _, body := range cases {
		rec := ts.do(t, http.MethodPut, "/v1/settings", "owner-1", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body: %v", body)
	}
}

func seedArticle(t *testing.T, store *memory.Store, owner, sourceID, articleID string, created time.Time) {
	t.Helper()
	require.NoError(t, store.InsertArticles(context.Background(), []feed.Article{{
		ID:        articleID,
		SourceID:  sourceID,
		OwnerID:   owner,
		Title:     "story " + articleID,
		URL:       "https://example.com/" + articleID,
		GUID:      "guid-" + articleID,
		CreatedAt: created,
	}}))
}

func TestArticleListAndDelete(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{PageSize: 10})
	require.NoError(t, ts.store.CreateSource(context.Background(), feed.Source{
		ID: "src-1", OwnerID: "owner-1", FeedURL: "https://example.com/feed.xml",
	}))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedArticle(t, ts.store, "owner-1", "src-1", "art-1", base)
	seedArticle(t, ts.store, "owner-1", "src-1", "art-2", base.Add(time.Minute))

	rec := ts.do(t, http.MethodGet, "/v1/articles?source=src-1", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Articles []feed.Article `json:"articles"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Articles, 2)
	require.Equal(t, "art-2", listed.Articles[0].ID, "newest first")

	rec = ts.do(t, http.MethodDelete, "/v1/articles/art-1", "owner-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/v1/articles/art-1", "owner-1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Owner scoping holds for deletes too.
	rec = ts.do(t, http.MethodDelete, "/v1/articles/art-2", "owner-2", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareAndPublicRead(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})
	require.NoError(t, ts.store.CreateSource(context.Background(), feed.Source{
		ID: "src-1", OwnerID: "owner-1", FeedURL: "https://example.com/feed.xml",
	}))
	seedArticle(t, ts.store, "owner-1", "src-1", "art-1", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodPost, "/v1/articles/art-1/share", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var shared struct {
		ShareID string `json:"share_id"`
		Path    string `json:"path"`
	}
	decodeBody(t, rec, &shared)
	require.Equal(t, "tok-1", shared.ShareID)
	require.Equal(t, "/public/articles/tok-1", shared.Path)

	// Public read needs no identity and hides owner fields.
	rec = ts.do(t, http.MethodGet, "/public/articles/tok-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "owner")

	rec = ts.do(t, http.MethodDelete, "/v1/articles/art-1/share", "owner-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/public/articles/tok-1", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublicDiscovery(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{PageSize: 10})
	require.NoError(t, ts.store.CreateSource(context.Background(), feed.Source{
		ID: "src-1", OwnerID: "owner-1", FeedURL: "https://example.com/feed.xml",
	}))
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	seedArticle(t, ts.store, "owner-1", "src-1", "art-1", base)
	seedArticle(t, ts.store, "owner-1", "src-1", "art-2", base.Add(time.Minute))

	rec := ts.do(t, http.MethodPost, "/v1/articles/art-1/share", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/public/articles?q=art-1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Articles []publicArticle `json:"articles"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Articles, 1)
	require.True(t, strings.Contains(listed.Articles[0].Title, "art-1"))

	// Unshared articles never appear.
	rec = ts.do(t, http.MethodGet, "/public/articles", "", nil)
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Articles, 1)
}

func TestSubscriptionLifecycle(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})

	rec := ts.do(t, http.MethodPost, "/v1/subscriptions", "owner-1", map[string]any{
		"endpoint": "https://push.example.com/ep1",
		"keys":     map[string]string{"auth": "a1"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/subscriptions", "owner-1", map[string]any{
		"endpoint": "http://push.example.com/insecure",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/subscriptions", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Subscriptions []feed.Subscription `json:"subscriptions"`
	}
	decodeBody(t, rec, &listed)
	require.Len(t, listed.Subscriptions, 1)

	rec = ts.do(t, http.MethodDelete, "/v1/subscriptions?endpoint=https%3A%2F%2Fpush.example.com%2Fep1", "owner-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/subscriptions", "owner-1", nil)
	decodeBody(t, rec, &listed)
	require.Empty(t, listed.Subscriptions)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, config.APIConfig{})
	require.NoError(t, ts.store.CreateSource(context.Background(), feed.Source{
		ID: "src-1", OwnerID: "owner-1", FeedURL: "https://example.com/feed.xml",
	}))
	seedArticle(t, ts.store, "owner-1", "src-1", "art-1", time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	rec := ts.do(t, http.MethodGet, "/v1/status", "owner-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Sources []feed.SourceStats `json:"sources"`
	}
	decodeBody(t, rec, &status)
	require.Len(t, status.Sources, 1)
	require.Equal(t, 1, status.Sources[0].Articles)
}
