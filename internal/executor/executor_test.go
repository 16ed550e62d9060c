package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/notify"
	"github.com/linkhoard/feedwatch/internal/registry"
	"github.com/linkhoard/feedwatch/internal/storage/memory"
)

type fakeFetcher struct {
	result feed.FetchResult
	err    error
}

func (f *fakeFetcher) Fetch(context.Context, feed.Source) (feed.FetchResult, error) {
	return f.result, f.err
}

type fakeEnricher struct {
	err   error
	calls int
}

func (f *fakeEnricher) Enrich(_ context.Context, entry feed.Entry) (feed.Enrichment, error) {
	f.calls++
	if f.err != nil {
		return feed.Enrichment{}, f.err
	}
	return feed.Enrichment{
		Summary:          "summary of " + entry.Title,
		FormattedContent: "<p>" + entry.Content + "</p>",
	}, nil
}

type fakeArchive struct {
	paths []string
	err   error
}

func (f *fakeArchive) Put(_ context.Context, path, _ string, _ []byte) (string, error) {
	f.paths = append(f.paths, path)
	return "mem://" + path, f.err
}

type fakeIDGen struct {
	n int
}

func (g *fakeIDGen) NewID() (string, error) {
	g.n++
	return fmt.Sprintf("id-%03d", g.n), nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type noopSender struct{}

func (noopSender) Send(context.Context, feed.Subscription, feed.NotificationPayload) error {
	return nil
}

func entryFixture(guid string, published *time.Time) feed.Entry {
	return feed.Entry{
		Title:       "Entry " + guid,
		Link:        "https://example.com/" + guid,
		GUID:        guid,
		Summary:     "raw summary " + guid,
		Content:     "raw content " + guid,
		PublishedAt: published,
	}
}

type harness struct {
	store    *memory.Store
	registry *registry.Registry
	clock    *fakeClock
	archive  *fakeArchive
	enricher *fakeEnricher
}

func newHarness(t *testing.T, fetcher feed.Fetcher, enricher *fakeEnricher) (*Executor, *harness) {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := registry.New(store, clock, zap.NewNop())
	archive := &fakeArchive{}
	notifier := notify.New(store, noopSender{}, zap.NewNop())
	exec := New(
		store,
		reg,
		fetcher,
		enricher,
		archive,
		notifier,
		&fakeIDGen{},
		clock,
		Config{DefaultMaxItems: 10, ArchivePrefix: "feeds"},
		zap.NewNop(),
	)
	return exec, &harness{store: store, registry: reg, clock: clock, archive: archive, enricher: enricher}
}

func acquireSource(t *testing.T, h *harness) feed.Source {
	t.Helper()
	src := feed.Source{
		ID:           "src-1",
		OwnerID:      "owner-1",
		FeedURL:      "https://example.com/feed.xml",
		IsActive:     true,
		Status:       feed.StatusIdle,
		ScheduleMode: feed.ScheduleInherit,
	}
	require.NoError(t, h.store.CreateSource(context.Background(), src))
	acquired, err := h.registry.TryAcquire(context.Background(), src.OwnerID, src.ID)
	require.NoError(t, err)
	return acquired
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestExecutor_Crawl_IngestsAndCompletes(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{result: feed.FetchResult{
		FeedTitle: "Example Feed",
		Raw:       []byte("<rss/>"),
		Entries: []feed.Entry{
			entryFixture("g1", timePtr(base.Add(time.Hour))),
			entryFixture("g2", timePtr(base)),
		},
	}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status)
	require.NotNil(t, stored.LastRunAt)
	require.Equal(t, "Example Feed", stored.Title)

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "summary of Entry g1", page[0].Summary)
	require.Len(t, h.archive.paths, 1)
}

func TestExecutor_Crawl_FetchFailureReleasesFailed(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{err: errors.New("connection refused")}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusFailed, stored.Status)
	require.Contains(t, stored.LastError, "connection refused")
	require.NotNil(t, stored.LastRunAt, "failed attempt still counts as attempted")

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Empty(t, page, "no partial writes on fetch failure")
}

func TestExecutor_Crawl_DeduplicatesAgainstStore(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{Entries: []feed.Entry{
		entryFixture("seen", nil),
		entryFixture("new", nil),
	}}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	require.NoError(t, h.store.InsertArticles(context.Background(), []feed.Article{{
		ID: "prior", SourceID: "src-1", OwnerID: "owner-1", GUID: "seen",
		CreatedAt: h.clock.now.Add(-time.Hour),
	}}))

	exec.Crawl(context.Background(), src)

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, 2, "one prior row plus exactly one new row")
}

func TestExecutor_Crawl_RerunIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{Entries: []feed.Entry{
		entryFixture("g1", nil),
	}}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)
	exec.Crawl(context.Background(), src)

	again, err := h.registry.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	exec.Crawl(context.Background(), again)

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, 1, "re-ingesting the same guid never duplicates")
}

func TestExecutor_Crawl_CapsNewestFirst(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeFetcher{result: feed.FetchResult{Entries: []feed.Entry{
		entryFixture("old", timePtr(base)),
		entryFixture("newest", timePtr(base.Add(3*time.Hour))),
		entryFixture("mid", timePtr(base.Add(time.Hour))),
	}}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	settings, err := h.store.GetSettings(context.Background(), "owner-1")
	require.NoError(t, err)
	settings.MaxItemsPerSource = 2
	require.NoError(t, h.store.UpdateSettings(context.Background(), settings))

	exec.Crawl(context.Background(), src)

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, 2)
	guids := map[string]bool{page[0].GUID: true, page[1].GUID: true}
	require.True(t, guids["newest"])
	require.True(t, guids["mid"])
	require.False(t, guids["old"], "overflow entries are not ingested this cycle")
}

func TestExecutor_Crawl_EnrichmentFailureKeepsRawContent(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{Entries: []feed.Entry{
		entryFixture("g1", nil),
	}}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{err: errors.New("model overloaded")})
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	page, err := h.store.ListArticles(context.Background(), "owner-1", feed.ArticleQuery{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Empty(t, page[0].Summary)
	require.Equal(t, "raw content g1", page[0].FormattedContent)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status, "enrichment is not a correctness gate")
}

func TestExecutor_Crawl_ZeroNewItemsStillReleases(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{Entries: nil}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status)
	require.NotNil(t, stored.LastRunAt, "no stuck running state on empty crawls")
}

func TestExecutor_Crawl_NotModifiedCompletes(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{NotModified: true}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status)
	require.Zero(t, h.enricher.calls)
}

func TestExecutor_Crawl_ArchiveFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{result: feed.FetchResult{
		Raw:     []byte("<rss/>"),
		Entries: []feed.Entry{entryFixture("g1", nil)},
	}}
	exec, h := newHarness(t, fetcher, &fakeEnricher{})
	h.archive.err = errors.New("bucket unavailable")
	src := acquireSource(t, h)

	exec.Crawl(context.Background(), src)

	stored, err := h.store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status)
}

// ctxCheckedStore refuses writes on a finished context, the way a real
// database driver would.
type ctxCheckedStore struct {
	*memory.Store
}

func (s *ctxCheckedStore) ReleaseSource(ctx context.Context, ownerID, sourceID string, outcome feed.RunOutcome, runAt time.Time, runErr string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.ReleaseSource(ctx, ownerID, sourceID, outcome, runAt, runErr)
}

func TestExecutor_Crawl_ReleasesAfterContextCanceled(t *testing.T) {
	t.Parallel()

	store := &ctxCheckedStore{Store: memory.NewStore()}
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	reg := registry.New(store, clock, zap.NewNop())
	notifier := notify.New(store, noopSender{}, zap.NewNop())
	fetcher := &fakeFetcher{result: feed.FetchResult{FeedTitle: "Example"}}
	exec := New(
		store,
		reg,
		fetcher,
		&fakeEnricher{},
		&fakeArchive{},
		notifier,
		&fakeIDGen{},
		clock,
		Config{DefaultMaxItems: 10, ArchivePrefix: "feeds"},
		zap.NewNop(),
	)

	src := feed.Source{
		ID:           "src-1",
		OwnerID:      "owner-1",
		FeedURL:      "https://example.com/feed.xml",
		IsActive:     true,
		Status:       feed.StatusIdle,
		ScheduleMode: feed.ScheduleInherit,
	}
	require.NoError(t, store.CreateSource(context.Background(), src))
	acquired, err := reg.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)

	// A shutdown cancels the run context, but the source must still be
	// released rather than left in running state.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec.Crawl(ctx, acquired)

	stored, err := store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusCompleted, stored.Status)
	require.NotNil(t, stored.LastRunAt)
}
