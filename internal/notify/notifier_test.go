package notify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/storage/memory"
)

type fakeSender struct {
	failures map[string]error
	sent     []string // "endpoint|article"
}

func (s *fakeSender) Send(_ context.Context, sub feed.Subscription, payload feed.NotificationPayload) error {
	s.sent = append(s.sent, sub.Endpoint+"|"+payload.ArticleID)
	if err, ok := s.failures[sub.Endpoint]; ok {
		return err
	}
	return nil
}

func setup(t *testing.T, endpoints ...string) (*memory.Store, feed.Source) {
	t.Helper()
	store := memory.NewStore()
	ctx := context.Background()
	src := feed.Source{ID: "src-1", OwnerID: "owner-1", IsActive: true}
	require.NoError(t, store.CreateSource(ctx, src))
	for _, ep := range endpoints {
		require.NoError(t, store.UpsertSubscription(ctx, feed.Subscription{
			Endpoint: ep,
			OwnerID:  "owner-1",
			Active:   true,
		}))
	}
	return store, src
}

func articlesFixture(n int) []feed.Article {
	var out []feed.Article
	for i := range n {
		out = append(out, feed.Article{
			ID:       fmt.Sprintf("a%d", i),
			SourceID: "src-1",
			OwnerID:  "owner-1",
			GUID:     fmt.Sprintf("g%d", i),
			Title:    fmt.Sprintf("Article %d", i),
		})
	}
	return out
}

func TestNotifier_FanOut_DeliversToAllEndpoints(t *testing.T) {
	t.Parallel()

	store, src := setup(t, "ep-1", "ep-2")
	arts := articlesFixture(2)
	require.NoError(t, store.InsertArticles(context.Background(), arts))

	sender := &fakeSender{}
	New(store, sender, zap.NewNop()).FanOut(context.Background(), src, arts)

	require.Len(t, sender.sent, 4)
	for _, a := range arts {
		got, err := store.GetArticle(context.Background(), "owner-1", a.ID)
		require.NoError(t, err)
		require.True(t, got.NotificationSent)
	}
}

func TestNotifier_FanOut_PrunesGoneEndpoint(t *testing.T) {
	t.Parallel()

	store, src := setup(t, "ep-dead", "ep-live")
	arts := articlesFixture(2)
	require.NoError(t, store.InsertArticles(context.Background(), arts))

	sender := &fakeSender{failures: map[string]error{
		"ep-dead": fmt.Errorf("HTTP 410: %w", feed.ErrEndpointGone),
	}}
	New(store, sender, zap.NewNop()).FanOut(context.Background(), src, arts)

	active, err := store.ListActiveSubscriptions(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "ep-live", active[0].Endpoint)

	// The dead endpoint got the first article only; later articles skip it.
	var deadDeliveries int
	for _, s := range sender.sent {
		if s == "ep-dead|a0" || s == "ep-dead|a1" {
			deadDeliveries++
		}
	}
	require.Equal(t, 1, deadDeliveries)
}

func TestNotifier_FanOut_TransientFailureKeepsEndpoint(t *testing.T) {
	t.Parallel()

	store, src := setup(t, "ep-flaky")
	arts := articlesFixture(1)
	require.NoError(t, store.InsertArticles(context.Background(), arts))

	sender := &fakeSender{failures: map[string]error{"ep-flaky": errors.New("connection reset")}}
	New(store, sender, zap.NewNop()).FanOut(context.Background(), src, arts)

	active, err := store.ListActiveSubscriptions(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, active, 1)

	// Article is still marked notified; no redelivery storm next cycle.
	got, err := store.GetArticle(context.Background(), "owner-1", "a0")
	require.NoError(t, err)
	require.True(t, got.NotificationSent)
}

func TestNotifier_FanOut_NoArticlesNoWork(t *testing.T) {
	t.Parallel()

	store, src := setup(t, "ep-1")
	sender := &fakeSender{}
	New(store, sender, zap.NewNop()).FanOut(context.Background(), src, nil)
	require.Empty(t, sender.sent)
}
