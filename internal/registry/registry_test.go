package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/storage/memory"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func seedSource(t *testing.T, store *memory.Store, active bool) feed.Source {
	t.Helper()
	src := feed.Source{
		ID:           "src-1",
		OwnerID:      "owner-1",
		FeedURL:      "https://example.com/feed.xml",
		IsActive:     active,
		Status:       feed.StatusIdle,
		ScheduleMode: feed.ScheduleInherit,
	}
	require.NoError(t, store.CreateSource(context.Background(), src))
	return src
}

func TestRegistry_TryAcquire_SetsRunning(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedSource(t, store, true)
	r := New(store, &fakeClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())

	src, err := r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusRunning, src.Status)

	stored, err := store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusRunning, stored.Status)
}

func TestRegistry_TryAcquire_RefusesRunning(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedSource(t, store, true)
	r := New(store, &fakeClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())

	_, err := r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)

	_, err = r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.ErrorIs(t, err, feed.ErrSourceRunning)
}

func TestRegistry_TryAcquire_RefusesInactive(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedSource(t, store, false)
	r := New(store, &fakeClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())

	_, err := r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.ErrorIs(t, err, feed.ErrSourceInactive)

	stored, err := store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusIdle, stored.Status)
}

func TestRegistry_TryAcquire_UnknownSource(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	r := New(store, &fakeClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())

	_, err := r.TryAcquire(context.Background(), "owner-1", "missing")
	require.ErrorIs(t, err, feed.ErrNotFound)
}

func TestRegistry_TryAcquire_MutualExclusionUnderConcurrency(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedSource(t, store, true)
	r := New(store, &fakeClock{now: time.Unix(1000, 0).UTC()}, zap.NewNop())

	const attempts = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, attempts)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.TryAcquire(context.Background(), "owner-1", "src-1"); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	require.Len(t, wins, 1, "exactly one concurrent acquire may win")
}

func TestRegistry_Release_AlwaysAdvancesLastRun(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()
	seedSource(t, store, true)
	clock := &fakeClock{now: time.Unix(5000, 0).UTC()}
	r := New(store, clock, zap.NewNop())

	_, err := r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.NoError(t, r.Release(context.Background(), "owner-1", "src-1", feed.OutcomeFailed, "fetch blew up"))

	stored, err := store.GetSource(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
	require.Equal(t, feed.StatusFailed, stored.Status)
	require.Equal(t, "fetch blew up", stored.LastError)
	require.NotNil(t, stored.LastRunAt)
	require.Equal(t, clock.now, *stored.LastRunAt)

	// A released source is acquirable again regardless of outcome label.
	_, err = r.TryAcquire(context.Background(), "owner-1", "src-1")
	require.NoError(t, err)
}
