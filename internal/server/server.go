// Package server builds and runs the application from configuration.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/api"
	"github.com/linkhoard/feedwatch/internal/archive"
	"github.com/linkhoard/feedwatch/internal/clock/system"
	"github.com/linkhoard/feedwatch/internal/config"
	"github.com/linkhoard/feedwatch/internal/dispatcher"
	"github.com/linkhoard/feedwatch/internal/enrich"
	"github.com/linkhoard/feedwatch/internal/executor"
	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/fetch"
	"github.com/linkhoard/feedwatch/internal/id/uuid"
	"github.com/linkhoard/feedwatch/internal/logging"
	"github.com/linkhoard/feedwatch/internal/metrics"
	"github.com/linkhoard/feedwatch/internal/notify"
	"github.com/linkhoard/feedwatch/internal/push"
	"github.com/linkhoard/feedwatch/internal/registry"
	"github.com/linkhoard/feedwatch/internal/share"
	"github.com/linkhoard/feedwatch/internal/storage/memory"
	pgstore "github.com/linkhoard/feedwatch/internal/storage/postgres"
	"github.com/linkhoard/feedwatch/internal/token"
)

// App contains the application's wired dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	pubsubClient *pubsub.Client
	gcsClient    *storage.Client
	pgStore      *pgstore.Store
}

// Build creates the application's dependencies from configuration.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.String("db_provider", cfg.DB.Provider),
		zap.String("push_provider", cfg.Push.Provider),
		zap.String("archive_provider", cfg.Archive.Provider),
	)

	store, err := app.setupStore(ctx)
	if err != nil {
		return nil, err
	}
	blobStore, err := app.setupArchive(ctx)
	if err != nil {
		return nil, err
	}
	sender, err := app.setupPush(ctx)
	if err != nil {
		return nil, err
	}
	enricher := app.setupEnricher()

	clock := system.New()
	ids := uuid.NewGenerator()
	reg := registry.New(store, clock, logger.Named("registry"))
	notifier := notify.New(store, sender, logger.Named("notify"))
	fetcher := fetch.New(cfg.Crawler.FetchTimeout, cfg.Crawler.UserAgent, logger.Named("fetch"))

	exec := executor.New(
		store,
		reg,
		fetcher,
		enricher,
		blobStore,
		notifier,
		ids,
		clock,
		executor.Config{
			DefaultMaxItems: cfg.Crawler.DefaultMaxItems,
			ArchivePrefix:   cfg.Archive.Prefix,
		},
		logger.Named("executor"),
	)

	app.dispatch = dispatcher.New(store, reg, exec, clock, dispatcher.Config{
		TickInterval: cfg.Dispatcher.TickInterval,
		Workers:      cfg.Dispatcher.Workers,
		QueueDepth:   cfg.Dispatcher.QueueDepth,
	}, logger.Named("dispatcher"))

	shares := share.New(store, token.NewGenerator(), logger.Named("share"))
	app.apiServer = api.NewServer(store, app.dispatch, shares, ids, clock, cfg.API, logger.Named("api"))

	return app, nil
}

// Run starts the dispatcher and HTTP server and blocks until the context
// is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close releases external clients and flushes logs.
func (a *App) Close() error {
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) setupStore(ctx context.Context) (feed.Store, error) {
	switch a.cfg.DB.Provider {
	case "postgres":
		store, err := pgstore.NewStore(ctx, pgstore.Config{DSN: a.cfg.DB.DSN})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = store
		a.logger.Info("using postgres store")
		return store, nil
	default:
		a.logger.Info("using in-memory store")
		return memory.NewStore(), nil
	}
}

func (a *App) setupArchive(ctx context.Context) (feed.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.gcsClient = client
		blobStore, err := archive.NewGCS(client, a.cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.logger.Info("using GCS feed archive", zap.String("bucket", a.cfg.Archive.GCSBucket))
		return blobStore, nil
	case "local":
		blobStore, err := archive.NewLocal(a.cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		a.logger.Info("using local feed archive", zap.String("dir", a.cfg.Archive.LocalDir))
		return blobStore, nil
	default:
		a.logger.Info("feed archiving disabled")
		return archive.Noop{}, nil
	}
}

func (a *App) setupPush(ctx context.Context) (feed.PushSender, error) {
	switch a.cfg.Push.Provider {
	case "http":
		a.logger.Info("using HTTP push sender")
		return push.NewHTTPSender(a.cfg.Push.Timeout), nil
	case "pubsub":
		client, err := pubsub.NewClient(ctx, a.cfg.Push.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.pubsubClient = client
		sender, err := push.NewPubSubSender(client, a.cfg.Push.PubSub.TopicID)
		if err != nil {
			return nil, fmt.Errorf("pubsub sender init failed: %w", err)
		}
		a.logger.Info("using Pub/Sub push sender",
			zap.String("project", a.cfg.Push.PubSub.ProjectID),
			zap.String("topic", a.cfg.Push.PubSub.TopicID),
		)
		return sender, nil
	default:
		a.logger.Info("push notifications disabled")
		return push.Noop{}, nil
	}
}

func (a *App) setupEnricher() feed.Enricher {
	switch a.cfg.Enrich.Provider {
	case "http":
		a.logger.Info("using HTTP enricher", zap.String("url", a.cfg.Enrich.URL))
		return enrich.NewHTTPEnricher(a.cfg.Enrich.URL, a.cfg.Enrich.Timeout)
	default:
		a.logger.Info("enrichment disabled, passing content through")
		return enrich.Noop{}
	}
}
