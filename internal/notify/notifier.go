// Package notify fans new articles out to registered push endpoints.
package notify

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
	"github.com/linkhoard/feedwatch/internal/metrics"
)

// Notifier delivers one notification per new article to every active
// endpoint of the source's owner.
type Notifier struct {
	store  feed.Store
	sender feed.PushSender
	logger *zap.Logger
}

// New creates a Notifier.
func New(store feed.Store, sender feed.PushSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		store:  store,
		sender: sender,
		logger: logger,
	}
}

// FanOut attempts delivery of each article to each active subscription.
// Endpoints that report permanent failure are deactivated and skipped for
// the remaining articles; transient failures are logged and left for the
// next cycle's articles. Every article is marked notified afterwards
// regardless of per-endpoint outcomes, so one flaky endpoint cannot cause
// re-delivery storms to the rest.
func (n *Notifier) FanOut(ctx context.Context, src feed.Source, articles []feed.Article) {
	if len(articles) == 0 {
		return
	}

	subs, err := n.store.ListActiveSubscriptions(ctx, src.OwnerID)
	if err != nil {
		n.logger.Error("list subscriptions failed",
			zap.String("owner_id", src.OwnerID),
			zap.Error(err),
		)
		return
	}

	dead := make(map[string]bool)
	for _, article := range articles {
		if article.NotificationSent {
			continue
		}
		payload := feed.NotificationPayload{
			ArticleID: article.ID,
			SourceID:  article.SourceID,
			Title:     article.Title,
			Body:      article.Summary,
			URL:       article.URL,
		}
		for _, sub := range subs {
			if dead[sub.Endpoint] {
				continue
			}
			err := n.sender.Send(ctx, sub, payload)
			switch {
			case err == nil:
				metrics.ObserveNotification("ok")
			case errors.Is(err, feed.ErrEndpointGone):
				metrics.ObserveNotification("gone")
				dead[sub.Endpoint] = true
				if derr := n.store.DeactivateSubscription(ctx, sub.OwnerID, sub.Endpoint); derr != nil {
					n.logger.Error("deactivate subscription failed",
						zap.String("endpoint", sub.Endpoint),
						zap.Error(derr),
					)
				} else {
					n.logger.Info("pruned dead push endpoint",
						zap.String("owner_id", sub.OwnerID),
						zap.String("endpoint", sub.Endpoint),
					)
				}
			default:
				metrics.ObserveNotification("transient_error")
				n.logger.Warn("notification delivery failed",
					zap.String("endpoint", sub.Endpoint),
					zap.String("article_id", article.ID),
					zap.Error(err),
				)
			}
		}
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = append(ids, a.ID)
	}
	if err := n.store.MarkArticlesNotified(ctx, ids); err != nil {
		n.logger.Error("mark articles notified failed",
			zap.String("source_id", src.ID),
			zap.Error(err),
		)
	}
}
