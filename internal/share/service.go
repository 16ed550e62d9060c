// Package share manages public share tokens for articles and serves the
// no-auth discovery reader backed by those tokens.
package share

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// TokenSource issues opaque share identifiers.
type TokenSource interface {
	New() (string, error)
}

type Service struct {
	store  feed.Store
	tokens TokenSource
	logger *zap.Logger
}

func New(store feed.Store, tokens TokenSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, tokens: tokens, logger: logger}
}

// Share makes an article publicly readable and returns its share ID.
// Sharing an already-shared article returns the existing ID unchanged.
func (s *Service) Share(ctx context.Context, ownerID, articleID string) (string, error) {
	article, err := s.store.GetArticle(ctx, ownerID, articleID)
	if err != nil {
		return "", err
	}
	if article.IsShared && article.ShareID != "" {
		return article.ShareID, nil
	}

	shareID, err := s.tokens.New()
	if err != nil {
		return "", fmt.Errorf("generating share token: %w", err)
	}
	if err := s.store.SetArticleShare(ctx, ownerID, articleID, shareID, true); err != nil {
		return "", err
	}
	s.logger.Info("article shared",
		zap.String("article_id", articleID),
		zap.String("share_id", shareID),
	)
	return shareID, nil
}

// Unshare revokes public access. Unsharing an article that is not shared
// is a no-op.
func (s *Service) Unshare(ctx context.Context, ownerID, articleID string) error {
	article, err := s.store.GetArticle(ctx, ownerID, articleID)
	if err != nil {
		return err
	}
	if !article.IsShared {
		return nil
	}
	return s.store.SetArticleShare(ctx, ownerID, articleID, "", false)
}

// GetShared resolves a share ID to its article. Revoked or unknown IDs
// return feed.ErrNotFound.
func (s *Service) GetShared(ctx context.Context, shareID string) (feed.Article, error) {
	return s.store.GetSharedArticle(ctx, shareID)
}

// Discover lists shared articles for the public reader, newest first.
func (s *Service) Discover(ctx context.Context, query feed.DiscoveryQuery) ([]feed.Article, error) {
	return s.store.ListSharedArticles(ctx, query)
}
