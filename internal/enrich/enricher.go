// Package enrich provides clients for the article enrichment service.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// HTTPEnricher calls an external summarization service. The service is an
// opaque collaborator: it receives the raw entry and answers with a summary
// and formatted content.
type HTTPEnricher struct {
	url    string
	client *http.Client
}

// NewHTTPEnricher creates an HTTPEnricher with its own bounded timeout.
func NewHTTPEnricher(url string, timeout time.Duration) *HTTPEnricher {
	return &HTTPEnricher{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type enrichRequest struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Enrich posts the entry to the enrichment service.
func (e *HTTPEnricher) Enrich(ctx context.Context, entry feed.Entry) (feed.Enrichment, error) {
	body, err := json.Marshal(enrichRequest{
		Title:   entry.Title,
		URL:     entry.Link,
		Content: entry.Content,
	})
	if err != nil {
		return feed.Enrichment{}, fmt.Errorf("marshal enrich request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return feed.Enrichment{}, fmt.Errorf("build enrich request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return feed.Enrichment{}, fmt.Errorf("call enrichment service: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return feed.Enrichment{}, fmt.Errorf("enrichment service returned HTTP %d", resp.StatusCode)
	}

	var out feed.Enrichment
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return feed.Enrichment{}, fmt.Errorf("decode enrichment response: %w", err)
	}
	return out, nil
}

// Noop passes the raw entry content through unchanged.
type Noop struct{}

// Enrich returns the entry's own content with an empty summary.
func (Noop) Enrich(_ context.Context, entry feed.Entry) (feed.Enrichment, error) {
	return feed.Enrichment{FormattedContent: entry.Content}, nil
}
