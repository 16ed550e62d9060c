// Package fetch retrieves and parses feed documents.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/linkhoard/feedwatch/internal/feed"
)

const (
	acceptHeader = "application/rss+xml, application/atom+xml, application/xml, text/xml"
	// maxBodyBytes bounds how much of a feed document is read.
	maxBodyBytes = 10 << 20
)

// Client fetches feeds over HTTP with a bounded timeout and conditional-GET
// validators, then parses them with gofeed.
type Client struct {
	http      *http.Client
	parser    *gofeed.Parser
	userAgent string
	logger    *zap.Logger
}

// New creates a Client.
func New(timeout time.Duration, userAgent string, logger *zap.Logger) *Client {
	return &Client{
		http:      &http.Client{Timeout: timeout},
		parser:    gofeed.NewParser(),
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch performs a single GET of the source's feed document. A 304 response
// returns NotModified with no entries; any other non-2xx status is an error.
func (c *Client) Fetch(ctx context.Context, src feed.Source) (feed.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.FeedURL, nil)
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	if src.ETag != "" {
		req.Header.Set("If-None-Match", src.ETag)
	}
	if src.LastModified != "" {
		req.Header.Set("If-Modified-Since", src.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotModified {
		return feed.FetchResult{
			NotModified:  true,
			ETag:         src.ETag,
			LastModified: src.LastModified,
		}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return feed.FetchResult{}, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("read feed body: %w", err)
	}

	parsed, err := c.parser.Parse(bytes.NewReader(raw))
	if err != nil {
		return feed.FetchResult{}, fmt.Errorf("parse feed: %w", err)
	}

	result := feed.FetchResult{
		FeedTitle:    parsed.Title,
		Raw:          raw,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}
	for i, item := range parsed.Items {
		entry, ok := toEntry(item)
		if !ok {
			// Per-entry defects never fail the run.
			c.logger.Warn("skipping unidentifiable feed entry",
				zap.String("feed_url", src.FeedURL),
				zap.Int("index", i),
			)
			continue
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, nil
}

// toEntry maps a gofeed item to an Entry. Entries with neither a guid nor a
// link have no identity and are rejected.
func toEntry(item *gofeed.Item) (feed.Entry, bool) {
	if item == nil {
		return feed.Entry{}, false
	}
	guid := strings.TrimSpace(item.GUID)
	if guid == "" {
		guid = normalizeLink(item.Link)
	}
	if guid == "" {
		return feed.Entry{}, false
	}

	entry := feed.Entry{
		Title:    strings.TrimSpace(item.Title),
		Link:     strings.TrimSpace(item.Link),
		GUID:     guid,
		Summary:  strings.TrimSpace(item.Description),
		Content:  strings.TrimSpace(item.Content),
		ImageURL: imageURL(item),
	}
	if entry.Content == "" {
		entry.Content = entry.Summary
	}
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		entry.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		entry.PublishedAt = &t
	}
	return entry, true
}

// normalizeLink strips fragments and whitespace so the same entry URL always
// produces the same fallback guid.
func normalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return link
	}
	u.Fragment = ""
	return strings.TrimSuffix(u.String(), "/")
}

func imageURL(item *gofeed.Item) string {
	if item.Image != nil && item.Image.URL != "" {
		return item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if strings.HasPrefix(enc.Type, "image/") && enc.URL != "" {
			return enc.URL
		}
	}
	return ""
}
