// Package push implements notification delivery transports.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// HTTPSender posts notification payloads directly to each registered
// endpoint. A 404 or 410 response classifies the endpoint as permanently
// gone; everything else is transient.
type HTTPSender struct {
	client *http.Client
}

// NewHTTPSender creates an HTTPSender with a per-delivery timeout.
func NewHTTPSender(timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{Timeout: timeout},
	}
}

// Send delivers one payload to one endpoint.
func (s *HTTPSender) Send(ctx context.Context, sub feed.Subscription, payload feed.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for name, value := range sub.Keys {
		req.Header.Set("X-Push-Key-"+name, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return fmt.Errorf("endpoint %s returned HTTP %d: %w", sub.Endpoint, resp.StatusCode, feed.ErrEndpointGone)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("endpoint %s returned HTTP %d", sub.Endpoint, resp.StatusCode)
	default:
		return nil
	}
}

// Noop discards notifications.
type Noop struct{}

// Send does nothing.
func (Noop) Send(context.Context, feed.Subscription, feed.NotificationPayload) error {
	return nil
}
