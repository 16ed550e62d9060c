package push

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/linkhoard/feedwatch/internal/feed"
)

// topicPublisher abstracts the Pub/Sub topic for testing.
type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult
}

// PubSubSender hands payloads to a Pub/Sub topic; an external delivery
// service owns the actual endpoint transport. Endpoint-gone classification
// is not available on this path, so subscriptions are never pruned by it.
type PubSubSender struct {
	topic topicPublisher
}

// NewPubSubSender creates a PubSubSender for an existing client and topic.
func NewPubSubSender(client *pubsub.Client, topicID string) (*PubSubSender, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("topic id is required")
	}
	return &PubSubSender{topic: client.Topic(topicID)}, nil
}

// NewPubSubSenderWithTopic constructs a sender from any publisher (for tests).
func NewPubSubSenderWithTopic(topic topicPublisher) *PubSubSender {
	return &PubSubSender{topic: topic}
}

// Send publishes the payload with owner/endpoint attributes and waits for
// the server ack.
func (s *PubSubSender) Send(ctx context.Context, sub feed.Subscription, payload feed.NotificationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	result := s.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"owner_id": sub.OwnerID,
			"endpoint": sub.Endpoint,
		},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
