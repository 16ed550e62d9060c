package push

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/linkhoard/feedwatch/internal/feed"
)

func newTestTopic(t *testing.T) (*pubsub.Topic, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "notifications")
	require.NoError(t, err)
	t.Cleanup(topic.Stop)

	return topic, srv
}

func TestPubSubSenderPublishesPayload(t *testing.T) {
	t.Parallel()

	topic, srv := newTestTopic(t)
	sender := NewPubSubSenderWithTopic(topic)

	sub := feed.Subscription{
		OwnerID:  "owner-1",
		Endpoint: "https://push.example.com/ep1",
	}
	payload := feed.NotificationPayload{
		ArticleID: "art-1",
		SourceID:  "src-1",
		Title:     "New article",
		URL:       "https://example.com/story",
	}

	require.NoError(t, sender.Send(context.Background(), sub, payload))

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "owner-1", msgs[0].Attributes["owner_id"])
	require.Equal(t, "https://push.example.com/ep1", msgs[0].Attributes["endpoint"])

	var decoded feed.NotificationPayload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	require.Equal(t, payload, decoded)
}

func TestNewPubSubSenderValidatesInputs(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSender(nil, "topic")
	require.Error(t, err)
}
