package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	var _ propagation.TextMapCarrier = c
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.ElementsMatch(t, []string{"traceparent"}, c.Keys())
	require.Empty(t, c.Get("missing"))
}

func TestPublishWithoutClient(t *testing.T) {
	t.Parallel()

	var p *Publisher
	_, err := p.Publish(context.Background(), "topic", map[string]string{"k": "v"})
	require.Error(t, err)
	require.NoError(t, p.Close())

	_, err = New(context.Background(), "")
	require.Error(t, err)
}

func TestPublishToFakeServer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "harvest-test", option.WithGRPCConn(conn))
	require.NoError(t, err)

	topic, err := client.CreateTopic(ctx, "progress")
	require.NoError(t, err)
	sub, err := client.CreateSubscription(ctx, "progress-sub", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)

	p := NewWithClient(client)
	id, err := p.Publish(ctx, "progress", map[string]any{"stage": "RUN_DONE", "found": 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	got := make(chan *pubsub.Message, 1)
	err = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
		msg.Ack()
		select {
		case got <- msg:
		default:
		}
		cancel()
	})
	require.NoError(t, err)

	msg := <-got
	require.Equal(t, "application/json", msg.Attributes["content-type"])
	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	require.Equal(t, "RUN_DONE", payload["stage"])
	require.InDelta(t, 3, payload["found"], 0)

	require.NoError(t, p.Close())
}
