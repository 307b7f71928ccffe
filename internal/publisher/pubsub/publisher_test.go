package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "spirits-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "enrichment")
	require.NoError(t, err)

	pub := New(client, "enrichment")
	t.Cleanup(func() { _ = pub.Close() })

	id, err := pub.Publish(ctx, "", map[string]any{"product_id": "p-1", "success": true})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.JSONEq(t, `{"product_id":"p-1","success":true}`, string(msgs[0].Data))
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, _ := newTestClient(t)
	pub := New(client, "")
	t.Cleanup(func() { _ = pub.Close() })

	_, err := pub.Publish(ctx, "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(ctx, "missing-topic", "x")
	require.Error(t, err)

	_, err = pub.Publish(ctx, "t", make(chan int))
	require.ErrorContains(t, err, "marshal payload")

	_, err = New(nil, "t").Publish(ctx, "", "x")
	require.Error(t, err)
}
