package pubsub

import (
	"context"
	"errors"
	"testing"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/towndrop-backend/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	assert.Equal(t, "projects/p1/topics/orders", topicResourceName("p1", " orders "))
	assert.Equal(t, "projects/p2/topics/orders", topicResourceName("p1", "projects/p2/topics/orders"))
	assert.Equal(t, "", topicResourceName("", "orders"))
	assert.Equal(t, "", topicResourceName("p1", ""))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(status.Error(codes.Unavailable, "try later")))
	assert.True(t, IsRetryable(errors.New("deadline exceeded")))
	assert.False(t, IsRetryable(status.Error(codes.NotFound, "no topic")))
	assert.False(t, IsRetryable(status.Error(codes.PermissionDenied, "denied")))
	assert.False(t, IsRetryable(nil))
}

func TestNewClientRequiresProjectAndTopic(t *testing.T) {
	_, err := NewClient(context.Background(), config.PubSubConfig{OrdersTopic: "orders"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.PubSubConfig{ProjectID: "p1", OrdersTopic: "  "}, nil)
	require.ErrorIs(t, err, errTopicRequired)
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	assert.Nil(t, c.Publish(context.Background(), &pubsub.Message{}))
	assert.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	assert.NoError(t, c.Close())
	assert.Equal(t, "", c.Topic())
	c.ResumePublish("order-1")
}
