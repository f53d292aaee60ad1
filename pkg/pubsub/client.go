// Package pubsub owns the Pub/Sub connection used to fan outbox events out
// to downstream consumers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/towndrop-backend/pkg/config"
	"github.com/angelmondragon/towndrop-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("pubsub: gcp project id is required")
	errTopicRequired     = errors.New("pubsub: orders topic is required")
	errNotInitialized    = errors.New("pubsub: client not initialized")
)

// Client publishes to the single orders topic. The topic publisher is
// created lazily and shared, since each one runs its own batching
// goroutines.
type Client struct {
	client   *pubsub.Client
	topic    string
	ordering bool

	once      sync.Once
	publisher *pubsub.Publisher
}

// NewClient dials Pub/Sub and fails fast when the orders topic is missing.
func NewClient(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	topic := topicResourceName(projectID, cfg.OrdersTopic)
	if topic == "" {
		return nil, errTopicRequired
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub: dial: %w", err)
	}
	c := &Client{client: raw, topic: topic, ordering: cfg.EnableOrdering}
	if err := c.Ping(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{"topic": topic, "ordering": cfg.EnableOrdering}), "pubsub.connected")
	return c, nil
}

// Topic is the fully qualified orders topic name.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

func (c *Client) topicPublisher() *pubsub.Publisher {
	c.once.Do(func() {
		c.publisher = c.client.Publisher(c.topic)
		c.publisher.EnableMessageOrdering = c.ordering
	})
	return c.publisher
}

// Publish queues msg on the orders topic. Messages sharing an ordering key
// are delivered in publish order when ordering is enabled; otherwise the
// key is dropped.
func (c *Client) Publish(ctx context.Context, msg *pubsub.Message) *pubsub.PublishResult {
	if c == nil || c.client == nil {
		return nil
	}
	if !c.ordering {
		msg.OrderingKey = ""
	}
	return c.topicPublisher().Publish(ctx, msg)
}

// ResumePublish unblocks an ordering key after a failed publish. Until it
// is called every later message with that key fails immediately.
func (c *Client) ResumePublish(orderingKey string) {
	if c == nil || c.client == nil || !c.ordering || orderingKey == "" {
		return
	}
	c.topicPublisher().ResumePublish(orderingKey)
}

// Ping looks the topic up through the admin API.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: c.topic})
	switch {
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub: topic %s does not exist", c.topic)
	case err != nil:
		return fmt.Errorf("pubsub: get topic %s: %w", c.topic, err)
	}
	return nil
}

// Close flushes pending messages before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Stop()
	}
	return c.client.Close()
}

// IsRetryable reports whether a publish error is worth another attempt.
// Configuration and permission failures will not fix themselves.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.InvalidArgument, codes.NotFound, codes.PermissionDenied,
		codes.Unauthenticated, codes.FailedPrecondition, codes.Unimplemented:
		return false
	}
	return true
}

func topicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/"):
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
