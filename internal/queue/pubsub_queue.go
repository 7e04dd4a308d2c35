// Package queue provides the Pub/Sub-backed capture job queue.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/watchpoint/pagewatch/internal/capture"
)

// PubSubConfig identifies the topic and subscription carrying capture jobs.
type PubSubConfig struct {
	ProjectID    string
	TopicID      string
	Subscription string
	// Buffer sizes the hand-off channel between the Pub/Sub receiver and
	// Dequeue callers.
	Buffer int
}

// PubSub implements capture.Queue over a Google Cloud Pub/Sub topic and
// subscription. Start must be called before Dequeue returns anything.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	jobs   chan capture.CaptureJob
	logger *zap.Logger
}

// NewPubSub creates the client and verifies the topic exists.
func NewPubSub(ctx context.Context, cfg PubSubConfig, logger *zap.Logger) (*PubSub, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist", cfg.TopicID)
	}

	var sub *pubsub.Subscription
	if cfg.Subscription != "" {
		sub = client.Subscription(cfg.Subscription)
	}

	return &PubSub{
		client: client,
		topic:  topic,
		sub:    sub,
		jobs:   make(chan capture.CaptureJob, cfg.Buffer),
		logger: logger,
	}, nil
}

// Start pumps received messages into the dequeue channel until the context
// ends. It blocks and is meant to run in its own goroutine.
func (q *PubSub) Start(ctx context.Context) error {
	if q.sub == nil {
		return fmt.Errorf("pubsub subscription is not configured")
	}
	err := q.sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		var job capture.CaptureJob
		if unmarshalErr := json.Unmarshal(msg.Data, &job); unmarshalErr != nil {
			q.logger.Error("drop malformed capture job", zap.Error(unmarshalErr))
			msg.Ack()
			return
		}
		select {
		case q.jobs <- job:
			msg.Ack()
		case <-msgCtx.Done():
			msg.Nack()
		}
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("pubsub receive: %w", err)
	}
	return nil
}

// Enqueue publishes a job to the topic and waits for the server ack.
func (q *PubSub) Enqueue(ctx context.Context, job capture.CaptureJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal capture job: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish capture job: %w", err)
	}
	return nil
}

// Dequeue pops the next received job, respecting context cancellation.
func (q *PubSub) Dequeue(ctx context.Context) (capture.CaptureJob, error) {
	select {
	case <-ctx.Done():
		return capture.CaptureJob{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case job := <-q.jobs:
		return job, nil
	}
}

// Close stops the publisher and closes the client.
func (q *PubSub) Close() error {
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
