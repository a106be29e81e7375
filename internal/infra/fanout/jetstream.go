package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// StreamManager is the part of nats.JetStreamContext used for provisioning.
type StreamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// jetStreamFanout maps topics and queues onto JetStream streams. A
// subscription makes the queue stream source every message of the topic
// stream.
type jetStreamFanout struct {
	js        StreamManager
	serverURL string
}

func NewJetStreamFanout(js StreamManager, serverURL string) *jetStreamFanout {
	return &jetStreamFanout{
		js:        js,
		serverURL: serverURL,
	}
}

// CreateTopic is idempotent: an existing stream yields its ARN.
func (f *jetStreamFanout) CreateTopic(ctx context.Context, name string) (string, error) {
	err := f.ensureStream(ctx, &nats.StreamConfig{
		Name:     name,
		Subjects: []string{name},
		Storage:  nats.FileStorage,
		Replicas: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create topic %q: %w", name, err)
	}

	return StreamARN(name), nil
}

// CreateQueue is idempotent: an existing stream yields its URL.
func (f *jetStreamFanout) CreateQueue(ctx context.Context, name string) (string, error) {
	err := f.ensureStream(ctx, &nats.StreamConfig{
		Name:      name,
		Subjects:  []string{name},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
		Replicas:  1,
	})
	if err != nil {
		return "", fmt.Errorf("create queue %q: %w", name, err)
	}

	return QueueURL(f.serverURL, name), nil
}

func (f *jetStreamFanout) QueueARN(ctx context.Context, queueURL string) (string, error) {
	name := NameFromARN(queueURL)
	if _, err := f.js.StreamInfo(name, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("queue %q info: %w", name, err)
	}

	return StreamARN(name), nil
}

// Subscribe links the queue to the topic. Linking an already linked pair
// returns the existing subscription ARN.
func (f *jetStreamFanout) Subscribe(ctx context.Context, topicARN, protocol, endpointARN string) (string, error) {
	if protocol != ProtocolQueue {
		return "", fmt.Errorf("subscribe: unsupported protocol %q", protocol)
	}

	topic := NameFromARN(topicARN)
	queue := NameFromARN(endpointARN)
	subARN := SubscriptionARN(topicARN, queue)

	if _, err := f.js.StreamInfo(topic, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("subscribe: topic %q info: %w", topic, err)
	}

	info, err := f.js.StreamInfo(queue, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("subscribe: queue %q info: %w", queue, err)
	}

	for _, src := range info.Config.Sources {
		if src != nil && src.Name == topic {
			slog.Debug("subscription exists",
				slog.String("topic", topic),
				slog.String("queue", queue),
			)
			return subARN, nil
		}
	}

	cfg := info.Config
	cfg.Sources = append(cfg.Sources, &nats.StreamSource{Name: topic})
	if _, err := f.js.UpdateStream(&cfg, nats.Context(ctx)); err != nil {
		return "", fmt.Errorf("subscribe %q to %q: %w", queue, topic, err)
	}

	return subARN, nil
}

func (f *jetStreamFanout) ensureStream(ctx context.Context, cfg *nats.StreamConfig) error {
	_, err := f.js.AddStream(cfg, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}

	return nil
}
