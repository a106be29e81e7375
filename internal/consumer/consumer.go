package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/tasksync/internal/domain"
	"github.com/you-humble/tasksync/internal/metrics"

	"github.com/nats-io/nats.go"
)

// ConsumerManager is the part of nats.JetStreamContext the consumer needs.
type ConsumerManager interface {
	AddConsumer(stream string, cfg *nats.ConsumerConfig, opts ...nats.JSOpt) (*nats.ConsumerInfo, error)
	PullSubscribe(subj, durable string, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// EventHandler receives every decoded task event. A returned error makes
// the message redeliver.
type EventHandler func(ctx context.Context, ev domain.TaskEvent) error

type Acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

type natsConsumer struct {
	js      ConsumerManager
	queue   string
	durable string
	size    int
	handle  EventHandler

	done chan struct{}
	sub  *nats.Subscription
}

func New(js ConsumerManager, queue, durable string, size int, handle EventHandler) *natsConsumer {
	if size < 1 {
		size = 1
	}
	if handle == nil {
		handle = LogEvent
	}

	return &natsConsumer{
		js:      js,
		queue:   queue,
		durable: durable,
		size:    size,
		handle:  handle,
		done:    make(chan struct{}, size),
	}
}

// Run binds a durable pull consumer to the queue stream and starts the
// workers. Messages sourced from the topic keep the topic subject, so the
// consumer has no subject filter.
func (c *natsConsumer) Run(ctx context.Context) error {
	_, err := c.js.AddConsumer(c.queue, &nats.ConsumerConfig{
		Durable:       c.durable,
		AckPolicy:     nats.AckExplicitPolicy,
		MaxAckPending: c.size * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("add consumer %q on %q: %w", c.durable, c.queue, err)
	}

	sub, err := c.js.PullSubscribe("", c.durable, nats.Bind(c.queue, c.durable))
	if err != nil {
		return fmt.Errorf("pull subscribe %q: %w", c.durable, err)
	}
	c.sub = sub

	for range c.size {
		go func() {
			defer func() { c.done <- struct{}{} }()
			c.runWorker(ctx)
		}()
	}

	slog.Info("Queue consumer is running",
		slog.Int("workers", c.size),
		slog.String("queue", c.queue),
		slog.String("durable", c.durable),
	)

	return nil
}

// Stop waits for ctx to end and for every worker to exit.
func (c *natsConsumer) Stop(ctx context.Context) {
	<-ctx.Done()

	if c.sub == nil {
		return
	}

	for range c.size {
		<-c.done
	}

	if err := c.sub.Drain(); err != nil {
		slog.Warn("NATS subscription drain", slog.String("error", err.Error()))
	}

	slog.Info("Queue consumer stopped")
}

func (c *natsConsumer) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Worker stopping")
			return
		default:
		}

		msgs, err := c.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, nats.ErrTimeout) {
				continue
			}
			slog.Warn("NATS Fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			c.process(ctx, msg.Data, msg)
		}
	}
}

// process decodes one message and settles it: Ack on success, Nak on a
// handler error, Term on a payload that can never be decoded.
func (c *natsConsumer) process(ctx context.Context, data []byte, ack Acker) {
	ev, err := Decode(data)
	if err != nil {
		metrics.EventsConsumedTotal.WithLabelValues("invalid").Inc()
		slog.Error("decode task event", slog.String("error", err.Error()))
		if err := ack.Term(); err != nil {
			slog.Warn("NATS Term", slog.String("error", err.Error()))
		}
		return
	}

	if err := c.handle(ctx, ev); err != nil {
		slog.Error("handle task event",
			slog.String("task_id", ev.TaskID),
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
		if err := ack.Nak(); err != nil {
			slog.Warn("NATS Nak", slog.String("error", err.Error()))
		}
		return
	}

	metrics.EventsConsumedTotal.WithLabelValues(ev.Type).Inc()
	if err := ack.Ack(); err != nil {
		slog.Warn("NATS Ack", slog.String("error", err.Error()))
	}
}

func Decode(data []byte) (domain.TaskEvent, error) {
	var ev domain.TaskEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return domain.TaskEvent{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	if ev.Type == "" || ev.TaskID == "" {
		return domain.TaskEvent{}, fmt.Errorf("%w: event without type or task id", domain.ErrValidation)
	}

	return ev, nil
}

// LogEvent is the default handler: it records the event in the log.
func LogEvent(_ context.Context, ev domain.TaskEvent) error {
	slog.Info("task event",
		slog.String("type", ev.Type),
		slog.String("task_id", ev.TaskID),
		slog.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}
