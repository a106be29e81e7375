package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/you-humble/tasksync/internal/domain"

	"github.com/nats-io/nats.go"
)

type MsgPublisher interface {
	PublishMsg(m *nats.Msg, opts ...nats.PubOpt) (*nats.PubAck, error)
}

const HeaderEventType = "Event-Type"

type publisher struct {
	js      MsgPublisher
	subject string
}

// NewPublisher publishes to the subject of the topic identified by topicARN.
func NewPublisher(js MsgPublisher, topicARN string) *publisher {
	return &publisher{
		js:      js,
		subject: NameFromARN(topicARN),
	}
}

func (p *publisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	if ev.TaskID == "" {
		return fmt.Errorf("empty task id")
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.Type, err)
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header:  nats.Header{},
	}
	msg.Header.Set(HeaderEventType, ev.Type)

	ack, err := p.js.PublishMsg(msg, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publish %s for task %s: %w", ev.Type, ev.TaskID, err)
	}

	slog.Debug(
		"task event published",
		slog.String("task_id", ev.TaskID),
		slog.String("type", ev.Type),
		slog.String("subject", p.subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return nil
}
