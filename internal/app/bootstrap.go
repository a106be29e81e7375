package app

import (
	"context"
	"log/slog"
)

type bootstrap struct {
	di *dependencyInjector
}

// NewBootstrap wires the resource provisioner.
func NewBootstrap(ctx context.Context) *bootstrap {
	di := newDI()
	di.Logger()
	return &bootstrap{di: di}
}

func (b *bootstrap) Run(ctx context.Context) error {
	defer b.di.Close()

	res, err := b.di.Provisioner(ctx).Ensure(ctx)
	if err != nil {
		return err
	}

	slog.Info("resources",
		slog.String("bucket", res.Bucket),
		slog.String("table", res.Table),
		slog.String("topic_arn", res.TopicARN),
		slog.String("queue_url", res.QueueURL),
		slog.String("queue_arn", res.QueueARN),
		slog.String("subscription_arn", res.SubscriptionARN),
	)

	return nil
}
