package app

import (
	"context"
	"log/slog"
)

type consumerApp struct {
	di *dependencyInjector
}

// NewConsumer wires the task event consumer.
func NewConsumer(ctx context.Context) *consumerApp {
	di := newDI()
	di.Logger()
	return &consumerApp{di: di}
}

func (a *consumerApp) Run(ctx context.Context) error {
	defer a.di.Close()

	c := a.di.Consumer(ctx)
	if err := c.Run(ctx); err != nil {
		return err
	}

	c.Stop(ctx)
	slog.Info("consumer shutting down...")
	return nil
}
