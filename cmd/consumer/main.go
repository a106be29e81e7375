package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/you-humble/tasksync/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	if err := app.NewConsumer(ctx).Run(ctx); err != nil {
		panic(err)
	}
}
