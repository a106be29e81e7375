package main

import (
	"context"
	"log/slog"
	"os"
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

	if err := app.NewBootstrap(ctx).Run(ctx); err != nil {
		slog.Error("bootstrap failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}
