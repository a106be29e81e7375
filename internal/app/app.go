package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/you-humble/tasksync/internal/transport"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type app struct {
	di     *dependencyInjector
	srv    *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// New wires the HTTP API and the gRPC health server.
func New(ctx context.Context) *app {
	di := newDI()
	logger := di.Logger()

	grpcSrv, hs := transport.NewGRPCServer(logger)

	return &app{
		di: di,
		srv: &http.Server{
			Addr: ":" + strconv.Itoa(di.Config().Port),
			Handler: transport.WithRecover(
				di.Router(ctx).MountRoutes(chi.NewRouter()),
			),
		},
		grpc:   grpcSrv,
		health: hs,
	}
}

func (a *app) Run(ctx context.Context) error {
	defer a.di.Close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := a.di.Config().GRPCAddr
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", addr, err)
		}

		slog.Info("starting gRPC health server", slog.String("addr", addr))
		if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		return a.shutdown()
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		return err
	}

	slog.Info("server gracefully stopped")
	return nil
}

func (a *app) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		a.di.Config().ShutdownTimeout,
	)
	defer cancel()

	a.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		a.grpc.GracefulStop()
		close(stopped)
	}()

	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
		a.grpc.Stop()
		return err
	}

	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		slog.Warn("graceful stop timed out, forcing stop")
		a.grpc.Stop()
	}

	return nil
}
