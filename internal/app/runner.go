package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"
	"golang.org/x/sync/errgroup"

	"service-dispatch/internal/eventbus"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/tracking"
	"service-dispatch/internal/transport/kafka"
	"service-dispatch/internal/transport/mqtt"
)

const shutdownTimeout = 15 * time.Second

// MustRun starts the service using the provided DI container and blocks until shutdown.
func MustRun(container *dig.Container) {
	if err := run(container); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			log.Println("shutdown requested, exiting")
			return
		case errors.Is(err, context.DeadlineExceeded):
			log.Println("startup aborted: startup timeout exceeded")
			return
		default:
			log.Fatalf("run error: %v", err)
		}
	}
}

type runIn struct {
	dig.In

	Ctx       context.Context
	Logger    logx.Logger
	Server    *http.Server
	Pprof     *http.Server `name:"pprof_server" optional:"true"`
	Dispatch  *dispatch.Service
	Tracker   *tracking.Service
	Bus       *eventbus.Bus
	Consumer  *kafka.Consumer  `optional:"true"`
	Devices   *mqtt.DeviceFeed `optional:"true"`
	Store     *relationalStore
	Locations *locationStore
}

func run(container *dig.Container) error {
	return container.Invoke(serve)
}

// serve runs the HTTP servers and background intake until ctx is done, then shuts
// everything down in dependency order.
func serve(in runIn) error {
	g, gctx := errgroup.WithContext(in.Ctx)

	g.Go(func() error { return listen(in.Server, in.Logger, "http") })
	if in.Pprof != nil {
		g.Go(func() error { return listen(in.Pprof, in.Logger, "pprof") })
	}
	if in.Consumer != nil {
		g.Go(func() error { return in.Consumer.Run(gctx) })
	}
	if in.Devices != nil {
		g.Go(func() error { return in.Devices.Run(gctx) })
	}

	<-gctx.Done()
	in.Logger.Info("shutting down service-dispatch")

	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	gracefulShutdown(shCtx, in.Server, in.Logger)
	if in.Pprof != nil {
		gracefulShutdown(shCtx, in.Pprof, in.Logger)
	}

	err := g.Wait()

	in.Tracker.StopAll()
	in.Dispatch.Wait()
	in.Bus.Close()
	closeResources(shCtx, in)

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func listen(srv *http.Server, logger logx.Logger, name string) error {
	logger.Info("listening", logx.String("server", name), logx.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func gracefulShutdown(ctx context.Context, srv *http.Server, logger logx.Logger) {
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown error", logx.String("addr", srv.Addr), logx.Err(err))
	}
}

func closeResources(ctx context.Context, in runIn) {
	if in.Consumer != nil {
		if err := in.Consumer.Close(); err != nil {
			in.Logger.Error("kafka close error", logx.Err(err))
		}
	}
	if err := in.Locations.Close(ctx); err != nil {
		in.Logger.Error("location store close error", logx.Err(err))
	}
	in.Store.Close()
	_ = in.Logger.Sync()
}
