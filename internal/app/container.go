package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/dig"

	"service-dispatch/internal/config"
	"service-dispatch/internal/eventbus"
	"service-dispatch/internal/http/handlers"
	"service-dispatch/internal/http/middleware"
	"service-dispatch/internal/http/middleware/ratelimit"
	"service-dispatch/internal/http/pprofserver"
	"service-dispatch/internal/http/router"
	"service-dispatch/internal/logx"
	"service-dispatch/internal/metrics"
	"service-dispatch/internal/notify"
	"service-dispatch/internal/service/dispatch"
	"service-dispatch/internal/service/orders"
	"service-dispatch/internal/service/resources"
	"service-dispatch/internal/service/tracking"
	"service-dispatch/internal/transport/kafka"
	"service-dispatch/internal/transport/mqtt"
	"service-dispatch/internal/transport/ws"
)

// ContainerBuilder is a dig container builder.
type ContainerBuilder struct {
	dbConnect  dbConnectFunc
	loadConfig func() (*config.Config, error)
	logFatalf  func(string, ...interface{})
}

// NewContainerBuilder returns a new dig container builder
func NewContainerBuilder() *ContainerBuilder {
	return &ContainerBuilder{
		dbConnect:  connectDbWithRetry,
		loadConfig: config.Load,
		logFatalf:  log.Fatalf,
	}
}

// WithDBConnect sets the database connection function
func (b *ContainerBuilder) WithDBConnect(fn dbConnectFunc) *ContainerBuilder {
	if fn != nil {
		b.dbConnect = fn
	}
	return b
}

// WithConfig replaces config.Load with a fixed configuration.
func (b *ContainerBuilder) WithConfig(cfg *config.Config) *ContainerBuilder {
	if cfg != nil {
		b.loadConfig = func() (*config.Config, error) { return cfg, nil }
	}
	return b
}

// WithLogFatalf sets the log.Fatalf function
func (b *ContainerBuilder) WithLogFatalf(fn func(string, ...interface{})) *ContainerBuilder {
	if fn != nil {
		b.logFatalf = fn
	}
	return b
}

// MustBuild builds and returns a new dig container
func (b *ContainerBuilder) MustBuild(ctx context.Context) *dig.Container {
	container, err := b.build(ctx)
	if err != nil {
		b.logFatalf("failed to build container: %v", err)
	}
	return container
}

func (b *ContainerBuilder) build(ctx context.Context) (*dig.Container, error) {
	container := dig.New()

	if err := registerCore(container, ctx, b.loadConfig); err != nil {
		return nil, fmt.Errorf("core: %w", err)
	}
	if err := registerStorage(container, b.dbConnect); err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := registerService(container); err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	if err := registerIntake(container); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	if err := registerHTTP(container); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	return container, nil
}

// MustBuildContainer builds and returns a new dig container
func MustBuildContainer(ctx context.Context) *dig.Container {
	return NewContainerBuilder().MustBuild(ctx)
}

func provideAll(container *dig.Container, providers ...any) error {
	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("provide %T: %w", provider, err)
		}
	}
	return nil
}

func registerCore(container *dig.Container, ctx context.Context, loadConfig func() (*config.Config, error)) error {
	return provideAll(container,
		func() context.Context { return ctx },
		loadConfig,
		NewLogger,
		newMetrics,
	)
}

func registerStorage(container *dig.Container, dbConnect dbConnectFunc) error {
	return provideAll(container,
		func(ctx context.Context, cfg *config.Config, logger logx.Logger) (*relationalStore, error) {
			return newRelationalStore(ctx, cfg, logger, dbConnect)
		},
		newLocationStore,
	)
}

func registerService(container *dig.Container) error {
	return provideAll(container,
		func(logger logx.Logger, m *appMetrics) *eventbus.Bus {
			bus := eventbus.New(logger, m.eventsPublished, m.subscribersPruned)
			m.registry.MustRegister(metrics.NewSubscriptionsGauge(bus.Subscriptions))
			return bus
		},
		func(cfg *config.Config, logger logx.Logger, store *locationStore, bus *eventbus.Bus, m *appMetrics) *tracking.Service {
			svc := tracking.NewService(store.store, bus, logger, tracking.Config{
				Interval:         cfg.Tracking.Interval,
				SpeedKmh:         cfg.Tracking.SpeedKmh,
				OperationTimeout: cfg.OperationTimeout,
			})
			m.registry.MustRegister(metrics.NewActiveFeedsGauge(svc.ActiveFeeds))
			return svc
		},
		newNotifier,
		func(
			cfg *config.Config,
			logger logx.Logger,
			store *relationalStore,
			bus *eventbus.Bus,
			notifier dispatch.Notifier,
			tracker *tracking.Service,
			m *appMetrics,
		) *dispatch.Service {
			return dispatch.NewService(dispatch.Deps{
				Deliveries:       store.deliveries,
				Resources:        store.resources,
				Publisher:        bus,
				Notifier:         notifier,
				Tracker:          tracker,
				Logger:           logger,
				OperationTimeout: cfg.OperationTimeout,
				NotifyTimeout:    notifyBudget(cfg.Notify),
				AssignedTotal:    m.deliveriesAssigned,
				TransitionsTotal: m.deliveryTransitions,
			})
		},
		func(cfg *config.Config, logger logx.Logger, store *relationalStore) *resources.Service {
			return resources.NewService(store.resources, logger, cfg.OperationTimeout)
		},
	)
}

func registerIntake(container *dig.Container) error {
	return provideAll(container,
		func(svc *dispatch.Service, logger logx.Logger) *orders.Processor {
			return orders.NewProcessor(svc, logger)
		},
		func(cfg *config.Config, logger logx.Logger, p *orders.Processor) (*kafka.Consumer, error) {
			if !cfg.Kafka.Enabled() {
				return nil, nil
			}
			return kafka.NewConsumer(logger, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.OrdersTopic, makeOrdersKafka(p))
		},
		func(cfg *config.Config, logger logx.Logger, tracker *tracking.Service) *mqtt.DeviceFeed {
			if cfg.MQTT.Broker == "" {
				return nil
			}
			client := mqtt.NewClient(mqtt.Config{
				Broker:   cfg.MQTT.Broker,
				ClientID: cfg.MQTT.ClientID,
				Username: cfg.MQTT.Username,
				Password: cfg.MQTT.Password,
			}, logger)
			return mqtt.NewDeviceFeed(client, tracker, cfg.MQTT.TopicPrefix, cfg.OperationTimeout, logger)
		},
	)
}

type pprofOut struct {
	dig.Out

	Server *http.Server `name:"pprof_server"`
}

func registerHTTP(container *dig.Container) error {
	serverProvider := func(cfg *config.Config, mux http.Handler, stream *ws.Handler) *http.Server {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			// zero: websocket sessions set their own write deadlines
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		}
		// Shutdown leaves hijacked websocket connections alone
		srv.RegisterOnShutdown(stream.Close)
		return srv
	}
	pprofProvider := func(cfg *config.Config, logger logx.Logger) pprofOut {
		if !cfg.Pprof.Enabled {
			return pprofOut{}
		}
		return pprofOut{Server: pprofserver.New(pprofserver.Config{
			Addr: cfg.Pprof.Addr,
			User: cfg.Pprof.User,
			Pass: cfg.Pprof.Pass,
		}, logger)}
	}
	return provideAll(container,
		handlers.New,
		func(logger logx.Logger, svc *resources.Service) *handlers.ResourceHandler {
			return handlers.NewResourceHandler(logger, handlers.NewResourceUsecase(svc))
		},
		func(logger logx.Logger, svc *dispatch.Service) *handlers.DeliveryHandler {
			return handlers.NewDeliveryHandler(logger, handlers.NewDispatchUsecase(svc))
		},
		func(logger logx.Logger, tracker *tracking.Service, svc *dispatch.Service) *handlers.TrackingHandler {
			return handlers.NewTrackingHandler(logger, handlers.NewTrackingUsecase(tracker), handlers.NewDispatchUsecase(svc))
		},
		func(cfg *config.Config, logger logx.Logger, bus *eventbus.Bus) *ws.Handler {
			return ws.NewHandler(bus, logger, cfg.WS.WriteTimeout)
		},
		newRateLimiter,
		newRateLimitClock,
		newRateLimitMiddleware,
		newRouter,
		serverProvider,
		pprofProvider,
	)
}

type routerIn struct {
	dig.In

	Logger     logx.Logger
	Metrics    *appMetrics
	Base       *handlers.Handlers
	Resources  *handlers.ResourceHandler
	Deliveries *handlers.DeliveryHandler
	Tracking   *handlers.TrackingHandler
	Stream     *ws.Handler
	RateLimit  *ratelimit.Middleware
}

func newRouter(in routerIn) http.Handler {
	return router.New(router.Deps{
		Base:       in.Base,
		Resources:  in.Resources,
		Deliveries: in.Deliveries,
		Tracking:   in.Tracking,
		Stream:     in.Stream,
		Metrics:    in.Metrics.handler(),
		Middlewares: []func(http.Handler) http.Handler{
			middleware.Observability(in.Logger, middleware.HTTPMetrics{
				Requests: in.Metrics.httpRequests,
				Duration: in.Metrics.httpDuration,
			}),
			in.RateLimit.Handler(),
		},
	})
}

func newNotifier(cfg *config.Config, logger logx.Logger, m *appMetrics) dispatch.Notifier {
	if cfg.Notify.WebhookURL == "" {
		return notify.Nop{}
	}
	webhook := notify.NewWebhook(cfg.Notify.WebhookURL, nil, cfg.Notify.Timeout)
	return notify.NewRetrying(webhook, logger, m.notifyRetries, notify.RetryConfig{
		MaxAttempts: cfg.Notify.MaxAttempts,
		BaseDelay:   cfg.Notify.BaseDelay,
		MaxDelay:    cfg.Notify.MaxDelay,
	})
}

// notifyBudget covers every attempt plus the backoff between them.
func notifyBudget(n config.Notify) time.Duration {
	attempts := time.Duration(n.MaxAttempts)
	return attempts*n.Timeout + (attempts-1)*n.MaxDelay
}
