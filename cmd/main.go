package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"go-notification-realtime/internal/application/facade"
	"go-notification-realtime/internal/infrastructure/auth"
	"go-notification-realtime/internal/infrastructure/config"
	"go-notification-realtime/internal/infrastructure/hub"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/infrastructure/server"
	"go-notification-realtime/internal/interfaces/rest/v1/middleware"
)

func main() {
	ctx := context.Background()
	sctx := WithSignal(ctx)

	cfg, err := config.Load()
	if err != nil {
		logger.NewLogrusLogger(logger.NewDefaultConfig()).Fatalf("failed to load config: %v", err)
	}
	log := logger.NewLogrusLogger(cfg.LoggerConfig())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hubInstance := hub.New(log, hub.WithMetrics(hub.NewMetrics(registry)))

	// Start the hub first
	if err := hubInstance.Start(ctx); err != nil {
		log.Errorf("failed to start hub: %v", err)
		return
	}

	var tokens *auth.TokenService
	if cfg.AuthEnabled() {
		tokens = auth.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)
	} else {
		log.Warn("JWT_SECRET is empty: channel authentication is disabled")
	}

	deps := routerDeps{
		hub:      hubInstance,
		service:  facade.NewNotificationService(hubInstance, log),
		tokens:   tokens,
		limiter:  middleware.NewRateLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst),
		registry: registry,
	}
	router := InitRouter(deps, log)
	httpSrv := server.NewHTTPServer(cfg.HTTPAddr, router)
	log.Infof("push server listening on %s", cfg.HTTPAddr)

	app := newApplication(log, httpSrv, hubInstance)
	if err := app.Run(sctx); err != nil {
		log.Errorf("failed to run application: %v", err)
	}
}

type Application struct {
	logger  logger.Logger
	httpSrv server.Server
	hub     *hub.Hub
}

func newApplication(
	logger logger.Logger,
	httpSrv server.Server,
	hubInstance *hub.Hub,
) *Application {
	return &Application{
		logger:  logger.WithField("app", "push"),
		httpSrv: httpSrv,
		hub:     hubInstance,
	}
}

func (app *Application) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return app.httpSrv.Start(ctx)
	})

	eg.Go(func() error {
		<-ctx.Done()

		gracefulshutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			5*time.Second,
		)
		defer cancel()

		// Stop hub first so open streams end before the server drains.
		if err := app.hub.Stop(gracefulshutdownCtx); err != nil {
			app.logger.Errorf("failed to stop hub: %v", err)
		}

		return app.httpSrv.Stop(gracefulshutdownCtx)
	})

	return eg.Wait()
}

func WithSignal(pctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(pctx)

	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

		<-sigc

		cancel()
	}()

	return ctx
}
