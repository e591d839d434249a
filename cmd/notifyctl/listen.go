package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"go-notification-realtime/internal/infrastructure/config"
	"go-notification-realtime/internal/infrastructure/logger"
	"go-notification-realtime/internal/infrastructure/server"
	"go-notification-realtime/internal/realtime"
	"go-notification-realtime/internal/realtime/envelope"
)

func listenCmd(cfg *config.Config) *cobra.Command {
	var (
		url         string
		userID      string
		channel     string
		token       string
		baseDelay   time.Duration
		maxAttempts int
		metricsAddr string
		verbose     bool
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Open a push connection and print what arrives",
		Long: `Open a push connection for one user and channel and print toasts,
metrics updates and connection lifecycle events until interrupted or
until reconnection gives up.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("a user is required (--user or REALTIME_USER_ID)")
			}

			logCfg := cfg.LoggerConfig()
			if !verbose {
				logCfg.Level = logger.LevelWarn
			}
			log := logger.NewLogrusLogger(logCfg)

			opts := []realtime.Option{
				realtime.WithURL(url),
				realtime.WithDefaultChannel(channel),
				realtime.WithToken(token),
				realtime.WithBaseDelay(baseDelay),
				realtime.WithMaxAttempts(maxAttempts),
				realtime.WithLogger(log),
			}
			var metricsSrv *server.HTTPServer
			if metricsAddr != "" {
				registry := prometheus.NewRegistry()
				opts = append(opts, realtime.WithMetrics(realtime.NewMetrics(registry)))
				metricsSrv = server.NewHTTPServer(metricsAddr, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			}

			client, err := realtime.NewClient(userID, opts...)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return listen(ctx, client, metricsSrv)
		},
	}

	cmd.Flags().StringVar(&url, "url", cfg.RealtimeURL, "Websocket base URL")
	cmd.Flags().StringVarP(&userID, "user", "u", cfg.RealtimeUserID, "User to listen as")
	cmd.Flags().StringVarP(&channel, "channel", "c", cfg.RealtimeChannel, "Channel to open")
	cmd.Flags().StringVar(&token, "token", cfg.RealtimeToken, "Bearer token")
	cmd.Flags().DurationVar(&baseDelay, "base-delay", cfg.RealtimeBaseDelay, "First reconnection delay")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", cfg.RealtimeMaxAttempts, "Reconnection attempts before giving up")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve client metrics on this address")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	return cmd
}

// listen runs client until ctx ends or the client gives up.
func listen(ctx context.Context, client *realtime.Client, metricsSrv *server.HTTPServer) error {
	eg, ctx := errgroup.WithContext(ctx)
	gaveUp := make(chan error, 1)

	client.On(realtime.EventConnecting, func(p any) { info("connecting to %v", p) })
	client.On(realtime.EventConnected, func(p any) { success("connected to %v", p) })
	client.On(realtime.EventReconnecting, func(p any) {
		r := p.(realtime.ReconnectInfo)
		warn("connection lost, retry %d in %s", r.Attempt+1, r.Delay)
	})
	client.On(realtime.EventGiveUp, func(p any) {
		select {
		case gaveUp <- p.(error):
		default:
		}
	})
	client.On(realtime.EventShowToast, func(p any) { info("%s", p.(realtime.Toast)) })
	client.On(realtime.EventMetricsUpdated, func(p any) {
		data := p.(envelope.Data)
		info("metrics: %d values", len(data))
	})

	if err := client.Connect(""); err != nil {
		return err
	}

	if metricsSrv != nil {
		eg.Go(func() error { return metricsSrv.Start(ctx) })
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Stop(shutdownCtx)
		})
	}

	eg.Go(func() error {
		select {
		case <-ctx.Done():
			client.Disconnect()
			return nil
		case err := <-gaveUp:
			return err
		}
	})

	return eg.Wait()
}
