package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/trogers1052/stock-signal-engine/internal/api"
	"github.com/trogers1052/stock-signal-engine/internal/kafka"
	"github.com/trogers1052/stock-signal-engine/internal/publish"
	"github.com/trogers1052/stock-signal-engine/internal/scheduler"
)

func serveCmd() *cobra.Command {
	var runOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, bar-event consumer and read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()
			return a.serve(ctx, runOnStart)
		},
	}
	cmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "Trigger a recompute immediately")
	return cmd
}

func (a *app) serve(parent context.Context, runOnStart bool) error {
	ctx, stop := context.WithCancel(parent)
	defer stop()

	opts := []scheduler.Option{scheduler.WithMetrics(a.metrics)}
	if a.redis != nil {
		opts = append(opts, scheduler.WithLocker(publish.NewRedisJobLock(a.redis, a.cfg.Redis.Prefix, a.cfg.Redis.LockTTL)))
	}
	runner, err := scheduler.NewRunner(scheduler.DefaultCadences(a.cfg.Intervals(), a.recompute, a.cleanup), a.log, opts...)
	if err != nil {
		return err
	}

	checks := map[string]api.Pinger{"postgres": a.db}
	if a.redis != nil {
		checks["redis"] = api.PingFunc(func(ctx context.Context) error { return a.redis.Ping(ctx).Err() })
	}
	handler := api.NewHandler(a.pipeline, a.breakers, runner, checks, a.log)
	srv := &http.Server{
		Addr:              a.cfg.Server.Host + ":" + a.cfg.Server.Port,
		Handler:           api.SetupRoutes(handler, promhttp.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		a.log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(a.cfg.Kafka.Brokers, a.cfg.Kafka.BarTopic, a.cfg.Kafka.GroupID,
			runner, scheduler.JobSignalRecompute, a.cfg.Symbols, a.log)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	schedDone := make(chan struct{})
	go func() {
		runner.Start(ctx)
		close(schedDone)
	}()
	if runOnStart {
		runner.Trigger(ctx, scheduler.JobSignalRecompute)
	}

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Shutting down")
	case err = <-errCh:
		a.log.Error().Err(err).Msg("Component failed, shutting down")
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), 15*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		a.log.Warn().Err(serr).Msg("HTTP shutdown")
	}
	<-schedDone
	return err
}
