package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"go-ingest-scheduler/internal/api"
	"go-ingest-scheduler/internal/config"
	"go-ingest-scheduler/internal/fetcher"
	"go-ingest-scheduler/internal/ingest"
	"go-ingest-scheduler/internal/store"
	"go-ingest-scheduler/internal/worker"
)

type App struct {
	ctx       context.Context
	cfg       *config.Config
	scheduler *worker.Scheduler
	server    *http.Server
}

func NewApp(ctx context.Context, cfg *config.Config) *App {
	clk := clock.RealClock{}
	st := store.NewStore()
	fs := fetcher.NewFetcher(cfg.FetchMinLatency, cfg.FetchMaxLatency, cfg.FetchFailureRate, clk)
	w := worker.NewWorker(st, fs, cfg.FetchAttempts, cfg.FetchRetryDelay, clk)
	sched := worker.NewScheduler(ctx, st, w, clk, cfg.RateLimit)
	svc := ingest.NewService(st, sched, clk, cfg.BatchSize, cfg.MaxID)

	return &App{
		ctx:       ctx,
		cfg:       cfg,
		scheduler: sched,
		server: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           api.NewHandler(svc, cfg.SubmitRPS, cfg.SubmitBurst).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (app *App) run() error {
	g, ctx := errgroup.WithContext(app.ctx)
	g.Go(func() error {
		slog.Info("Server running", "addr", app.cfg.HTTPAddr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Context cancelled, shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
		defer cancel()
		if err := app.server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server did not shut down cleanly", "error", err)
		}
		return app.scheduler.Stop(shutdownCtx)
	})
	return g.Wait()
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept ingestion requests and process them in priority order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return errors.Wrap(err, "loading config")
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logLevel.Set(cfg.LogLevel)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			signalCh := make(chan os.Signal, 1)
			signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				select {
				case sig := <-signalCh:
					slog.Info("Received termination signal, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			return NewApp(ctx, cfg).run()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides INGEST_HTTP_ADDR)")
	return cmd
}
