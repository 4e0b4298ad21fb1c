// Package main wires together the scrapewatch service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"scrapewatch/internal/api"
	"scrapewatch/internal/clock/system"
	"scrapewatch/internal/config"
	"scrapewatch/internal/dispatch"
	goqueryextractor "scrapewatch/internal/extractor/goquery"
	collyfetcher "scrapewatch/internal/fetcher/colly"
	"scrapewatch/internal/logging"
	"scrapewatch/internal/metrics"
	"scrapewatch/internal/price"
	"scrapewatch/internal/scheduler"
	"scrapewatch/internal/snapshot"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	clock := system.New()
	dispatcher := dispatch.New(logger.Named("dispatch"))
	registerEventLogging(dispatcher, logger.Named("events"))

	snapshots := snapshot.NewStore(clock)
	monitor := price.NewMonitor(cfg.PriceConfig(), dispatcher, clock, logger.Named("price"))
	pipeline := scheduler.NewPipeline(snapshots, monitor, dispatcher, logger.Named("pipeline"))

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   time.Duration(cfg.Fetch.TimeoutSeconds) * time.Second,
	})
	extractor := goqueryextractor.New()

	sched := scheduler.New(
		cfg.SchedulerConfig(),
		fetcher,
		extractor,
		pipeline,
		dispatcher,
		clock,
		logger.Named("scheduler"),
	)
	for _, job := range cfg.Jobs {
		if _, err := sched.Schedule(job.JobDef()); err != nil {
			logger.Error("schedule configured job failed",
				zap.String("name", job.Name),
				zap.Error(err),
			)
		}
	}

	apiServer := api.NewServer(sched, snapshots, monitor, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		sched.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-schedDone
	logger.Info("shutdown complete")
}

// registerEventLogging subscribes a structured-log handler to every event
// kind so each pipeline stage leaves an audit trail even with no other
// callbacks configured.
func registerEventLogging(d *dispatch.Dispatcher, logger *zap.Logger) {
	kinds := []dispatch.Kind{
		dispatch.JobSucceeded,
		dispatch.JobFailed,
		dispatch.ChangeDetected,
		dispatch.DiffComputed,
		dispatch.PriceAlertFired,
	}
	for _, kind := range kinds {
		d.Register(kind, func(_ context.Context, evt dispatch.Event) error {
			logger.Info("event",
				zap.String("kind", string(evt.Kind)),
				zap.String("job_id", evt.JobID),
				zap.String("source_key", evt.SourceKey),
				zap.Time("ts", evt.TS),
			)
			return nil
		})
	}
}
