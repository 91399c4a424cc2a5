package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/ninjafinder/internal/config"
	"github.com/geocoder89/ninjafinder/internal/db"
	"github.com/geocoder89/ninjafinder/internal/notifications"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/geocoder89/ninjafinder/internal/queue/worker"
	"github.com/geocoder89/ninjafinder/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()

	if err != nil {
		return err
	}

	if cfg.StoreDriver != "postgres" {
		return errors.New("the worker needs STORE_DRIVER=postgres")
	}

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)

	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "ninjafinder-worker", cfg.OTelEndpoint)

	if err != nil {
		return err
	}

	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	pool, err := db.NewPool(ctx, cfg.DBURL)

	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}

	defer pool.Close()

	reg := prometheus.NewRegistry()
	prom := observability.NewProm(reg)

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	notifier := notifications.NewProtectedNotifier(
		notifications.NewLogNotifier(log),
		notifications.ProtectedNotifierConfig{
			Timeout:          3 * time.Second,
			FailureThreshold: 3,
			Cooldown:         15 * time.Second,
			HalfOpenMaxCalls: 1,
		},
	)

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  500 * time.Millisecond,
		WorkerID:      workerID,
		Concurrency:   4,
		ShutdownGrace: 10 * time.Second,
		JobTimeout:    30 * time.Second,
	}, jobsRepo, notifier, prom, log)

	// probes and metrics on the side port
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", w.HealthHandler(jobsRepo))

	healthSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("worker health server starting", "port", cfg.WorkerHealthPort)

		err := healthSrv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("worker health server failed", "err", err)
		}
	}()

	err = w.Run(ctx)

	sctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()
	_ = healthSrv.Shutdown(sctx)

	if err != nil {
		return fmt.Errorf("worker stopped: %w", err)
	}

	log.Info("worker shutdown complete")
	return nil
}
