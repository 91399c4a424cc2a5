package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/ninjafinder/internal/cache"
	"github.com/geocoder89/ninjafinder/internal/config"
	"github.com/geocoder89/ninjafinder/internal/db"
	httpx "github.com/geocoder89/ninjafinder/internal/http"
	"github.com/geocoder89/ninjafinder/internal/http/handlers"
	"github.com/geocoder89/ninjafinder/internal/observability"
	"github.com/geocoder89/ninjafinder/internal/repo/memory"
	"github.com/geocoder89/ninjafinder/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// Load the config set up
	cfg, err := config.Load()

	if err != nil {
		return err
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "ninjafinder-api", cfg.OTelEndpoint)

	if err != nil {
		return err
	}

	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	deps := httpx.Deps{
		Prom:     prom,
		Gatherer: reg,
		Checks:   map[string]handlers.Check{},
	}

	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store, data is lost on restart")

		deps.Users = memory.NewUsersRepo()
		deps.Ninjas = memory.NewNinjasRepo()
		deps.Jobs = memory.NewJobsRepo()

	default:
		err = db.MigrateUp(cfg.DBURL)

		if err != nil {
			return err
		}

		pool, err := db.NewPool(ctx, cfg.DBURL)

		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}

		defer pool.Close()

		deps.Users = postgres.NewUsersRepo(pool, prom)
		deps.Ninjas = postgres.NewNinjasRepo(pool, prom)

		jobsRepo := postgres.NewJobsRepo(pool, prom)
		deps.Jobs = jobsRepo
		deps.Checks["db"] = jobsRepo.Ping
	}

	if cfg.RedisAddr != "" {
		rdb := cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		defer func() { _ = rdb.Close() }()

		deps.Denylist = cache.NewRedisDenylist(rdb)
		deps.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	} else {
		deny := cache.NewMemoryDenylist()
		deps.Denylist = deny

		go sweepDenylist(ctx, deny)
	}

	// set up routers with the log
	router := httpx.NewRouter(log, deps, cfg)

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Graceful shutdown

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	err = srv.Shutdown(sctx)

	if err != nil {
		log.Error("graceful shutdown failed", "err", err)
		return err
	}

	log.Info("shutdown complete")
	return nil
}

func sweepDenylist(ctx context.Context, deny *cache.MemoryDenylist) {
	t := time.NewTicker(10 * time.Minute)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			deny.Sweep()
		}
	}
}
