package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"memberbase/internal/platform/config"
	"memberbase/internal/platform/httpserver"
	"memberbase/internal/platform/logger"
	platformredis "memberbase/internal/platform/redis"
	"memberbase/internal/roster/allocator"
	"memberbase/internal/roster/handler"
	"memberbase/internal/roster/metrics"
	"memberbase/internal/roster/service"
	"memberbase/internal/roster/store"
	httptransport "memberbase/internal/transport/http"
)

// main wires dependencies and owns the server lifecycle. Business logic
// lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	st, dbHealth, closeStore, err := buildStore(cfg)
	if err != nil {
		log.Error("store setup failed", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis setup failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	allocOpts := []allocator.Option{}
	if redisClient != nil {
		allocOpts = append(allocOpts, allocator.WithReserver(
			allocator.NewRedisReserver(redisClient.Client, cfg.ReservationTTL)))
	} else {
		allocOpts = append(allocOpts, allocator.WithReserver(
			allocator.NewMemoryReserver(cfg.ReservationTTL)))
	}

	svc := service.New(st, allocator.New(st, allocOpts...),
		service.WithLogger(log),
		service.WithMetrics(metrics.New()),
		service.WithAuditConcurrency(cfg.AuditConcurrency),
	)

	var checkers []httptransport.HealthChecker
	if dbHealth != nil {
		checkers = append(checkers, dbHealth)
	}
	if redisClient != nil {
		checkers = append(checkers, redisClient)
	}
	router := httptransport.NewRouter(handler.New(svc, log), checkers...)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting memberbase", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// buildStore opens the configured persistence backend. Without a database
// URL the server runs on the in-memory store, which suits local trials.
func buildStore(cfg config.Server) (store.Store, httptransport.HealthChecker, func(), error) {
	if cfg.DatabaseURL == "" {
		return store.NewInMemory(), nil, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	if err := store.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return store.NewPostgres(db), dbChecker{db: db}, func() { _ = db.Close() }, nil
}

type dbChecker struct {
	db *sql.DB
}

func (c dbChecker) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}
