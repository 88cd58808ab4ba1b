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

	"github.com/neexbeast/previsao/internal/api"
	"github.com/neexbeast/previsao/internal/config"
	"github.com/neexbeast/previsao/internal/forecast"
	"github.com/neexbeast/previsao/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading configuration", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx := context.Background()

	stations := forecast.DefaultStations()

	// The database is optional; without it the built-in station table is used
	// and the health check reports liveness only.
	var pinger *pgxPoolPinger
	if cfg.DatabaseURL != "" {
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied")

		overrides, err := storage.NewStationRepository(pool).ListStations(ctx)
		if err != nil {
			return fmt.Errorf("loading region stations: %w", err)
		}
		stations = stations.Merge(overrides)
		log.Info("region stations loaded", "overrides", len(overrides), "regions", stations.Len())

		pinger = &pgxPoolPinger{pool: pool}
	}

	agg := forecast.NewAggregator(forecast.Options{
		NominatimURL: cfg.NominatimURL,
		CPTECURL:     cfg.CPTECURL,
		UserAgent:    cfg.UserAgent,
		HTTPClient:   &http.Client{Timeout: cfg.HTTPTimeout},
	}, stations, log)
	handlers := api.NewHandlers(agg, log)

	var router http.Handler
	if pinger != nil {
		router = api.NewRouter(handlers, cfg.APIToken, cfg.RateLimitPerMinute, pinger, log)
	} else {
		router = api.NewRouter(handlers, cfg.APIToken, cfg.RateLimitPerMinute, nil, log)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2*cfg.HTTPTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port, "auth", cfg.APIToken != "", "rate_limit_per_minute", cfg.RateLimitPerMinute)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case sig := <-quit:
		log.Info("shutdown signal received", "signal", sig)
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pgxPoolPinger adapts pgxpool.Pool to the api.dbPinger interface.
type pgxPoolPinger struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
