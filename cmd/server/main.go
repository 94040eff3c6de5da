package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vendasb2b/cart-engine/config"
	"github.com/vendasb2b/cart-engine/internal/app/controller"
	"github.com/vendasb2b/cart-engine/internal/app/service"
	"github.com/vendasb2b/cart-engine/internal/catalog"
	"github.com/vendasb2b/cart-engine/internal/db"
	"github.com/vendasb2b/cart-engine/internal/router"
	"github.com/vendasb2b/cart-engine/internal/scheduler"
	"github.com/vendasb2b/cart-engine/internal/storage"
	"github.com/vendasb2b/cart-engine/pkg/logger"
	"github.com/vendasb2b/cart-engine/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	logger.Initialize(logger.Config{
		Level:       cfg.LogLevel(),
		Format:      cfg.Log.Format,
		EnableColor: cfg.Server.Environment == "development",
	})

	logger.Info("Starting cart engine", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"storage":     cfg.Storage.Backend,
		"log_level":   cfg.LogLevel(),
	})

	// Storage backend for persisted carts
	kv, closeStorage, err := openStorage(context.Background(), cfg)
	if err != nil {
		logger.Fatal("Failed to initialize cart storage", err, map[string]interface{}{
			"backend": cfg.Storage.Backend,
		})
	}
	defer closeStorage()

	// Catalog and carts
	provider := catalog.NewProvider(cfg.Catalog.Path)
	registry := service.NewCartRegistry(kv, cfg.Cart.KeyPrefix, cfg.Cart.AsyncWrite, provider,
		service.WithIdleTimeout(cfg.Cart.SessionIdleTimeout()),
	)
	provider.OnChange(registry.CatalogAvailable)

	if _, err := provider.Reload(); err != nil {
		logger.Warn("Catalog not loaded at startup, carts keep older entries pending", map[string]interface{}{
			"path":  cfg.Catalog.Path,
			"error": err.Error(),
		})
	}

	refresh := scheduler.NewCatalogRefreshScheduler(provider, cfg.Catalog.RefreshCron)
	if err := refresh.Start(); err != nil {
		logger.Fatal("Failed to start catalog refresh scheduler", err)
	}

	sweep := scheduler.NewSessionSweepScheduler(registry, cfg.Cart.SweepCron)
	if err := sweep.Start(); err != nil {
		logger.Fatal("Failed to start session sweep scheduler", err)
	}

	// HTTP
	r := router.NewRouter(
		controller.NewCartController(registry, provider),
		controller.NewCatalogController(provider),
		cfg,
	)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           r.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server started successfully", map[string]interface{}{
			"address": srv.Addr,
			"pid":     os.Getpid(),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", err)
	}
	refresh.Stop()
	sweep.Stop()
	if err := registry.Close(ctx); err != nil {
		logger.Error("Failed to flush pending cart writes", err)
	}

	logger.Info("Server stopped successfully", map[string]interface{}{
		"sessions": registry.Len(),
	})
}

// openStorage connects the configured backend and returns a function that
// releases it.
func openStorage(ctx context.Context, cfg *config.Config) (storage.KV, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		if err := redis.Init(&cfg.Redis); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := redis.Close(); err != nil {
				logger.Error("Failed to close Redis connection", err)
			}
		}
		return storage.NewRedisKV(redis.GetClient(), cfg.Cart.TTL), closeFn, nil

	case config.BackendPostgres:
		if err := db.Initialize(&cfg.Database); err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := db.Close(); err != nil {
				logger.Error("Failed to close database connection", err)
			}
		}
		if err := db.Migrate(db.GetDB()); err != nil {
			closeFn()
			return nil, nil, err
		}
		return storage.NewGormKV(db.GetDB()), closeFn, nil

	case config.BackendS3:
		client := storage.NewS3Client(ctx, cfg.S3.Region, cfg.S3.AccessKeyID, cfg.S3.SecretAccessKey)
		return storage.NewS3KV(client, cfg.S3.Bucket, cfg.S3.Prefix), func() {}, nil
	}

	return storage.NewMemory(), func() {}, nil
}
