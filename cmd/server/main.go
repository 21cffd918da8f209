package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"

	"github.com/tendant/versioned-content/pkg/contentstore"
	"github.com/tendant/versioned-content/pkg/contentstore/api"
	"github.com/tendant/versioned-content/pkg/contentstore/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	svc, cleanup, err := cfg.BuildService(ctx, contentstore.WithLogger(logger))
	if err != nil {
		slog.Error("Failed to build content store", "err", err)
		os.Exit(1)
	}
	defer cleanup()

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	routes := api.NewRouter(svc, logger)
	if cfg.APIKeySHA256 == "" {
		slog.Warn("API_KEY_SHA256 is not set, API is unauthenticated", "environment", cfg.Environment)
		server.R.Mount("/api/v1", routes)
	} else {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{"key1": cfg.APIKeySHA256},
		})
		if err != nil {
			slog.Error("Failed initialize API Key middleware", "err", err)
			os.Exit(1)
		}
		server.R.Route("/api/v1", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Mount("/", routes)
		})
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.R,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("Server starting", "port", cfg.Port, "storage", cfg.StorageType, "locks", cfg.LockType)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
	}
}
