package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-inventory-api/internal"
	"device-inventory-api/internal/config"
	"device-inventory-api/internal/logging"
	"device-inventory-api/internal/store"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load .env")
	}

	// Load and validate configuration
	cfg, err := config.LoadAndValidate()
	if err != nil {
		log.Fatal().Err(err).Msg("Configuration error")
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logging")
	}
	logger := logging.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}

	srv, err := internal.NewServer(cfg, st, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build server")
	}

	if cfg.AdminUsername != "" {
		if err := srv.BootstrapAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			logger.Fatal().Err(err).Msg("Failed to bootstrap admin")
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreDriver).
		Str("jwt_issuer", cfg.JWTIssuer).
		Str("jwt_audience", cfg.JWTAudience).
		Dur("jwt_expiry", cfg.JWTExpiry).
		Msg("Starting Device Inventory API server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("HTTP server stopped")
		}
	case <-ctx.Done():
		logger.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown failed")
	}
	if err := srv.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Store close failed")
	}
}

// openStore connects the configured backend and applies migrations
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.StoreDriver == config.StoreMemory {
		return store.NewMemory(), nil
	}

	pg, err := store.OpenPostgres(ctx, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	if cfg.MigrateOnStart {
		if err := store.Migrate(ctx, pg.DB()); err != nil {
			_ = pg.Close()
			return nil, err
		}
	}
	return pg, nil
}
