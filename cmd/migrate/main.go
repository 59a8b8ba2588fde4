package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"device-inventory-api/internal/config"
	"device-inventory-api/internal/logging"
	"device-inventory-api/internal/store"
)

func main() {
	dsn := flag.String("dsn", "", "Database URL (overrides DB_DSN)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [-dsn=postgres://...] up|down|status")
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if *dsn != "" {
		cfg.DBDSN = *dsn
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console", Output: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
		os.Exit(1)
	}
	logger := logging.WithComponent("migrate")

	ctx := context.Background()
	pg, err := store.OpenPostgres(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	switch cmd := flag.Arg(0); cmd {
	case "up":
		err = store.Migrate(ctx, pg.DB())
	case "down":
		err = store.MigrateDown(ctx, pg.DB())
	case "status":
		err = store.MigrationStatus(ctx, pg.DB())
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error().Err(err).Str("command", flag.Arg(0)).Msg("Migration failed")
		os.Exit(1)
	}
	logger.Info().Str("command", flag.Arg(0)).Msg("Migration complete")
}
