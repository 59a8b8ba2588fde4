package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"device-inventory-api/internal/config"
	"device-inventory-api/internal/logging"
	"device-inventory-api/internal/registry"
	"device-inventory-api/internal/store"
	"device-inventory-api/pkg/importer"
)

func main() {
	var (
		filePath    = flag.String("file", "", "Path to the .xlsx workbook (required)")
		actor       = flag.String("actor", "", "User id recorded as performed_by (required)")
		mappingPath = flag.String("mapping", importer.DefaultMappingPath, "YAML column mapping")
		dryRun      = flag.Bool("dry-run", false, "Validate rows without creating devices")
		maxErrors   = flag.Int("max-errors", 50, "Stop after this many failed rows")
	)
	flag.Parse()

	if *filePath == "" || *actor == "" {
		fmt.Println("Usage: import_excel -file=path.xlsx -actor=<user id> [-mapping=...] [-dry-run] [-max-errors=N]")
		os.Exit(1)
	}

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "console", Output: "stderr"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
		os.Exit(1)
	}
	logger := logging.WithComponent("import_excel")

	ctx := context.Background()

	pg, err := store.OpenPostgres(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	file, err := os.Open(*filePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open Excel file")
	}
	defer file.Close()

	reg := registry.New(pg, registry.WithLogger(logger))

	fmt.Printf("Importing from %s as %s (dry_run=%v)\n", *filePath, *actor, *dryRun)
	fmt.Println(strings.Repeat("=", 60))

	// The cache dies with the process, so the batch is never reloaded.
	batch := reg.Batch()
	summary, err := importer.ImportExcel(ctx, batch, file, importer.ImportOptions{
		Actor:       *actor,
		MappingPath: *mappingPath,
		DryRun:      *dryRun,
		MaxErrors:   *maxErrors,
	})
	printSummary(summary)
	if err != nil {
		logger.Error().Err(err).Msg("Import failed")
		os.Exit(1)
	}
}

func printSummary(summary importer.ImportSummary) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("IMPORT SUMMARY")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("Total inserted: %d\n", summary.Inserted)
	fmt.Printf("Total skipped: %d\n", summary.Skipped)
	fmt.Printf("Total errors: %d\n", summary.Errors)
	fmt.Printf("Dry run: %v\n", summary.DryRun)

	for _, sheet := range summary.Sheets {
		fmt.Printf("\n  %s: inserted=%d, skipped=%d, errors=%d\n",
			sheet.Name, sheet.Inserted, sheet.Skipped, sheet.Errors)
		if len(sheet.UIDs) > 0 {
			fmt.Printf("    Created uids: %v\n", sheet.UIDs)
		}
		if len(sheet.Samples) > 0 {
			fmt.Printf("    Error samples:\n")
			for _, sample := range sheet.Samples {
				fmt.Printf("      Row %d: %s\n", sample.Row, sample.Message)
			}
		}
	}
}
