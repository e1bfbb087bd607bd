// Package main provides the entry point for the X post collector.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/db"
	"github.com/jonathan/x-collector/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "x_collector",
	Short: "X post collection engine",
	Long:  "x_collector periodically collects posts from a single X account via the structured API or a headless-browser scraper, deduplicates them and stores them for analysis.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openStore connects to Postgres when DATABASE_URL is configured, falling
// back to the in-memory store otherwise. The returned closer is always safe
// to call.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	if cfg.DatabaseURL == "" {
		return store.NewMemory(), func() {}, nil
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return database, database.Close, nil
}
