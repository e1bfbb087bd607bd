package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/export"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

var (
	exportOutput string
	exportSource string
	exportSince  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export collected posts to a JSON document",
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVar(&exportSource, "source", "", "Only export posts from this source (api or scraper)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only export posts created on or after this date (RFC 3339 or YYYY-MM-DD)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx := context.Background()
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	out := os.Stdout
	if exportOutput != "" {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	filters := store.PostFilters{Source: types.PostSource(exportSource)}
	if exportSince != "" {
		since, err := parseSince(exportSince)
		if err != nil {
			return err
		}
		filters.Since = &since
	}
	count, err := export.Posts(ctx, st, filters, out)
	if err != nil {
		return err
	}
	if exportOutput != "" {
		fmt.Printf("Exported %d posts to %s\n", count, exportOutput)
	}
	return nil
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value %q: expected RFC 3339 or YYYY-MM-DD", raw)
	}
	return t, nil
}
