package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/x-collector/internal/config"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate statistics over collected posts",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(_ *cobra.Command, _ []string) error {
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

	stats, err := st.PostStats(ctx)
	if err != nil {
		return fmt.Errorf("failed to compute stats: %w", err)
	}

	fmt.Printf("Total posts:      %d\n", stats.TotalPosts)
	for source, count := range stats.PostsBySource {
		fmt.Printf("  via %-10s %d\n", source+":", count)
	}
	fmt.Printf("Total likes:      %d\n", stats.TotalLikes)
	fmt.Printf("Total retweets:   %d\n", stats.TotalRetweets)
	fmt.Printf("Total replies:    %d\n", stats.TotalReplies)
	fmt.Printf("Avg likes/post:   %.2f\n", stats.AvgLikesPerPost)
	fmt.Printf("Posts with media: %d (%.1f%%)\n", stats.PostsWithMedia, stats.PostsWithMediaPercentage)
	if stats.EarliestPost != nil && stats.LatestPost != nil {
		fmt.Printf("Date range:       %s .. %s\n",
			stats.EarliestPost.Format("2006-01-02"), stats.LatestPost.Format("2006-01-02"))
	}
	fmt.Printf("Last 24h/7d/30d:  %d / %d / %d\n", stats.PostsLast24h, stats.PostsLast7d, stats.PostsLast30d)
	return nil
}
