package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/jobs"
	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/types"
)

var (
	collectUsername string
	collectMaxPosts int
	collectSinceID  string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run a single collection job and wait for it",
	Long:  `Create one collection job for the target account and execute it synchronously, printing the outcome. Useful for cron-style deployments and smoke testing.`,
	RunE:  runCollect,
}

func init() {
	collectCmd.Flags().StringVar(&collectUsername, "username", "", "Account to collect (overrides X_TARGET_USERNAME)")
	collectCmd.Flags().IntVar(&collectMaxPosts, "max-posts", 0, "Maximum posts to collect (overrides MAX_POSTS_PER_JOB)")
	collectCmd.Flags().StringVar(&collectSinceID, "since-id", "", "Only collect posts newer than this post id")
	rootCmd.AddCommand(collectCmd)
}

func runCollect(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := observability.NewLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	job := types.NewJob(types.JobCollectPosts, types.JobParams{
		TargetUsername: collectUsername,
		MaxPosts:       collectMaxPosts,
		SinceID:        collectSinceID,
	})
	if err := st.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	runner := jobs.NewRunner(st, cfg, log)
	runner.Run(ctx, job.ID)

	done, err := st.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job result: %w", err)
	}

	fmt.Printf("Job %s finished: %s\n", done.ID, done.Status)
	fmt.Printf("  source:    %s\n", done.SourceUsed)
	fmt.Printf("  collected: %d\n", done.PostsCollected)
	fmt.Printf("  skipped:   %d\n", done.PostsSkipped)
	fmt.Printf("  failed:    %d\n", done.PostsFailed)
	if done.Status == types.JobFailed {
		fmt.Printf("  error:     %s\n", done.ErrorMessage)
		return fmt.Errorf("collection failed: %s", done.ErrorMessage)
	}
	return nil
}
