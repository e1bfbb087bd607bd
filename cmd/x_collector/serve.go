package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/jobs"
	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/server"
	"github.com/jonathan/x-collector/internal/worker"
)

var (
	servePort        int
	serveNoScheduler bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server with the collection worker",
	Long:  `Start an HTTP server exposing the jobs and posts REST endpoints, together with the in-process worker pool and the periodic collection scheduler.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides API_PORT)")
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false, "Disable the periodic collection scheduler")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	log := observability.NewLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	runner := jobs.NewRunner(st, cfg, log)
	pool := worker.NewPool(runner, 16, log)
	svc := jobs.NewService(st, pool, log)
	srv := server.New(server.Config{Port: cfg.Port}, st, svc, log)

	g, gctx := errgroup.WithContext(ctx)

	pool.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		pool.Wait()
		return nil
	})

	if !serveNoScheduler {
		scheduler := jobs.NewScheduler(st, svc, cfg, log)
		g.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		return srv.Start(gctx)
	})

	return g.Wait()
}
