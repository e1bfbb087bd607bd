package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/jobs"
	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the collection scheduler and worker without the REST API",
	Long:  `Run the periodic collection scheduler and the job worker pool. Exposes only the Prometheus metrics endpoint when METRICS_PORT is set; use the serve command for the full REST API.`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(_ *cobra.Command, _ []string) error {
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

	runner := jobs.NewRunner(st, cfg, log)
	pool := worker.NewPool(runner, 16, log)
	svc := jobs.NewService(st, pool, log)
	scheduler := jobs.NewScheduler(st, svc, cfg, log)

	g, gctx := errgroup.WithContext(ctx)

	pool.Start(gctx)
	g.Go(func() error {
		<-gctx.Done()
		pool.Wait()
		return nil
	})

	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})

	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		metricsSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: mux,
		}
		g.Go(func() error {
			log.Info("metrics endpoint listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return metricsSrv.Close()
		})
	}

	log.Info("worker started", "interval", cfg.CollectionInterval, "target", cfg.TargetUsername)
	return g.Wait()
}
