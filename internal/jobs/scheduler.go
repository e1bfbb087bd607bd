package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// Scheduler periodically enqueues collection jobs. A tick is skipped
// entirely while a job of the same type is running; this is the sole
// mechanism preventing overlapping collection runs.
type Scheduler struct {
	store    store.Store
	service  *Service
	jobType  types.JobType
	interval time.Duration
	username string
	maxPosts int
	log      *slog.Logger
}

// NewScheduler creates a scheduler for periodic post collection.
func NewScheduler(st store.Store, svc *Service, cfg *config.Config, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		store:    st,
		service:  svc,
		jobType:  types.JobCollectPosts,
		interval: cfg.CollectionInterval,
		username: cfg.TargetUsername,
		maxPosts: cfg.MaxPostsPerJob,
		log:      log,
	}
}

// Run ticks at the configured interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("scheduler started", "interval", s.interval, "job_type", s.jobType)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Error("scheduled collection failed", "error", err)
			}
		}
	}
}

// Tick runs one scheduling decision. It returns the created job, or nil
// when the tick was skipped because a job of the type is still running.
func (s *Scheduler) Tick(ctx context.Context) (*types.Job, error) {
	running, err := s.store.CountRunningJobs(ctx, s.jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to check running jobs: %w", err)
	}
	if running > 0 {
		s.log.Warn("skipping scheduled collection, job still running", "running", running)
		observability.SchedulerTicksSkipped.Inc()
		return nil, nil
	}

	cursor, err := s.nextCursor(ctx)
	if err != nil {
		return nil, err
	}

	job, err := s.service.CreateJob(ctx, s.jobType, types.JobParams{
		TargetUsername: s.username,
		MaxPosts:       s.maxPosts,
		SinceID:        cursor,
		Scheduled:      true,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("created scheduled job", "job_id", job.ID, "since_id", cursor)
	return job, nil
}

// nextCursor derives the incremental sync cursor: the post id of the
// most-recently-created post ingested by the last completed run. When no
// completed run exists, or that run ingested nothing, the cursor stays
// empty and the next run re-fetches the recent window; idempotent ingestion
// makes the overlap harmless.
func (s *Scheduler) nextCursor(ctx context.Context) (string, error) {
	last, err := s.store.LatestCompletedJob(ctx, s.jobType)
	if err != nil {
		return "", fmt.Errorf("failed to find last completed job: %w", err)
	}
	if last == nil || last.StartedAt == nil {
		return "", nil
	}

	latest, err := s.store.LatestPostCollectedSince(ctx, *last.StartedAt)
	if err != nil {
		return "", fmt.Errorf("failed to find latest collected post: %w", err)
	}
	if latest == nil {
		return "", nil
	}
	return latest.PostID, nil
}
