package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/retry"
	"github.com/jonathan/x-collector/internal/source"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// SourceFactory constructs the source client servicing one job run, and
// reports which variant was selected. The choice is made once per job and
// recorded as source_used.
type SourceFactory func(ctx context.Context) (source.Client, types.PostSource, error)

// retryCounter is implemented by source clients that track consumed
// re-attempts.
type retryCounter interface {
	Retries() int
}

// Runner executes one collection job end to end: source selection, fetch,
// ingestion and terminal-state recording. Job state is persisted at
// milestones (before collection starts and at the terminal transition), not
// per post.
type Runner struct {
	store    store.Store
	ingestor *Ingestor
	factory  SourceFactory
	cfg      *config.Config
	log      *slog.Logger
}

// NewRunner creates a runner selecting sources per the deployment
// configuration: the API variant when credentials are configured and the
// deployment is API-first, the scraper otherwise.
func NewRunner(st store.Store, cfg *config.Config, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	r := &Runner{
		store:    st,
		ingestor: NewIngestor(st, log),
		cfg:      cfg,
		log:      log,
	}
	r.factory = r.defaultFactory
	return r
}

// SetSourceFactory overrides source construction; used by tests and the
// one-shot CLI path.
func (r *Runner) SetSourceFactory(f SourceFactory) { r.factory = f }

func (r *Runner) defaultFactory(_ context.Context) (source.Client, types.PostSource, error) {
	if r.cfg.ShouldUseAPI() {
		client, err := source.NewAPIClient(source.APIConfig{
			BearerToken: r.cfg.APIBearerToken,
			APIKey:      r.cfg.APIKey,
			APISecret:   r.cfg.APISecret,
		}, r.log)
		if err != nil {
			return nil, "", err
		}
		return client, types.SourceAPI, nil
	}

	scraper := source.NewScraper(source.ScraperConfig{
		Timeout:   r.cfg.ScraperTimeout,
		RateLimit: r.cfg.ScraperRateLimit,
		Policy: retry.Policy{
			MaxAttempts: r.cfg.ScraperMaxRetries,
			BaseDelay:   2 * time.Second,
			MaxDelay:    30 * time.Second,
			Factor:      r.cfg.ScraperBackoffFactor,
		},
	}, r.log)
	return scraper, types.SourceScraper, nil
}

// Run executes the job with the given id. Errors are captured onto the job
// row rather than returned: the worker pool has no use for them.
func (r *Runner) Run(ctx context.Context, jobID uuid.UUID) {
	log := r.log.With("job_id", jobID)

	job, err := r.store.GetJob(ctx, jobID)
	if err != nil {
		log.Error("failed to load job", "error", err)
		return
	}
	if job == nil {
		log.Error("job not found")
		return
	}
	if job.IsTerminal() {
		// Cancelled while still queued.
		log.Info("skipping job already in terminal state", "status", job.Status)
		return
	}

	if err := job.MarkStarted(); err != nil {
		log.Error("cannot start job", "error", err)
		return
	}
	if err := r.store.UpdateJob(ctx, job); err != nil {
		log.Error("failed to persist running state", "error", err)
		return
	}

	username := job.Params.TargetUsername
	if username == "" {
		username = r.cfg.TargetUsername
	}
	maxPosts := job.Params.MaxPosts
	if maxPosts <= 0 {
		maxPosts = r.cfg.MaxPostsPerJob
	}

	client, used, err := r.factory(ctx)
	if err != nil {
		r.finishFailed(ctx, job, "source selection", err)
		return
	}
	job.SourceUsed = used
	log = log.With("source", used)

	log.Info("collection started", "username", username, "max_posts", maxPosts, "since_id", job.Params.SinceID)

	raws, err := client.Fetch(ctx, username, maxPosts, job.Params.SinceID)
	if rc, ok := client.(retryCounter); ok {
		job.RetryCount = rc.Retries()
	}
	if err != nil {
		if isCancellation(err) {
			r.finishCancelled(ctx, job)
			return
		}
		r.finishFailed(ctx, job, "collection", err)
		return
	}

	if err := r.ingestor.IngestAll(ctx, job, raws, used); err != nil {
		if isCancellation(err) {
			r.finishCancelled(ctx, job)
			return
		}
		r.finishFailed(ctx, job, "ingestion", err)
		return
	}

	if err := job.MarkCompleted(); err != nil {
		log.Error("cannot complete job", "error", err)
		return
	}
	job.Metadata = map[string]string{
		"collected_at":    time.Now().UTC().Format(time.RFC3339),
		"target_username": username,
	}
	if err := r.store.UpdateJob(ctx, job); err != nil {
		log.Error("failed to persist completed state", "error", err)
		return
	}

	r.observeFinished(job)
	log.Info("collection completed",
		"collected", job.PostsCollected,
		"skipped", job.PostsSkipped,
		"failed", job.PostsFailed)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// finishFailed transitions the job to failed, preserving the counters
// accumulated before the error.
func (r *Runner) finishFailed(ctx context.Context, job *types.Job, stage string, cause error) {
	detail := fmt.Sprintf("stage=%s username=%s max_posts=%d since_id=%q source=%s: %+v",
		stage, job.Params.TargetUsername, job.Params.MaxPosts, job.Params.SinceID,
		job.SourceUsed, cause)

	if err := job.MarkFailed(cause.Error(), detail); err != nil {
		r.log.Error("cannot fail job", "job_id", job.ID, "error", err)
		return
	}
	// Terminal writes use a fresh context: the task context may already be
	// cancelled.
	if err := r.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		r.log.Error("failed to persist failed state", "job_id", job.ID, "error", err)
		return
	}

	r.observeFinished(job)
	r.log.Error("collection failed", "job_id", job.ID, "stage", stage, "error", cause,
		"collected", job.PostsCollected, "skipped", job.PostsSkipped, "failed", job.PostsFailed)
}

// finishCancelled records the cancellation; work committed before the signal
// was observed stands.
func (r *Runner) finishCancelled(ctx context.Context, job *types.Job) {
	if err := job.MarkCancelled(); err != nil {
		// The service may have marked the row cancelled already; the in-memory
		// copy still carries the freshest counters.
		var terminal *types.ErrTerminalState
		if !errors.As(err, &terminal) {
			r.log.Error("cannot cancel job", "job_id", job.ID, "error", err)
			return
		}
	}
	if err := r.store.UpdateJob(context.WithoutCancel(ctx), job); err != nil {
		r.log.Error("failed to persist cancelled state", "job_id", job.ID, "error", err)
		return
	}

	r.observeFinished(job)
	r.log.Info("collection cancelled", "job_id", job.ID,
		"collected", job.PostsCollected, "skipped", job.PostsSkipped)
}

func (r *Runner) observeFinished(job *types.Job) {
	observability.JobsFinished.WithLabelValues(string(job.JobType), string(job.Status)).Inc()
	if d, ok := job.Duration(); ok {
		observability.CollectionDuration.WithLabelValues(string(job.SourceUsed)).Observe(d.Seconds())
	}
}
