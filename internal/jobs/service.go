package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// Dispatcher hands jobs to the execution pool. Implemented by worker.Pool.
type Dispatcher interface {
	Dispatch(jobID uuid.UUID) (string, error)
	Cancel(taskRef string) bool
}

// Service exposes the job operations consumed by the HTTP and CLI layers:
// create, get, list and cancel.
type Service struct {
	store      store.Store
	dispatcher Dispatcher
	log        *slog.Logger
}

// NewService creates a job service.
func NewService(st store.Store, dispatcher Dispatcher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: st, dispatcher: dispatcher, log: log}
}

// CreateJob creates a pending job and dispatches it for execution. The
// opaque task reference returned by the dispatcher is recorded on the job
// for later cancellation.
func (s *Service) CreateJob(ctx context.Context, jobType types.JobType, params types.JobParams) (*types.Job, error) {
	if !types.ValidJobType(jobType) {
		return nil, &ErrInvalidJobType{JobType: jobType}
	}

	job := types.NewJob(jobType, params)
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	observability.JobsCreated.WithLabelValues(string(jobType)).Inc()

	ref, err := s.dispatcher.Dispatch(job.ID)
	if err != nil {
		// The job row exists but will never run; surface that on the row.
		_ = job.MarkFailed(fmt.Sprintf("dispatch failed: %v", err), "")
		if uerr := s.store.UpdateJob(ctx, job); uerr != nil {
			s.log.Error("failed to record dispatch failure", "job_id", job.ID, "error", uerr)
		}
		return nil, fmt.Errorf("failed to dispatch job %s: %w", job.ID, err)
	}

	job.ExternalTaskRef = ref
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, err
	}

	s.log.Info("created job", "job_id", job.ID, "type", jobType, "task_ref", ref)
	return job, nil
}

// GetJob retrieves a job by id.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, &ErrJobNotFound{ID: id}
	}
	return job, nil
}

// ListJobs returns jobs ordered by creation time descending.
func (s *Service) ListJobs(ctx context.Context, status types.JobStatus, limit, offset int) ([]types.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListJobs(ctx, store.JobFilters{Status: status, Limit: limit, Offset: offset})
}

// CancelJob cancels a pending or running job. Cancelling a job already in a
// terminal state returns ErrTerminalState without mutating it. For a running
// job the execution unit is signalled to stop; work already committed to
// storage stands.
func (s *Service) CancelJob(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return &ErrJobNotFound{ID: id}
	}
	if job.IsTerminal() {
		return &types.ErrTerminalState{ID: job.ID, Status: job.Status}
	}

	if job.ExternalTaskRef != "" {
		if s.dispatcher.Cancel(job.ExternalTaskRef) {
			s.log.Info("signalled running task", "job_id", id, "task_ref", job.ExternalTaskRef)
		}
	}

	if err := job.MarkCancelled(); err != nil {
		return err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	s.log.Info("cancelled job", "job_id", id)
	return nil
}
