// Package store defines the persistence contract for jobs and posts, with
// an in-memory implementation. The Postgres implementation lives in
// internal/db.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/types"
)

// JobFilters narrows ListJobs results.
type JobFilters struct {
	Status types.JobStatus
	Limit  int
	Offset int
}

// PostFilters narrows ListPosts results. Soft-deleted posts are always
// excluded from read-side projections.
type PostFilters struct {
	Source   types.PostSource
	HasMedia *bool
	Limit    int
	Offset   int
	Since    *time.Time
}

// Store is the persistence surface the collection engine requires. The
// uniqueness of Post.PostID must be enforced by the implementation itself,
// not by a check-then-insert sequence.
type Store interface {
	CreateJob(ctx context.Context, job *types.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*types.Job, error)
	UpdateJob(ctx context.Context, job *types.Job) error
	ListJobs(ctx context.Context, filters JobFilters) ([]types.Job, error)
	CountRunningJobs(ctx context.Context, jobType types.JobType) (int, error)
	LatestCompletedJob(ctx context.Context, jobType types.JobType) (*types.Job, error)

	// InsertPost persists a post keyed by PostID. It reports false when a
	// post with the same PostID already exists; that is not an error.
	InsertPost(ctx context.Context, post *types.Post) (bool, error)
	GetPostByPostID(ctx context.Context, postID string) (*types.Post, error)
	ListPosts(ctx context.Context, filters PostFilters) ([]types.Post, error)
	// LatestPostCollectedSince returns the post with the newest source-side
	// created_at among posts collected at or after the given time.
	LatestPostCollectedSince(ctx context.Context, since time.Time) (*types.Post, error)
	PostStats(ctx context.Context) (*types.PostStats, error)
}
