package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/types"
)

// Memory is an in-process Store. It backs unit tests and database-less
// one-shot runs; the post_id uniqueness constraint is enforced under the
// same lock as the insert, so persist-or-skip is atomic.
type Memory struct {
	mu          sync.RWMutex
	jobs        map[uuid.UUID]*types.Job
	posts       map[string]*types.Post // keyed by PostID
	insertOrder []string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		jobs:  make(map[uuid.UUID]*types.Job),
		posts: make(map[string]*types.Post),
	}
}

func (m *Memory) CreateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) GetJob(_ context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (m *Memory) UpdateJob(_ context.Context, job *types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *Memory) ListJobs(_ context.Context, filters JobFilters) ([]types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var jobs []types.Job
	for _, job := range m.jobs {
		if filters.Status != "" && job.Status != filters.Status {
			continue
		}
		jobs = append(jobs, *job)
	}

	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[filters.Offset:]
	}
	if filters.Limit > 0 && len(jobs) > filters.Limit {
		jobs = jobs[:filters.Limit]
	}
	return jobs, nil
}

func (m *Memory) CountRunningJobs(_ context.Context, jobType types.JobType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, job := range m.jobs {
		if job.JobType == jobType && job.Status == types.JobRunning {
			count++
		}
	}
	return count, nil
}

func (m *Memory) LatestCompletedJob(_ context.Context, jobType types.JobType) (*types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *types.Job
	for _, job := range m.jobs {
		if job.JobType != jobType || job.Status != types.JobCompleted {
			continue
		}
		if latest == nil || completedAfter(job, latest) {
			latest = job
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func completedAfter(a, b *types.Job) bool {
	if a.CompletedAt == nil || b.CompletedAt == nil {
		return a.CompletedAt != nil
	}
	return a.CompletedAt.After(*b.CompletedAt)
}

func (m *Memory) InsertPost(_ context.Context, post *types.Post) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.posts[post.PostID]; exists {
		return false, nil
	}
	cp := *post
	m.posts[post.PostID] = &cp
	m.insertOrder = append(m.insertOrder, post.PostID)
	return true, nil
}

func (m *Memory) GetPostByPostID(_ context.Context, postID string) (*types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	post, ok := m.posts[postID]
	if !ok || post.IsDeleted {
		return nil, nil
	}
	cp := *post
	return &cp, nil
}

func (m *Memory) ListPosts(_ context.Context, filters PostFilters) ([]types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var posts []types.Post
	for _, post := range m.posts {
		if post.IsDeleted {
			continue
		}
		if filters.Source != "" && post.Source != filters.Source {
			continue
		}
		if filters.HasMedia != nil && post.HasMedia() != *filters.HasMedia {
			continue
		}
		if filters.Since != nil && post.CreatedAt.Before(*filters.Since) {
			continue
		}
		posts = append(posts, *post)
	}

	sort.Slice(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(posts) {
			return nil, nil
		}
		posts = posts[filters.Offset:]
	}
	if filters.Limit > 0 && len(posts) > filters.Limit {
		posts = posts[:filters.Limit]
	}
	return posts, nil
}

func (m *Memory) LatestPostCollectedSince(_ context.Context, since time.Time) (*types.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *types.Post
	for _, post := range m.posts {
		if post.IsDeleted || post.CollectedAt.Before(since) {
			continue
		}
		if latest == nil || post.CreatedAt.After(latest.CreatedAt) {
			latest = post
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *Memory) PostStats(_ context.Context) (*types.PostStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &types.PostStats{
		PostsBySource: make(map[string]int64),
	}
	now := time.Now().UTC()

	for _, post := range m.posts {
		if post.IsDeleted {
			continue
		}
		stats.TotalPosts++
		stats.PostsBySource[string(post.Source)]++
		stats.TotalLikes += int64(post.LikeCount)
		stats.TotalRetweets += int64(post.RetweetCount)
		stats.TotalReplies += int64(post.ReplyCount)
		if post.HasMedia() {
			stats.PostsWithMedia++
		}
		if stats.EarliestPost == nil || post.CreatedAt.Before(*stats.EarliestPost) {
			t := post.CreatedAt
			stats.EarliestPost = &t
		}
		if stats.LatestPost == nil || post.CreatedAt.After(*stats.LatestPost) {
			t := post.CreatedAt
			stats.LatestPost = &t
		}
		if post.CreatedAt.After(now.Add(-24 * time.Hour)) {
			stats.PostsLast24h++
		}
		if post.CreatedAt.After(now.Add(-7 * 24 * time.Hour)) {
			stats.PostsLast7d++
		}
		if post.CreatedAt.After(now.Add(-30 * 24 * time.Hour)) {
			stats.PostsLast30d++
		}
	}

	if stats.TotalPosts > 0 {
		stats.AvgLikesPerPost = float64(stats.TotalLikes) / float64(stats.TotalPosts)
		stats.AvgRetweetsPerPost = float64(stats.TotalRetweets) / float64(stats.TotalPosts)
		stats.PostsWithMediaPercentage = float64(stats.PostsWithMedia) / float64(stats.TotalPosts) * 100
	}

	return stats, nil
}
