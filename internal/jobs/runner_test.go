package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/x-collector/internal/config"
	"github.com/jonathan/x-collector/internal/source"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// stubClient is a canned source.Client.
type stubClient struct {
	posts   []source.RawPost
	err     error
	retries int

	gotUsername string
	gotMax      int
	gotCursor   string
}

func (c *stubClient) Fetch(_ context.Context, username string, maxResults int, cursor string) ([]source.RawPost, error) {
	c.gotUsername = username
	c.gotMax = maxResults
	c.gotCursor = cursor
	return c.posts, c.err
}

func (c *stubClient) Retries() int { return c.retries }

func testConfig() *config.Config {
	return &config.Config{
		TargetUsername: "nasa",
		MaxPostsPerJob: 50,
	}
}

func newTestRunner(t *testing.T, st store.Store, client *stubClient, src types.PostSource) *Runner {
	t.Helper()
	r := NewRunner(st, testConfig(), nil)
	r.SetSourceFactory(func(context.Context) (source.Client, types.PostSource, error) {
		return client, src, nil
	})
	return r
}

func TestRunner_CompletesJob(t *testing.T) {
	st := store.NewMemory()
	client := &stubClient{posts: []source.RawPost{rawPost("1"), rawPost("2")}}
	r := newTestRunner(t, st, client, types.SourceAPI)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{SinceID: "0"})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, done.Status)
	assert.Equal(t, 2, done.PostsCollected)
	assert.Equal(t, types.SourceAPI, done.SourceUsed)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, "nasa", done.Metadata["target_username"])

	assert.Equal(t, "nasa", client.gotUsername, "username defaults from deployment config")
	assert.Equal(t, 50, client.gotMax, "max posts defaults from deployment config")
	assert.Equal(t, "0", client.gotCursor)
}

func TestRunner_ParamsOverrideConfig(t *testing.T) {
	st := store.NewMemory()
	client := &stubClient{}
	r := newTestRunner(t, st, client, types.SourceAPI)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{TargetUsername: "spacex", MaxPosts: 5})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	assert.Equal(t, "spacex", client.gotUsername)
	assert.Equal(t, 5, client.gotMax)
}

func TestRunner_FetchFailureFailsJob(t *testing.T) {
	st := store.NewMemory()
	client := &stubClient{err: errors.New("timeline unavailable"), retries: 2}
	r := newTestRunner(t, st, client, types.SourceScraper)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, done.Status)
	assert.Equal(t, "timeline unavailable", done.ErrorMessage)
	assert.Contains(t, done.ErrorDetail, "stage=collection")
	assert.Equal(t, 2, done.RetryCount, "retries consumed by the source are recorded")
	assert.Equal(t, types.SourceScraper, done.SourceUsed)
}

func TestRunner_MalformedRecordsDoNotFailJob(t *testing.T) {
	st := store.NewMemory()
	client := &stubClient{posts: []source.RawPost{
		rawPost("1"),
		{Text: "malformed", CreatedAt: time.Now()},
		rawPost("2"),
	}}
	r := newTestRunner(t, st, client, types.SourceAPI)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCompleted, done.Status, "malformed records do not fail the job")
	assert.Equal(t, 2, done.PostsCollected)
	assert.Equal(t, 1, done.PostsFailed)
}

func TestRunner_SourceSelectionFailureFailsJob(t *testing.T) {
	st := store.NewMemory()
	r := NewRunner(st, testConfig(), nil)
	r.SetSourceFactory(func(context.Context) (source.Client, types.PostSource, error) {
		return nil, "", &source.AuthError{Cause: errors.New("missing credentials")}
	})

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobFailed, done.Status)
	assert.Contains(t, done.ErrorDetail, "stage=source selection")
}

func TestRunner_CancelledContextCancelsJob(t *testing.T) {
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	client := &stubClient{}
	r := NewRunner(st, testConfig(), nil)
	r.SetSourceFactory(func(context.Context) (source.Client, types.PostSource, error) {
		// Cancel mid-run, before the fetch happens.
		cancel()
		return client, types.SourceAPI, nil
	})
	client.err = context.Canceled

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(ctx, job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, done.Status, "terminal state is persisted despite the dead context")
}

func TestRunner_SkipsTerminalJob(t *testing.T) {
	st := store.NewMemory()
	client := &stubClient{posts: []source.RawPost{rawPost("1")}}
	r := newTestRunner(t, st, client, types.SourceAPI)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, job.MarkCancelled())
	require.NoError(t, st.CreateJob(context.Background(), job))

	r.Run(context.Background(), job.ID)

	done, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, done.Status)
	assert.Empty(t, client.gotUsername, "a cancelled-while-queued job never fetches")
}

func TestRunner_MissingJobIsNoop(t *testing.T) {
	st := store.NewMemory()
	r := newTestRunner(t, st, &stubClient{}, types.SourceAPI)

	// Must not panic or create state.
	r.Run(context.Background(), uuid.New())

	list, err := st.ListJobs(context.Background(), store.JobFilters{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, list)
}
