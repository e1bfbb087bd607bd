package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

func TestService_CreateJob(t *testing.T) {
	st := store.NewMemory()
	d := &recordingDispatcher{}
	svc := NewService(st, d, nil)

	job, err := svc.CreateJob(context.Background(), types.JobCollectPosts, types.JobParams{TargetUsername: "nasa"})
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, types.JobPending, job.Status)
	assert.NotEmpty(t, job.ExternalTaskRef)
	require.Len(t, d.dispatched, 1)
	assert.Equal(t, job.ID, d.dispatched[0])

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ExternalTaskRef, stored.ExternalTaskRef)
}

func TestService_CreateJob_InvalidType(t *testing.T) {
	svc := NewService(store.NewMemory(), &recordingDispatcher{}, nil)

	_, err := svc.CreateJob(context.Background(), "nonsense", types.JobParams{})
	require.Error(t, err)

	var invalid *ErrInvalidJobType
	assert.ErrorAs(t, err, &invalid)
}

// failingDispatcher rejects every dispatch.
type failingDispatcher struct{}

func (failingDispatcher) Dispatch(uuid.UUID) (string, error) { return "", errors.New("queue full") }
func (failingDispatcher) Cancel(string) bool                 { return false }

func TestService_CreateJob_DispatchFailureFailsJob(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, failingDispatcher{}, nil)

	_, err := svc.CreateJob(context.Background(), types.JobCollectPosts, types.JobParams{})
	require.Error(t, err)

	// The job row exists and records the failure.
	list, lerr := st.ListJobs(context.Background(), store.JobFilters{Limit: 10})
	require.NoError(t, lerr)
	require.Len(t, list, 1)
	assert.Equal(t, types.JobFailed, list[0].Status)
	assert.Contains(t, list[0].ErrorMessage, "dispatch failed")
}

func TestService_GetJob_NotFound(t *testing.T) {
	svc := NewService(store.NewMemory(), &recordingDispatcher{}, nil)

	_, err := svc.GetJob(context.Background(), uuid.New())
	require.Error(t, err)

	var notFound *ErrJobNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestService_CancelJob_Pending(t *testing.T) {
	st := store.NewMemory()
	d := &recordingDispatcher{}
	svc := NewService(st, d, nil)

	job, err := svc.CreateJob(context.Background(), types.JobCollectPosts, types.JobParams{})
	require.NoError(t, err)

	require.NoError(t, svc.CancelJob(context.Background(), job.ID))

	got, err := svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, types.JobCancelled, got.Status)
	assert.Len(t, d.cancelled, 1, "the execution unit is signalled")
}

func TestService_CancelJob_TerminalIsRejected(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, &recordingDispatcher{}, nil)

	job := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, job.MarkStarted())
	require.NoError(t, job.MarkCompleted())
	job.PostsCollected = 7
	require.NoError(t, st.CreateJob(context.Background(), job))

	err := svc.CancelJob(context.Background(), job.ID)
	require.Error(t, err)

	var terminal *types.ErrTerminalState
	require.ErrorAs(t, err, &terminal)
	assert.Equal(t, types.JobCompleted, terminal.Status)

	// The row is untouched.
	got, gerr := st.GetJob(context.Background(), job.ID)
	require.NoError(t, gerr)
	assert.Equal(t, types.JobCompleted, got.Status)
	assert.Equal(t, 7, got.PostsCollected)
}

func TestService_CancelJob_NotFound(t *testing.T) {
	svc := NewService(store.NewMemory(), &recordingDispatcher{}, nil)

	err := svc.CancelJob(context.Background(), uuid.New())
	var notFound *ErrJobNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestService_ListJobs_ClampsLimit(t *testing.T) {
	st := store.NewMemory()
	svc := NewService(st, &recordingDispatcher{}, nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.CreateJob(context.Background(), types.NewJob(types.JobCollectPosts, types.JobParams{})))
	}

	list, err := svc.ListJobs(context.Background(), "", -3, -1)
	require.NoError(t, err)
	assert.Len(t, list, 5, "nonsense paging falls back to defaults")

	list, err = svc.ListJobs(context.Background(), "", 2, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
