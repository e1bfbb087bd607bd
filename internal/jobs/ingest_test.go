package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/x-collector/internal/source"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

func rawPost(id string) source.RawPost {
	return source.RawPost{
		ID:             id,
		Text:           "post " + id,
		AuthorUsername: "nasa",
		CreatedAt:      time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		LikeCount:      3,
	}
}

func TestIngestAll_CountsOutcomes(t *testing.T) {
	st := store.NewMemory()
	in := NewIngestor(st, nil)
	job := types.NewJob(types.JobCollectPosts, types.JobParams{})

	raws := []source.RawPost{
		rawPost("1"),
		rawPost("2"),
		{Text: "no id", CreatedAt: time.Now()},
		{ID: "3"}, // no timestamp
	}
	require.NoError(t, in.IngestAll(context.Background(), job, raws, types.SourceAPI))

	assert.Equal(t, 2, job.PostsCollected)
	assert.Equal(t, 0, job.PostsSkipped)
	assert.Equal(t, 2, job.PostsFailed)
}

func TestIngestAll_Idempotent(t *testing.T) {
	st := store.NewMemory()
	in := NewIngestor(st, nil)
	raws := []source.RawPost{rawPost("1"), rawPost("2"), rawPost("3")}

	first := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, in.IngestAll(context.Background(), first, raws, types.SourceAPI))
	assert.Equal(t, 3, first.PostsCollected)

	// The exact same records again: no duplicates, only skips.
	second := types.NewJob(types.JobCollectPosts, types.JobParams{})
	require.NoError(t, in.IngestAll(context.Background(), second, raws, types.SourceAPI))
	assert.Equal(t, 0, second.PostsCollected)
	assert.Equal(t, 3, second.PostsSkipped)
	assert.Equal(t, 0, second.PostsFailed)

	posts, err := st.ListPosts(context.Background(), store.PostFilters{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, posts, 3)
}

func TestIngestAll_MalformedRecordDoesNotAbort(t *testing.T) {
	st := store.NewMemory()
	in := NewIngestor(st, nil)
	job := types.NewJob(types.JobCollectPosts, types.JobParams{})

	raws := []source.RawPost{
		{Text: "malformed", CreatedAt: time.Now()},
		rawPost("10"),
	}
	require.NoError(t, in.IngestAll(context.Background(), job, raws, types.SourceScraper))
	assert.Equal(t, 1, job.PostsCollected)
	assert.Equal(t, 1, job.PostsFailed)

	got, err := st.GetPostByPostID(context.Background(), "10")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, types.SourceScraper, got.Source)
}

func TestIngestAll_CancellationStopsBetweenRecords(t *testing.T) {
	st := store.NewMemory()
	in := NewIngestor(st, nil)
	job := types.NewJob(types.JobCollectPosts, types.JobParams{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := in.IngestAll(ctx, job, []source.RawPost{rawPost("1")}, types.SourceAPI)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, job.PostsCollected)
}

func TestNormalize_Defaults(t *testing.T) {
	raw := rawPost("42")
	post, err := normalize(raw, types.SourceAPI)
	require.NoError(t, err)

	assert.Equal(t, "42", post.PostID)
	assert.NotEqual(t, "", post.ID.String())
	assert.Equal(t, types.SourceAPI, post.Source)
	assert.NotNil(t, post.MediaURLs, "missing media normalizes to an empty list")
	assert.Empty(t, post.MediaURLs)
	assert.NotEmpty(t, post.ContentHash)
	assert.False(t, post.CollectedAt.IsZero())
	assert.Equal(t, time.UTC, post.CreatedAt.Location())
}

func TestNormalize_ReferenceFlags(t *testing.T) {
	raw := rawPost("43")
	raw.Referenced = []source.Referenced{
		{Kind: source.RefRepliedTo, ID: "40"},
		{Kind: source.RefQuoted, ID: "41"},
	}
	post, err := normalize(raw, types.SourceAPI)
	require.NoError(t, err)

	assert.True(t, post.IsReply)
	assert.Equal(t, "40", post.RepliedToID)
	assert.True(t, post.IsQuote)
	assert.Equal(t, "41", post.QuotedID)
	assert.False(t, post.IsRetweet)
}

func TestNormalize_ReplyWithoutParentID(t *testing.T) {
	// Scraped replies carry no parent id; the flag alone is valid.
	raw := rawPost("44")
	raw.Referenced = []source.Referenced{{Kind: source.RefRepliedTo}}
	post, err := normalize(raw, types.SourceScraper)
	require.NoError(t, err)

	assert.True(t, post.IsReply)
	assert.Empty(t, post.RepliedToID)
}

func TestNormalize_RetweetFlagRequiresID(t *testing.T) {
	raw := rawPost("45")
	raw.Referenced = []source.Referenced{{Kind: source.RefRetweeted}}
	post, err := normalize(raw, types.SourceScraper)
	require.NoError(t, err)

	assert.False(t, post.IsRetweet, "retweet flag is only set when the referenced id is known")
	assert.Empty(t, post.RetweetedID)
}

func TestNormalize_Malformed(t *testing.T) {
	_, err := normalize(source.RawPost{Text: "x", CreatedAt: time.Now()}, types.SourceAPI)
	assert.ErrorIs(t, err, errMissingPostID)

	_, err = normalize(source.RawPost{ID: "1"}, types.SourceAPI)
	assert.ErrorIs(t, err, errMissingTimestamp)
}
