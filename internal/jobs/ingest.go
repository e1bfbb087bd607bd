package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/x-collector/internal/observability"
	"github.com/jonathan/x-collector/internal/source"
	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

// Ingestor converts raw source records into canonical posts and performs
// idempotent insert-or-skip against storage. Re-running the same record set
// never creates duplicate rows; it only moves counts from collected to
// skipped.
type Ingestor struct {
	store store.Store
	log   *slog.Logger
}

// NewIngestor creates an ingestor over the given store.
func NewIngestor(st store.Store, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{store: st, log: log}
}

// IngestAll processes raw records in the order received, updating the job's
// counters as it goes. A malformed record is dropped and counted, never
// aborting the run; a storage error aborts and preserves the counters
// accumulated so far. Cancellation is observed between records.
func (in *Ingestor) IngestAll(ctx context.Context, job *types.Job, raws []source.RawPost, src types.PostSource) error {
	for _, raw := range raws {
		if err := ctx.Err(); err != nil {
			return err
		}

		post, err := normalize(raw, src)
		if err != nil {
			job.PostsFailed++
			observability.PostsIngested.WithLabelValues("failed").Inc()
			in.log.Warn("dropping malformed record", "post_id", raw.ID, "error", err)
			continue
		}

		inserted, err := in.store.InsertPost(ctx, post)
		if err != nil {
			return err
		}
		if inserted {
			job.PostsCollected++
			observability.PostsIngested.WithLabelValues("collected").Inc()
		} else {
			job.PostsSkipped++
			observability.PostsIngested.WithLabelValues("skipped").Inc()
		}
	}
	return nil
}

var (
	errMissingPostID    = errors.New("record has no post id")
	errMissingTimestamp = errors.New("record has no creation timestamp")
)

// normalize maps a raw record into a canonical post. Missing engagement
// counters default to zero and missing media to an empty list; a record
// without a post id or creation timestamp is malformed.
func normalize(raw source.RawPost, src types.PostSource) (*types.Post, error) {
	if raw.ID == "" {
		return nil, errMissingPostID
	}
	if raw.CreatedAt.IsZero() {
		return nil, errMissingTimestamp
	}

	post := &types.Post{
		ID:             uuid.New(),
		PostID:         raw.ID,
		AuthorUsername: raw.AuthorUsername,
		AuthorID:       raw.AuthorID,
		AuthorName:     raw.AuthorName,
		Text:           raw.Text,
		Language:       raw.Language,
		CreatedAt:      raw.CreatedAt.UTC(),
		CollectedAt:    time.Now().UTC(),
		Source:         src,
		ReplyCount:     raw.ReplyCount,
		RetweetCount:   raw.RetweetCount,
		LikeCount:      raw.LikeCount,
		QuoteCount:     raw.QuoteCount,
		ViewCount:      raw.ViewCount,
		MediaURLs:      raw.MediaURLs,
	}
	if post.MediaURLs == nil {
		post.MediaURLs = []string{}
	}

	for _, ref := range raw.Referenced {
		switch ref.Kind {
		case source.RefRepliedTo:
			// A reply may have an unknown parent; the flag alone is valid.
			post.IsReply = true
			post.RepliedToID = ref.ID
		case source.RefRetweeted:
			if ref.ID != "" {
				post.IsRetweet = true
				post.RetweetedID = ref.ID
			}
		case source.RefQuoted:
			if ref.ID != "" {
				post.IsQuote = true
				post.QuotedID = ref.ID
			}
		}
	}

	post.ContentHash = post.ComputeContentHash()
	return post, nil
}
