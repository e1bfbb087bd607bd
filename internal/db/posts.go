package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jonathan/x-collector/internal/store"
	"github.com/jonathan/x-collector/internal/types"
)

const postColumns = `id, post_id, author_username, author_id, author_name, text, language,
	created_at, collected_at, updated_at, source, reply_count, retweet_count,
	like_count, quote_count, view_count, is_reply, is_retweet, is_quote,
	replied_to_id, retweeted_id, quoted_id, media_urls, content_hash, is_deleted`

// InsertPost persists a post keyed by post_id. The unique constraint makes
// the insert-or-skip atomic; a duplicate reports false without error.
func (db *DB) InsertPost(ctx context.Context, post *types.Post) (bool, error) {
	mediaJSON, err := json.Marshal(post.MediaURLs)
	if err != nil {
		return false, fmt.Errorf("failed to marshal media urls: %w", err)
	}

	result, err := db.pool.Exec(ctx,
		`INSERT INTO posts (id, post_id, author_username, author_id, author_name, text,
		                    language, created_at, collected_at, source, reply_count,
		                    retweet_count, like_count, quote_count, view_count,
		                    is_reply, is_retweet, is_quote, replied_to_id, retweeted_id,
		                    quoted_id, media_urls, content_hash, is_deleted)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8, $9,
		         $10, $11, $12, $13, $14, $15, $16, $17, $18, NULLIF($19, ''),
		         NULLIF($20, ''), NULLIF($21, ''), $22, NULLIF($23, ''), $24)
		 ON CONFLICT (post_id) DO NOTHING`,
		post.ID, post.PostID, post.AuthorUsername, post.AuthorID, post.AuthorName,
		post.Text, post.Language, post.CreatedAt, post.CollectedAt, post.Source,
		post.ReplyCount, post.RetweetCount, post.LikeCount, post.QuoteCount,
		post.ViewCount, post.IsReply, post.IsRetweet, post.IsQuote,
		post.RepliedToID, post.RetweetedID, post.QuotedID, mediaJSON,
		post.ContentHash, post.IsDeleted,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert post: %w", err)
	}
	return result.RowsAffected() > 0, nil
}

// GetPostByPostID retrieves a post by its source-assigned id. Soft-deleted
// posts are not returned.
func (db *DB) GetPostByPostID(ctx context.Context, postID string) (*types.Post, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts WHERE post_id = $1 AND is_deleted = FALSE`,
		postID)

	post, err := scanPost(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return post, nil
}

// ListPosts retrieves non-deleted posts, newest first.
func (db *DB) ListPosts(ctx context.Context, filters store.PostFilters) ([]types.Post, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	query := `SELECT ` + postColumns + ` FROM posts WHERE is_deleted = FALSE`
	args := []any{}
	argNum := 1

	if filters.Source != "" {
		query += fmt.Sprintf(" AND source = $%d", argNum)
		args = append(args, filters.Source)
		argNum++
	}
	if filters.HasMedia != nil {
		if *filters.HasMedia {
			query += " AND jsonb_array_length(media_urls) > 0"
		} else {
			query += " AND jsonb_array_length(media_urls) = 0"
		}
	}
	if filters.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argNum)
		args = append(args, *filters.Since)
		argNum++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filters.Limit, filters.Offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []types.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// LatestPostCollectedSince returns the post with the newest created_at among
// posts collected at or after since, or nil when none qualifies.
func (db *DB) LatestPostCollectedSince(ctx context.Context, since time.Time) (*types.Post, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE is_deleted = FALSE AND collected_at >= $1
		 ORDER BY created_at DESC LIMIT 1`,
		since)

	post, err := scanPost(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest post: %w", err)
	}
	return post, nil
}

// PostStats computes aggregate statistics over non-deleted posts.
func (db *DB) PostStats(ctx context.Context) (*types.PostStats, error) {
	stats := &types.PostStats{
		PostsBySource: make(map[string]int64),
	}

	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(like_count), 0),
		        COALESCE(SUM(retweet_count), 0),
		        COALESCE(SUM(reply_count), 0),
		        COALESCE(AVG(like_count), 0),
		        COALESCE(AVG(retweet_count), 0),
		        COUNT(*) FILTER (WHERE jsonb_array_length(media_urls) > 0),
		        MIN(created_at),
		        MAX(created_at),
		        COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '24 hours'),
		        COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '7 days'),
		        COUNT(*) FILTER (WHERE created_at >= NOW() - INTERVAL '30 days')
		 FROM posts WHERE is_deleted = FALSE`,
	).Scan(&stats.TotalPosts, &stats.TotalLikes, &stats.TotalRetweets,
		&stats.TotalReplies, &stats.AvgLikesPerPost, &stats.AvgRetweetsPerPost,
		&stats.PostsWithMedia, &stats.EarliestPost, &stats.LatestPost,
		&stats.PostsLast24h, &stats.PostsLast7d, &stats.PostsLast30d)
	if err != nil {
		return nil, fmt.Errorf("failed to compute post stats: %w", err)
	}

	rows, err := db.pool.Query(ctx,
		`SELECT source, COUNT(*) FROM posts WHERE is_deleted = FALSE GROUP BY source`)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts by source: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var source string
		var count int64
		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("failed to scan source count: %w", err)
		}
		stats.PostsBySource[source] = count
	}

	if stats.TotalPosts > 0 {
		stats.PostsWithMediaPercentage = float64(stats.PostsWithMedia) / float64(stats.TotalPosts) * 100
	}

	return stats, rows.Err()
}

func scanPost(row pgx.Row) (*types.Post, error) {
	var (
		p           types.Post
		authorID    *string
		authorName  *string
		language    *string
		repliedToID *string
		retweetedID *string
		quotedID    *string
		contentHash *string
		mediaJSON   []byte
	)

	err := row.Scan(&p.ID, &p.PostID, &p.AuthorUsername, &authorID, &authorName,
		&p.Text, &language, &p.CreatedAt, &p.CollectedAt, &p.UpdatedAt, &p.Source,
		&p.ReplyCount, &p.RetweetCount, &p.LikeCount, &p.QuoteCount, &p.ViewCount,
		&p.IsReply, &p.IsRetweet, &p.IsQuote, &repliedToID, &retweetedID,
		&quotedID, &mediaJSON, &contentHash, &p.IsDeleted)
	if err != nil {
		return nil, err
	}

	if authorID != nil {
		p.AuthorID = *authorID
	}
	if authorName != nil {
		p.AuthorName = *authorName
	}
	if language != nil {
		p.Language = *language
	}
	if repliedToID != nil {
		p.RepliedToID = *repliedToID
	}
	if retweetedID != nil {
		p.RetweetedID = *retweetedID
	}
	if quotedID != nil {
		p.QuotedID = *quotedID
	}
	if contentHash != nil {
		p.ContentHash = *contentHash
	}
	if mediaJSON != nil {
		_ = json.Unmarshal(mediaJSON, &p.MediaURLs)
	}
	if p.MediaURLs == nil {
		p.MediaURLs = []string{}
	}

	return &p, nil
}
