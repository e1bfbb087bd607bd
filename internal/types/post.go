package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostSource identifies which client produced a post record.
type PostSource string

const (
	SourceAPI     PostSource = "api"
	SourceScraper PostSource = "scraper"
)

// Post is a collected post. Rows are immutable after ingestion except for
// the soft-delete flag and updated_at.
type Post struct {
	ID     uuid.UUID `json:"id"`
	PostID string    `json:"post_id"`

	AuthorUsername string `json:"author_username"`
	AuthorID       string `json:"author_id,omitempty"`
	AuthorName     string `json:"author_name,omitempty"`

	Text     string `json:"text"`
	Language string `json:"language,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CollectedAt time.Time  `json:"collected_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`

	Source PostSource `json:"source"`

	ReplyCount   int  `json:"reply_count"`
	RetweetCount int  `json:"retweet_count"`
	LikeCount    int  `json:"like_count"`
	QuoteCount   int  `json:"quote_count"`
	ViewCount    *int `json:"view_count,omitempty"`

	IsReply   bool `json:"is_reply"`
	IsRetweet bool `json:"is_retweet"`
	IsQuote   bool `json:"is_quote"`

	RepliedToID string `json:"replied_to_id,omitempty"`
	RetweetedID string `json:"retweeted_id,omitempty"`
	QuotedID    string `json:"quoted_id,omitempty"`

	MediaURLs []string `json:"media_urls"`

	ContentHash string `json:"content_hash,omitempty"`
	IsDeleted   bool   `json:"is_deleted"`
}

// HasMedia reports whether the post carries media attachments.
func (p *Post) HasMedia() bool {
	return len(p.MediaURLs) > 0
}

// ComputeContentHash returns the SHA-256 digest of the post's identity and
// content. Used for integrity verification and export, not deduplication.
func (p *Post) ComputeContentHash() string {
	content := fmt.Sprintf("%s:%s:%s", p.PostID, p.Text, p.CreatedAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// PostStats holds aggregate statistics over non-deleted posts.
type PostStats struct {
	TotalPosts    int64            `json:"total_posts"`
	PostsBySource map[string]int64 `json:"posts_by_source"`

	TotalLikes    int64 `json:"total_likes"`
	TotalRetweets int64 `json:"total_retweets"`
	TotalReplies  int64 `json:"total_replies"`

	AvgLikesPerPost    float64 `json:"avg_likes_per_post"`
	AvgRetweetsPerPost float64 `json:"avg_retweets_per_post"`

	PostsWithMedia           int64   `json:"posts_with_media"`
	PostsWithMediaPercentage float64 `json:"posts_with_media_percentage"`

	EarliestPost *time.Time `json:"earliest_post,omitempty"`
	LatestPost   *time.Time `json:"latest_post,omitempty"`

	PostsLast24h int64 `json:"posts_last_24h"`
	PostsLast7d  int64 `json:"posts_last_7d"`
	PostsLast30d int64 `json:"posts_last_30d"`
}
