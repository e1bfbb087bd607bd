// Package source provides the two interchangeable providers of raw post
// data: the structured X API client and the browser-driven scraper.
package source

import (
	"context"
	"fmt"
	"time"
)

// Client fetches raw post records for a username. cursor is an opaque marker
// meaning "only records after this point"; pass "" for the most recent
// maxResults records. Ordering of the result is source-defined and callers
// must not rely on it.
type Client interface {
	Fetch(ctx context.Context, username string, maxResults int, cursor string) ([]RawPost, error)
}

// ReferencedKind is the relation type of a cross-referenced post.
type ReferencedKind string

const (
	RefRepliedTo ReferencedKind = "replied_to"
	RefRetweeted ReferencedKind = "retweeted"
	RefQuoted    ReferencedKind = "quoted"
)

// Referenced is a relation from a raw post to another post.
type Referenced struct {
	Kind ReferencedKind
	ID   string
}

// RawPost is a structurally parsed post record as produced by a source,
// before normalization and persistence. A RawPost may be incomplete; the
// ingestor validates required fields and counts malformed records.
type RawPost struct {
	ID             string
	Text           string
	AuthorID       string
	AuthorUsername string
	AuthorName     string
	Language       string
	CreatedAt      time.Time

	ReplyCount   int
	RetweetCount int
	LikeCount    int
	QuoteCount   int
	ViewCount    *int

	Referenced []Referenced
	MediaURLs  []string
}

// AuthError indicates invalid or missing credentials. Fatal, never retried.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %v", e.Cause)
	}
	return "authentication failed"
}

func (e *AuthError) Unwrap() error { return e.Cause }

// RobotsDisallowedError indicates the robots-exclusion policy forbids
// fetching the target page. Fatal, never retried, no silent fallback.
type RobotsDisallowedError struct {
	URL string
}

func (e *RobotsDisallowedError) Error() string {
	return fmt.Sprintf("robots.txt disallows fetching %s; configure API credentials instead", e.URL)
}
