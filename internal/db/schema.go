package db

import (
	"context"
	"fmt"
)

// schema creates the jobs and posts tables. The unique index on
// posts.post_id is what makes persist-or-skip atomic at the storage layer.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id                UUID PRIMARY KEY,
    job_type          TEXT NOT NULL,
    status            TEXT NOT NULL,
    params            JSONB NOT NULL DEFAULT '{}',
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    started_at        TIMESTAMPTZ,
    completed_at      TIMESTAMPTZ,
    posts_collected   INTEGER NOT NULL DEFAULT 0,
    posts_skipped     INTEGER NOT NULL DEFAULT 0,
    posts_failed      INTEGER NOT NULL DEFAULT 0,
    error_message     TEXT,
    error_detail      TEXT,
    retry_count       INTEGER NOT NULL DEFAULT 0,
    source_used       TEXT,
    external_task_ref TEXT,
    metadata          JSONB NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS ix_jobs_type_status ON jobs (job_type, status);
CREATE INDEX IF NOT EXISTS ix_jobs_created_at ON jobs (created_at DESC);

CREATE TABLE IF NOT EXISTS posts (
    id              UUID PRIMARY KEY,
    post_id         TEXT NOT NULL UNIQUE,
    author_username TEXT NOT NULL,
    author_id       TEXT,
    author_name     TEXT,
    text            TEXT NOT NULL,
    language        TEXT,
    created_at      TIMESTAMPTZ NOT NULL,
    collected_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at      TIMESTAMPTZ,
    source          TEXT NOT NULL,
    reply_count     INTEGER NOT NULL DEFAULT 0,
    retweet_count   INTEGER NOT NULL DEFAULT 0,
    like_count      INTEGER NOT NULL DEFAULT 0,
    quote_count     INTEGER NOT NULL DEFAULT 0,
    view_count      INTEGER,
    is_reply        BOOLEAN NOT NULL DEFAULT FALSE,
    is_retweet      BOOLEAN NOT NULL DEFAULT FALSE,
    is_quote        BOOLEAN NOT NULL DEFAULT FALSE,
    replied_to_id   TEXT,
    retweeted_id    TEXT,
    quoted_id       TEXT,
    media_urls      JSONB NOT NULL DEFAULT '[]',
    content_hash    TEXT,
    is_deleted      BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS ix_posts_created_at ON posts (created_at DESC);
CREATE INDEX IF NOT EXISTS ix_posts_collected_at ON posts (collected_at);
CREATE INDEX IF NOT EXISTS ix_posts_source_created_at ON posts (source, created_at DESC);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}
