package models

import "time"

type Post struct {
	ID           int64      `db:"id" json:"id"`
	UserID       int64      `db:"user_id" json:"user_id"`
	Content      string     `db:"content" json:"content"`
	Title        string     `db:"title" json:"title"`
	FirstComment string     `db:"first_comment" json:"first_comment,omitempty"`
	MediaRefs    []string   `db:"media_refs" json:"media_refs,omitempty"`
	Status       string     `db:"status" json:"status"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time `db:"published_at" json:"published_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

const (
	PostStatusDraft          = "draft"
	PostStatusScheduled      = "scheduled"
	PostStatusPublishing     = "publishing"
	PostStatusPublished      = "published"
	PostStatusPartialSuccess = "partial_success"
	PostStatusFailed         = "failed"
)

// PostTarget tracks the publication of one post to one target. RemoteID is
// set only when the target publish succeeded; ErrorMessage/ErrorCode only
// when it failed.
type PostTarget struct {
	ID           int64     `db:"id" json:"id"`
	PostID       int64     `db:"post_id" json:"post_id"`
	TargetID     int64     `db:"target_id" json:"target_id"`
	Status       string    `db:"status" json:"status"`
	RemoteID     string    `db:"remote_id" json:"remote_id,omitempty"`
	ErrorCode    string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	CommentID    string    `db:"comment_id" json:"comment_id,omitempty"`
	CommentError string    `db:"comment_error" json:"comment_error,omitempty"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

const (
	TargetStatusPending    = "pending"
	TargetStatusScheduled  = "scheduled"
	TargetStatusPublishing = "publishing"
	TargetStatusPublished  = "published"
	TargetStatusFailed     = "failed"
)
