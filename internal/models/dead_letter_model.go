package models

import "time"

// DeadLetter records a publish job that exhausted its retry budget. Kept for
// operator inspection, never dropped silently.
type DeadLetter struct {
	ID        int64     `db:"id" json:"id"`
	JobID     string    `db:"job_id" json:"job_id"`
	PostID    int64     `db:"post_id" json:"post_id"`
	LastError string    `db:"last_error" json:"last_error"`
	Attempts  int       `db:"attempts" json:"attempts"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
