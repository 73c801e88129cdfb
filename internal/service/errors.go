package service

import (
	"errors"
	"fmt"
)

// Validation errors are rejected synchronously and never reach the queue.
var (
	ErrPostNotFound     = errors.New("post doesn't exist")
	ErrPastSchedule     = errors.New("scheduled time must be in the future")
	ErrAlreadyPublished = errors.New("post is already published or publishing")
)

// BeyondHorizonError rejects schedule times past the configured horizon.
type BeyondHorizonError struct {
	HorizonDays int
}

func (e *BeyondHorizonError) Error() string {
	return fmt.Sprintf("scheduled time is more than %d days ahead", e.HorizonDays)
}

// NotScheduledError is returned by Reschedule when the post is not in
// scheduled status.
type NotScheduledError struct {
	PostID int64
	Status string
}

func (e *NotScheduledError) Error() string {
	return fmt.Sprintf("post %d is not scheduled (status %s)", e.PostID, e.Status)
}

// IsValidation reports whether err is one of the synchronous validation
// errors, so handlers can map it to a 4xx instead of a 500.
func IsValidation(err error) bool {
	var horizon *BeyondHorizonError
	var notScheduled *NotScheduledError
	return errors.Is(err, ErrPostNotFound) ||
		errors.Is(err, ErrPastSchedule) ||
		errors.Is(err, ErrAlreadyPublished) ||
		errors.As(err, &horizon) ||
		errors.As(err, &notScheduled)
}
