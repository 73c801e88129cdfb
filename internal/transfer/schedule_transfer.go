package transfer

type ScheduleRequest struct {
	PostID        int64  `json:"post_id"`
	ScheduledTime string `json:"scheduled_time"`
}

type UnscheduleRequest struct {
	PostID int64 `json:"post_id"`
}

type PublishNowRequest struct {
	PostID int64 `json:"post_id"`
}

type SweepRequest struct {
	UserID int64 `json:"user_id,omitempty"`
}

type PublishSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}
