package transfer

import (
	"time"

	"github.com/leaderflow/delivery/internal/models"
)

// SchedulePostRequest is the JSON body of POST /api/posts/schedule.
type SchedulePostRequest struct {
	Content       models.MediaContent `json:"content"`
	Platforms     []string            `json:"platforms"`
	ScheduledTime time.Time           `json:"scheduled_time"`
	BrandID       string              `json:"brand_id"`
}

// SchedulePostResult is returned to the caller of submission. Failure is a
// structured value, not an error, so the caller can decide how to react.
type SchedulePostResult struct {
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
	Post    *models.ScheduledPost `json:"post,omitempty"`
}

// RescheduleRequest carries the partial fields of a schedule update.
type RescheduleRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	Title         *string    `json:"title,omitempty"`
	Caption       *string    `json:"caption,omitempty"`
}
