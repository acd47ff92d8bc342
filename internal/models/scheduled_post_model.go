package models

import "time"

// MediaContent is the approved payload a post carries. It is stored on the
// scheduled_posts row as serialized JSON.
type MediaContent struct {
	Type        string   `json:"type"` // image, video, carousel, infographic
	ImageURL    string   `json:"image_url"`
	PreviewURLs []string `json:"preview_urls,omitempty"`
	VideoBrief  string   `json:"video_brief,omitempty"`
	Caption     string   `json:"caption"`
	Description string   `json:"description"`
	Hashtags    []string `json:"hashtags"`
}

type ScheduledPost struct {
	ID            string       `db:"id" json:"id"`
	Content       MediaContent `db:"content" json:"content"`
	Platforms     []string     `db:"platforms" json:"platforms"`
	ScheduledTime time.Time    `db:"scheduled_time" json:"scheduled_time"`
	Status        string       `db:"status" json:"status"`
	Error         string       `db:"error" json:"error,omitempty"`
	ExternalJobID string       `db:"external_job_id" json:"external_job_id,omitempty"`
	BrandID       string       `db:"brand_id" json:"brand_id"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}

const (
	PostStatusPending    = "pending"
	PostStatusProcessing = "processing"
	PostStatusSuccess    = "success"
	PostStatusFailed     = "failed"
)

// IsTerminal reports whether the post has reached its final state. Terminal
// posts are never written back to pending.
func (p *ScheduledPost) IsTerminal() bool {
	return p.Status == PostStatusSuccess || p.Status == PostStatusFailed
}

// IsExternal reports whether reconciliation should poll the external publisher
// for this post instead of invoking platform adapters.
func (p *ScheduledPost) IsExternal() bool {
	return p.ExternalJobID != ""
}
