package transfer

// UploadPostResponse is the body returned by the Upload-Post submission and
// update endpoints.
type UploadPostResponse struct {
	Success       bool   `json:"success"`
	JobID         string `json:"job_id,omitempty"`
	ScheduledDate string `json:"scheduled_date,omitempty"`
	Title         string `json:"title,omitempty"`
	Caption       string `json:"caption,omitempty"`
	Error         string `json:"error,omitempty"`
	Message       string `json:"message,omitempty"`
}

// UploadPostJobStatus is the (loosely specified) status payload of
// GET /uploadposts/status. Fields beyond status/error are kept raw.
type UploadPostJobStatus struct {
	JobID  string                 `json:"job_id"`
	Status string                 `json:"status"`
	Error  string                 `json:"error,omitempty"`
	Raw    map[string]interface{} `json:"-"`
}

// UploadPostJob is one entry of GET /uploadposts/schedule.
type UploadPostJob struct {
	JobID           string  `json:"job_id"`
	ScheduledDate   string  `json:"scheduled_date"`
	PostType        string  `json:"post_type"`
	ProfileUsername string  `json:"profile_username"`
	Title           string  `json:"title"`
	PreviewURL      *string `json:"preview_url"`
}
