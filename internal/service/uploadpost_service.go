package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	config "github.com/leaderflow/delivery/configs"
	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/transfer"
)

const (
	// Upload-Post rejects schedule times closer than its minimum lead; clamp
	// forward instead of failing.
	uploadPostMinLead = 5 * time.Minute

	// Some platforms use the title as the main content, so the limit is
	// generous.
	uploadPostTitleLimit = 1000
)

type UploadPostService interface {
	CreateScheduledPost(ctx context.Context, content models.MediaContent, platforms []string, scheduledTime time.Time) (*transfer.UploadPostResponse, error)
	GetJobStatus(ctx context.Context, jobID string) (*transfer.UploadPostJobStatus, error)
	ListScheduledPosts(ctx context.Context) ([]*transfer.UploadPostJob, error)
	CancelScheduledPost(ctx context.Context, jobID string) error
	UpdateScheduledPost(ctx context.Context, jobID string, updates *transfer.RescheduleRequest) (*transfer.UploadPostResponse, error)
	Configured() bool
}

type uploadPostService struct {
	cfg        config.UploadPost
	httpClient *http.Client

	mu             sync.Mutex
	profileEnsured bool
}

func NewUploadPostService(cfg config.Config) UploadPostService {
	return &uploadPostService{
		cfg: cfg.UploadPost,
		httpClient: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (s *uploadPostService) Configured() bool {
	return s.cfg.APIKey != ""
}

// submitShape enumerates the submission shapes tried against the provider's
// inconsistent media field contract. The primary shape carries redundant
// aliases already; the rest are the fallback ladder for the known 400 quirk.
type submitShape int

const (
	shapePrimary submitShape = iota
	shapeURLOnly
	shapeSingularFile
	shapePhotoAliases
)

// photoRequiredSignatures are the known bodies of the 400 response where the
// provider rejected the primary media fields. Anything else surfaces as-is.
var photoRequiredSignatures = []string{
	"Photo files or URLs are required",
	"required",
}

func (s *uploadPostService) CreateScheduledPost(ctx context.Context, content models.MediaContent, platforms []string, scheduledTime time.Time) (*transfer.UploadPostResponse, error) {
	if content.ImageURL == "" {
		return nil, &ValidationError{Message: "Image URL is required for scheduling."}
	}

	s.ensureUserProfile(ctx)

	var resp *transfer.UploadPostResponse
	err := withRetry(ctx, "uploadpost.create", func() error {
		var err error
		resp, err = s.submitOnce(ctx, content, platforms, scheduledTime)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ensureUserProfile performs the one-time idempotent profile registration.
// "Already exists" is success; anything else is logged and the upload proceeds
// anyway, since the profile may well exist. The result is only cached on a
// confirmed outcome so a transient failure gets retried on the next
// submission.
func (s *uploadPostService) ensureUserProfile(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileEnsured {
		return
	}

	body, _ := json.Marshal(map[string]string{"username": s.cfg.Username})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/uploadposts/users", bytes.NewReader(body))
	if err != nil {
		slog.Info(err.Error())
		return
	}
	req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Warn("profile registration failed, proceeding anyway", "error", err.Error())
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode < 300:
		s.profileEnsured = true
		slog.Info("upload-post profile verified", "username", s.cfg.Username)
	case resp.StatusCode == http.StatusConflict || strings.Contains(string(respBody), "already exists"):
		s.profileEnsured = true
		slog.Info("upload-post profile already exists", "username", s.cfg.Username)
	default:
		slog.Warn("unexpected profile registration response",
			"status", resp.StatusCode, "body", truncate(string(respBody), 200))
	}
}

func (s *uploadPostService) submitOnce(ctx context.Context, content models.MediaContent, platforms []string, scheduledTime time.Time) (*transfer.UploadPostResponse, error) {
	minTime := time.Now().Add(uploadPostMinLead)
	finalTime := scheduledTime
	if finalTime.Before(minTime) {
		slog.Info("adjusted schedule time to satisfy provider lead-time minimum",
			"requested", scheduledTime.UTC().Format(time.RFC3339),
			"adjusted", minTime.UTC().Format(time.RFC3339))
		finalTime = minTime
	}

	fields := submissionFields{
		title:     postTitle(content.Caption),
		caption:   composeCaption(content.Caption, content.Hashtags),
		isoDate:   finalTime.UTC().Format("2006-01-02T15:04:05") + "Z",
		username:  s.cfg.Username,
		platforms: platforms,
	}

	isVideo := content.Type == "video"
	endpoint := "/upload_photos"
	if isVideo {
		endpoint = "/upload_videos"
	}

	isPublicURL := strings.HasPrefix(content.ImageURL, "http")

	media, err := resolveMedia(ctx, s.httpClient, content.ImageURL, content.Type)
	if err != nil || media.empty() {
		if !isPublicURL {
			if err == nil {
				err = &ResolutionError{Ref: content.ImageURL, Err: fmt.Errorf("resolved to empty payload")}
			}
			return nil, err
		}
		// No bytes, but the reference is public; the provider can fetch it
		// itself via the URL fields.
		slog.Warn("media resolution failed, submitting URL only", "url", content.ImageURL)
		media = nil
	}

	shapes := []submitShape{shapePrimary}
	if isPublicURL {
		shapes = append(shapes, shapeURLOnly)
	}
	if !isVideo && !media.empty() {
		shapes = append(shapes, shapeSingularFile, shapePhotoAliases)
	}

	var lastStatus int
	var lastBody []byte
	for i, shape := range shapes {
		body, contentType, err := buildSubmission(shape, fields, media, content.ImageURL, isVideo, isPublicURL)
		if err != nil {
			return nil, err
		}

		status, respBody, err := s.post(ctx, endpoint, body, contentType)
		if err != nil {
			return nil, err
		}

		if status < 300 {
			var result transfer.UploadPostResponse
			if err := json.Unmarshal(respBody, &result); err != nil {
				return nil, fmt.Errorf("malformed provider response: %w", err)
			}
			return &result, nil
		}

		lastStatus, lastBody = status, respBody

		// Only the primary shape decides whether the ladder applies at all.
		if i == 0 && !(status == http.StatusBadRequest && matchesPhotoRequired(respBody)) {
			break
		}
		slog.Warn("provider rejected submission shape, trying next",
			"shape", int(shape), "status", status)
	}

	return nil, &ProviderError{StatusCode: lastStatus, Message: providerMessage(lastBody)}
}

func matchesPhotoRequired(body []byte) bool {
	for _, sig := range photoRequiredSignatures {
		if bytes.Contains(body, []byte(sig)) {
			return true
		}
	}
	return false
}

type submissionFields struct {
	title     string
	caption   string
	isoDate   string
	username  string
	platforms []string
}

func buildSubmission(shape submitShape, fields submissionFields, media *resolvedMedia, imageURL string, isVideo, isPublicURL bool) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	w.WriteField("title", fields.title)
	w.WriteField("caption", fields.caption)
	w.WriteField("scheduled_date", fields.isoDate)
	w.WriteField("timezone", "UTC")
	w.WriteField("user", fields.username)
	for _, p := range fields.platforms {
		w.WriteField("platform[]", p)
	}

	writeFile := func(field string) error {
		part, err := w.CreateFormFile(field, media.Filename)
		if err != nil {
			return err
		}
		_, err = part.Write(media.Data)
		return err
	}

	switch shape {
	case shapePrimary:
		if media.empty() {
			w.WriteField("url", imageURL)
			if !isVideo {
				w.WriteField("photo_urls[]", imageURL)
			}
			break
		}
		if isVideo {
			if err := writeFile("video"); err != nil {
				return nil, "", err
			}
			break
		}
		// The provider's accepted field names vary across photo/platform
		// combinations; redundancy raises acceptance odds without changing
		// semantics.
		for _, field := range []string{"photos[]", "photo", "photos"} {
			if err := writeFile(field); err != nil {
				return nil, "", err
			}
		}
		if isPublicURL {
			w.WriteField("photo_urls[]", imageURL)
		}
	case shapeURLOnly:
		w.WriteField("url", imageURL)
		if !isVideo {
			w.WriteField("photo_urls[]", imageURL)
		}
	case shapeSingularFile:
		if err := writeFile("file"); err != nil {
			return nil, "", err
		}
	case shapePhotoAliases:
		for _, field := range []string{"photo", "photos"} {
			if err := writeFile(field); err != nil {
				return nil, "", err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

func (s *uploadPostService) post(ctx context.Context, endpoint string, body *bytes.Buffer, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

func (s *uploadPostService) GetJobStatus(ctx context.Context, jobID string) (*transfer.UploadPostJobStatus, error) {
	var status *transfer.UploadPostJobStatus
	err := withRetry(ctx, "uploadpost.status", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/uploadposts/status?job_id="+jobID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 300 {
			return &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
		}

		raw := map[string]interface{}{}
		if err := json.Unmarshal(respBody, &raw); err != nil {
			return fmt.Errorf("malformed status response: %w", err)
		}

		status = &transfer.UploadPostJobStatus{
			JobID:  jobID,
			Status: stringField(raw, "status"),
			Error:  stringField(raw, "error"),
			Raw:    raw,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *uploadPostService) ListScheduledPosts(ctx context.Context) ([]*transfer.UploadPostJob, error) {
	var jobs []*transfer.UploadPostJob
	err := withRetry(ctx, "uploadpost.list", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+"/uploadposts/schedule", nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
		}
		return json.Unmarshal(respBody, &jobs)
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (s *uploadPostService) CancelScheduledPost(ctx context.Context, jobID string) error {
	return withRetry(ctx, "uploadpost.cancel", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.cfg.BaseURL+"/uploadposts/schedule/"+jobID, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			respBody, _ := io.ReadAll(resp.Body)
			return &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
		}
		return nil
	})
}

func (s *uploadPostService) UpdateScheduledPost(ctx context.Context, jobID string, updates *transfer.RescheduleRequest) (*transfer.UploadPostResponse, error) {
	payload := map[string]string{}
	if updates.ScheduledTime != nil {
		payload["scheduled_date"] = updates.ScheduledTime.UTC().Format("2006-01-02T15:04:05") + "Z"
	}
	if updates.Title != nil {
		payload["title"] = *updates.Title
	}
	if updates.Caption != nil {
		payload["caption"] = *updates.Caption
	}

	var result *transfer.UploadPostResponse
	err := withRetry(ctx, "uploadpost.update", func() error {
		body, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.cfg.BaseURL+"/uploadposts/schedule/"+jobID, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Apikey "+s.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode >= 300 {
			return &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(respBody)}
		}

		result = &transfer.UploadPostResponse{}
		return json.Unmarshal(respBody, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// providerMessage extracts a human-readable message from a provider error
// body, preferring error, then message, then the raw body.
func providerMessage(body []byte) string {
	var parsed struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Error != "" {
			return parsed.Error
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return truncate(string(body), 300)
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func postTitle(caption string) string {
	if caption == "" {
		return "New Post"
	}
	return truncate(caption, uploadPostTitleLimit)
}

// composeCaption joins the caption and normalized hashtags the way every
// outbound surface renders them.
func composeCaption(caption string, hashtags []string) string {
	if len(hashtags) == 0 {
		return caption
	}
	tags := make([]string, 0, len(hashtags))
	for _, t := range hashtags {
		if !strings.HasPrefix(t, "#") {
			t = "#" + t
		}
		tags = append(tags, t)
	}
	return caption + "\n\n" + strings.Join(tags, " ")
}
