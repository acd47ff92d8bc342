package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leaderflow/delivery/internal/models"
)

const instagramGraphBase = "https://graph.facebook.com/v19.0"

type InstagramService interface {
	PlatformService
}

type instagramService struct {
	media      MediaHost
	httpClient *http.Client
	graphBase  string
}

func NewInstagramService(media MediaHost) InstagramService {
	return &instagramService{
		media:      media,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		graphBase:  instagramGraphBase,
	}
}

// Post runs the Graph API's two-step container/publish protocol. The image
// must be reachable by public URL, so embedded data is hosted first.
func (s *instagramService) Post(ctx context.Context, content models.MediaContent, cred *models.SocialCredential) error {
	imageURL, err := s.publicImageURL(ctx, content.ImageURL)
	if err != nil {
		return &PlatformError{Platform: models.PlatformInstagram, Err: err}
	}

	containerID, err := s.createContainer(ctx, cred, imageURL, composeCaption(content.Caption, content.Hashtags))
	if err != nil {
		return &PlatformError{Platform: models.PlatformInstagram, Err: err}
	}

	if err := s.publish(ctx, cred, containerID); err != nil {
		return &PlatformError{Platform: models.PlatformInstagram, Err: err}
	}

	slog.Info("posted to instagram", "brand_id", cred.BrandID)
	return nil
}

func (s *instagramService) publicImageURL(ctx context.Context, ref string) (string, error) {
	if !strings.HasPrefix(ref, "data:") {
		return ref, nil
	}

	data, mime, err := decodeDataURI(ref)
	if err != nil {
		return "", err
	}

	hosted, err := s.media.HostPublic(ctx, data, mime)
	if err != nil {
		return "", fmt.Errorf("failed to host embedded image: %w", err)
	}
	slog.Info("hosted embedded image for instagram", "url", hosted)
	return hosted, nil
}

func (s *instagramService) createContainer(ctx context.Context, cred *models.SocialCredential, imageURL, caption string) (string, error) {
	params := url.Values{}
	params.Set("image_url", imageURL)
	params.Set("caption", caption)
	params.Set("access_token", cred.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media?%s", s.graphBase, cred.AccountID, params.Encode())
	id, err := s.graphPost(ctx, endpoint)
	if err != nil {
		return "", fmt.Errorf("create media error: %w", err)
	}
	if id == "" {
		return "", fmt.Errorf("no media creation ID returned")
	}
	return id, nil
}

func (s *instagramService) publish(ctx context.Context, cred *models.SocialCredential, containerID string) error {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", cred.AccessToken)

	endpoint := fmt.Sprintf("%s/%s/media_publish?%s", s.graphBase, cred.AccountID, params.Encode())
	if _, err := s.graphPost(ctx, endpoint); err != nil {
		return fmt.Errorf("publish media error: %w", err)
	}
	return nil
}

func (s *instagramService) graphPost(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode >= 300 {
		var parsed struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
			return "", fmt.Errorf("%s", parsed.Error.Message)
		}
		return "", fmt.Errorf("unexpected status %d from Instagram", resp.StatusCode)
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	return result.ID, nil
}
