package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/leaderflow/delivery/internal/models"
)

const linkedinPostURL = "https://api.linkedin.com/v2/ugcPosts"

type LinkedinService interface {
	PlatformService
}

type linkedinService struct {
	httpClient *http.Client
	postURL    string
}

func NewLinkedinService() LinkedinService {
	return &linkedinService{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		postURL:    linkedinPostURL,
	}
}

// Post submits a public text share authored by the stored person, no media
// attachment.
func (s *linkedinService) Post(ctx context.Context, content models.MediaContent, cred *models.SocialCredential) error {
	postBody := map[string]interface{}{
		"author":         personURN(cred.AccountID),
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary": map[string]string{
					"text": composeCaption(content.Caption, content.Hashtags),
				},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	payload, err := json.Marshal(postBody)
	if err != nil {
		return &PlatformError{Platform: models.PlatformLinkedin, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.postURL, bytes.NewReader(payload))
	if err != nil {
		return &PlatformError{Platform: models.PlatformLinkedin, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &PlatformError{Platform: models.PlatformLinkedin, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &PlatformError{
			Platform: models.PlatformLinkedin,
			Err:      fmt.Errorf("share rejected: %s", providerMessage(body)),
		}
	}

	slog.Info("posted to linkedin", "brand_id", cred.BrandID)
	return nil
}

func personURN(accountID string) string {
	if len(accountID) > 4 && accountID[:4] == "urn:" {
		return accountID
	}
	return "urn:li:person:" + accountID
}
