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

	"golang.org/x/oauth2"

	config "github.com/leaderflow/delivery/configs"
	"github.com/leaderflow/delivery/internal/models"
)

const (
	twitterPostURL  = "https://api.twitter.com/2/tweets"
	twitterTokenURL = "https://api.twitter.com/2/oauth2/token"
)

// PlatformService posts already-approved content straight to one platform.
// Implementations never retry internally.
type PlatformService interface {
	Post(ctx context.Context, content models.MediaContent, cred *models.SocialCredential) error
}

// TokenRefresher exchanges a refresh token for fresh token material.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, expiresAt time.Time, err error)
}

type TwitterService interface {
	PlatformService
	TokenRefresher
}

type twitterService struct {
	cfg        config.Config
	httpClient *http.Client
	postURL    string
}

func NewTwitterService(cfg config.Config) TwitterService {
	return &twitterService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		postURL:    twitterPostURL,
	}
}

// Post submits the caption and hashtags as a single text tweet. Media upload
// is not part of this path.
func (s *twitterService) Post(ctx context.Context, content models.MediaContent, cred *models.SocialCredential) error {
	payload, err := json.Marshal(map[string]string{
		"text": composeCaption(content.Caption, content.Hashtags),
	})
	if err != nil {
		return &PlatformError{Platform: models.PlatformTwitter, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.postURL, bytes.NewReader(payload))
	if err != nil {
		return &PlatformError{Platform: models.PlatformTwitter, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &PlatformError{Platform: models.PlatformTwitter, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &PlatformError{
			Platform: models.PlatformTwitter,
			Err:      fmt.Errorf("tweet rejected: %s", providerMessage(body)),
		}
	}

	slog.Info("posted to twitter", "brand_id", cred.BrandID)
	return nil
}

// RefreshToken runs the OAuth2 refresh-token grant. Twitter is the only
// platform in this system with programmatic refresh support.
func (s *twitterService) RefreshToken(ctx context.Context, refreshToken string) (string, string, time.Time, error) {
	conf := &oauth2.Config{
		ClientID:     s.cfg.TwitterClientID,
		ClientSecret: s.cfg.TwitterClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL:  twitterTokenURL,
			AuthStyle: oauth2.AuthStyleInHeader,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		slog.Info(err.Error())
		return "", "", time.Time{}, err
	}

	newRefresh := token.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	return token.AccessToken, newRefresh, token.Expiry, nil
}
