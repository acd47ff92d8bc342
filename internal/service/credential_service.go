package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	config "github.com/leaderflow/delivery/configs"
	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/repository"
	"github.com/leaderflow/delivery/pkg/utils"
)

// Tokens within this buffer of expiry are refreshed before use.
const tokenExpiryBuffer = 5 * time.Minute

type CredentialService interface {
	// Resolve returns a usable credential with decrypted token material,
	// refreshing it first when it is close to expiry and the platform
	// supports refresh. ErrCredentialNotFound when nothing is stored.
	Resolve(ctx context.Context, brandID, platform string) (*models.SocialCredential, error)
	Connect(ctx context.Context, c *models.SocialCredential) error
	List(ctx context.Context, brandID string) ([]*models.SocialCredential, error)
	Disconnect(ctx context.Context, brandID, platform string) error
}

type credentialService struct {
	cfg        config.Config
	repo       repository.SocialCredentialRepository
	refreshers map[string]TokenRefresher
	group      singleflight.Group
}

func NewCredentialService(cfg config.Config, repo repository.SocialCredentialRepository, refreshers map[string]TokenRefresher) CredentialService {
	return &credentialService{
		cfg:        cfg,
		repo:       repo,
		refreshers: refreshers,
	}
}

func (s *credentialService) Resolve(ctx context.Context, brandID, platform string) (*models.SocialCredential, error) {
	cred, err := s.repo.GetByBrandPlatform(ctx, brandID, platform)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrCredentialNotFound
	}

	refresher, refreshable := s.refreshers[platform]
	if refreshable && cred.Expiring() && time.Until(cred.ExpiresAt) < tokenExpiryBuffer && cred.TokenSecret != "" {
		// Single-flight per (brand, platform) so concurrent due posts never
		// race two refresh calls against the same credential.
		key := brandID + "|" + platform
		result, err, _ := s.group.Do(key, func() (interface{}, error) {
			return s.refresh(ctx, cred, refresher)
		})
		if err != nil {
			return nil, fmt.Errorf("token refresh failed for %s: %w", platform, err)
		}
		cred = result.(*models.SocialCredential)
	}

	return s.decrypted(cred)
}

func (s *credentialService) refresh(ctx context.Context, cred *models.SocialCredential, refresher TokenRefresher) (*models.SocialCredential, error) {
	slog.Info("refreshing platform token", "platform", cred.Platform, "brand_id", cred.BrandID)

	refreshToken, err := utils.Decrypt(cred.TokenSecret, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	accessToken, newRefreshToken, expiresAt, err := refresher.RefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	encryptedAccess, err := utils.Encrypt([]byte(accessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	encryptedRefresh, err := utils.Encrypt([]byte(newRefreshToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetToken(ctx, cred.ID, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return nil, err
	}

	updated := *cred
	updated.AccessToken = encryptedAccess
	updated.TokenSecret = encryptedRefresh
	updated.ExpiresAt = expiresAt
	return &updated, nil
}

// decrypted returns a copy with plaintext token material for adapter use.
// The stored row stays encrypted.
func (s *credentialService) decrypted(cred *models.SocialCredential) (*models.SocialCredential, error) {
	out := *cred

	accessToken, err := utils.Decrypt(cred.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return nil, err
	}
	out.AccessToken = accessToken

	if cred.TokenSecret != "" {
		secret, err := utils.Decrypt(cred.TokenSecret, []byte(s.cfg.SecretKey))
		if err != nil {
			return nil, err
		}
		out.TokenSecret = secret
	}
	return &out, nil
}

// Connect ingests a credential produced by the (out-of-scope) OAuth flow,
// encrypting token material before it hits the store.
func (s *credentialService) Connect(ctx context.Context, c *models.SocialCredential) error {
	encryptedAccess, err := utils.Encrypt([]byte(c.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}
	stored := *c
	stored.AccessToken = encryptedAccess

	if c.TokenSecret != "" {
		encryptedSecret, err := utils.Encrypt([]byte(c.TokenSecret), []byte(s.cfg.SecretKey))
		if err != nil {
			return err
		}
		stored.TokenSecret = encryptedSecret
	}

	_, err = s.repo.Upsert(ctx, &stored)
	return err
}

func (s *credentialService) List(ctx context.Context, brandID string) ([]*models.SocialCredential, error) {
	return s.repo.ListByBrandID(ctx, brandID)
}

func (s *credentialService) Disconnect(ctx context.Context, brandID, platform string) error {
	return s.repo.Remove(ctx, brandID, platform)
}
