package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/repository"
	"github.com/leaderflow/delivery/pkg/utils"
)

type ApiKeyService interface {
	GetBrandID(ctx context.Context, apiKey string) (string, error)
	Create(ctx context.Context, brandID string) (string, error)
	List(ctx context.Context, brandID string) ([]*models.ApiKey, error)
	Remove(ctx context.Context, id int64) error
}

type apiKeyService struct {
	r repository.ApiKeyRepository
}

func NewApiKeyService(r repository.ApiKeyRepository) ApiKeyService {
	return &apiKeyService{r: r}
}

func (s *apiKeyService) GetBrandID(ctx context.Context, apiKey string) (string, error) {
	brandID, found, err := s.r.GetByKey(ctx, apiKey)
	if err != nil {
		return "", err
	}
	if !found {
		err = errors.New("invalid api key")
		slog.Info(err.Error())
		return "", err
	}
	return brandID, nil
}

func (s *apiKeyService) Create(ctx context.Context, brandID string) (string, error) {
	key, err := utils.GenerateRandomKey(32)
	if err != nil {
		return "", err
	}
	_, err = s.r.Create(ctx, &models.ApiKey{BrandID: brandID, ApiKey: key})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *apiKeyService) List(ctx context.Context, brandID string) ([]*models.ApiKey, error) {
	return s.r.GetByBrandID(ctx, brandID)
}

func (s *apiKeyService) Remove(ctx context.Context, id int64) error {
	return s.r.Remove(ctx, id)
}
