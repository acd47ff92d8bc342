package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/service"
)

type CredentialsHandler struct {
	s service.CredentialService
}

func NewCredentialsHandler(s service.CredentialService) *CredentialsHandler {
	return &CredentialsHandler{s: s}
}

// Connect ingests a credential the OAuth flow already exchanged. The handshake
// itself lives outside this service.
func (h *CredentialsHandler) Connect(c *fiber.Ctx) error {
	var req struct {
		Platform    string    `json:"platform"`
		AccountID   string    `json:"account_id"`
		AccessToken string    `json:"access_token"`
		TokenSecret string    `json:"token_secret"`
		ExpiresAt   time.Time `json:"expires_at"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}
	if req.Platform == "" || req.AccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "platform and access_token are required",
		})
	}

	err := h.s.Connect(c.Context(), &models.SocialCredential{
		BrandID:     GetBrandID(c),
		Platform:    req.Platform,
		AccountID:   req.AccountID,
		AccessToken: req.AccessToken,
		TokenSecret: req.TokenSecret,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to store credential",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account connected",
	})
}

func (h *CredentialsHandler) ListAccounts(c *fiber.Ctx) error {
	credentials, err := h.s.List(c.Context(), GetBrandID(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list accounts",
		})
	}
	return c.Status(fiber.StatusOK).JSON(credentials)
}

func (h *CredentialsHandler) Disconnect(c *fiber.Ctx) error {
	platform := c.Params("platform")
	if platform == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "platform is required",
		})
	}

	if err := h.s.Disconnect(c.Context(), GetBrandID(c), platform); err != nil {
		if errors.Is(err, service.ErrCredentialNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to disconnect account",
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Account disconnected",
	})
}
