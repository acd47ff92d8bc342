package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"github.com/leaderflow/delivery/internal/queue"
	"github.com/leaderflow/delivery/internal/service"
	"github.com/leaderflow/delivery/internal/transfer"
)

type DeliveryHandler struct {
	s           service.DeliveryService
	AsynqClient *asynq.Client
}

func NewDeliveryHandler(s service.DeliveryService, asynqClient *asynq.Client) *DeliveryHandler {
	return &DeliveryHandler{s: s, AsynqClient: asynqClient}
}

func (h *DeliveryHandler) SchedulePost(c *fiber.Ctx) error {
	var req transfer.SchedulePostRequest
	if err := c.BodyParser(&req); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}
	req.BrandID = GetBrandID(c)

	result, err := h.s.SchedulePost(c.Context(), &req)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(transfer.SchedulePostResult{
				Success: false,
				Error:   ve.Message,
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(transfer.SchedulePostResult{
			Success: false,
			Error:   err.Error(),
		})
	}

	// Direct-path posts get a delivery task at their due time; the
	// reconciliation sweep covers tasks lost across restarts.
	if result.Post != nil && !result.Post.IsExternal() {
		delay := time.Until(result.Post.ScheduledTime)
		if delay < 0 {
			delay = 0
		}
		if err := queue.EnqueuePost(h.AsynqClient, queue.DeliverPostPayload{PostID: result.Post.ID}, delay); err != nil {
			slog.Error("failed to enqueue delivery task", "post_id", result.Post.ID, "error", err.Error())
		}
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *DeliveryHandler) ListPosts(c *fiber.Ctx) error {
	posts, err := h.s.List(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to list scheduled posts",
		})
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *DeliveryHandler) CancelPost(c *fiber.Ctx) error {
	postID := c.Params("id")
	if postID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "post id is required",
		})
	}

	if err := h.s.Cancel(c.Context(), postID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post cancelled",
	})
}

func (h *DeliveryHandler) ReschedulePost(c *fiber.Ctx) error {
	postID := c.Params("id")
	var req transfer.RescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.Reschedule(c.Context(), postID, &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post rescheduled",
	})
}

func (h *DeliveryHandler) ListProviderJobs(c *fiber.Ctx) error {
	jobs, err := h.s.ProviderJobs(c.Context())
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(jobs)
}
