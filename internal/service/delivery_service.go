package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/repository"
	"github.com/leaderflow/delivery/internal/transfer"
)

type DeliveryService interface {
	// SchedulePost persists an approved post, trying the external publisher
	// first and falling back to direct delivery when it is unconfigured or
	// rejects the submission.
	SchedulePost(ctx context.Context, req *transfer.SchedulePostRequest) (*transfer.SchedulePostResult, error)

	// DeliverDirect fans a due direct-path post out to its platform adapters
	// and resolves it to a terminal state. Safe to call from both the queue
	// worker and the reconciliation tick: it re-checks the post is still
	// pending, direct-path, and due before touching any platform.
	DeliverDirect(ctx context.Context, postID string) error

	List(ctx context.Context) ([]*models.ScheduledPost, error)
	Cancel(ctx context.Context, postID string) error
	Reschedule(ctx context.Context, postID string, req *transfer.RescheduleRequest) error
	ProviderJobs(ctx context.Context) ([]*transfer.UploadPostJob, error)
}

type deliveryService struct {
	posts    repository.ScheduledPostRepository
	external UploadPostService
	creds    CredentialService
	adapters map[string]PlatformService
}

func NewDeliveryService(
	posts repository.ScheduledPostRepository,
	external UploadPostService,
	creds CredentialService,
	adapters map[string]PlatformService) DeliveryService {
	return &deliveryService{
		posts:    posts,
		external: external,
		creds:    creds,
		adapters: adapters,
	}
}

func (s *deliveryService) SchedulePost(ctx context.Context, req *transfer.SchedulePostRequest) (*transfer.SchedulePostResult, error) {
	if req.Content.ImageURL == "" {
		return nil, &ValidationError{Message: "Image URL is required for scheduling."}
	}
	platforms := dedupePlatforms(req.Platforms)
	if len(platforms) == 0 {
		return nil, &ValidationError{Message: "at least one target platform is required"}
	}

	var externalJobID string
	if s.external.Configured() {
		resp, err := s.external.CreateScheduledPost(ctx, req.Content, platforms, req.ScheduledTime)
		switch {
		case err == nil && resp.Success && resp.JobID != "":
			externalJobID = resp.JobID
			slog.Info("scheduled with external publisher", "job_id", externalJobID)
		case err != nil:
			var ve *ValidationError
			if errors.As(err, &ve) {
				return nil, err
			}
			slog.Warn("external publisher rejected post, falling back to direct delivery",
				"error", err.Error())
		default:
			slog.Warn("external publisher returned no job id, falling back to direct delivery")
		}
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	post := &models.ScheduledPost{
		ID:            id,
		Content:       req.Content,
		Platforms:     platforms,
		ScheduledTime: req.ScheduledTime,
		Status:        models.PostStatusPending,
		ExternalJobID: externalJobID,
		BrandID:       req.BrandID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to persist scheduled post: %w", err)
	}

	return &transfer.SchedulePostResult{Success: true, Post: post}, nil
}

func (s *deliveryService) DeliverDirect(ctx context.Context, postID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		slog.Info("direct delivery skipped, post no longer exists", "post_id", postID)
		return nil
	}
	// External-path posts are polled, never posted directly; terminal posts
	// never re-run.
	if post.IsTerminal() || post.IsExternal() {
		return nil
	}
	if post.ScheduledTime.After(time.Now()) {
		return nil
	}

	// Claim the row before touching any adapter. The queue worker and the
	// reconciliation tick both dispatch; only the claimant may post.
	claimed, err := s.posts.Claim(ctx, post.ID)
	if err != nil {
		return err
	}
	if !claimed {
		slog.Info("direct delivery skipped, post claimed by another dispatcher", "post_id", post.ID)
		return nil
	}

	var errs []string
	for _, platform := range post.Platforms {
		if err := s.postToPlatform(ctx, post, platform); err != nil {
			slog.Info("platform delivery failed",
				"post_id", post.ID, "platform", platform, "error", err.Error())
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return s.posts.SetTerminalStatus(ctx, post.ID, models.PostStatusFailed, strings.Join(errs, "; "))
	}
	return s.posts.SetTerminalStatus(ctx, post.ID, models.PostStatusSuccess, "")
}

func (s *deliveryService) postToPlatform(ctx context.Context, post *models.ScheduledPost, platform string) error {
	adapter, ok := s.adapters[platform]
	if !ok {
		return &PlatformError{Platform: platform, Err: fmt.Errorf("no direct adapter for platform")}
	}

	cred, err := s.creds.Resolve(ctx, post.BrandID, platform)
	if err != nil {
		return &PlatformError{Platform: platform, Err: err}
	}

	return adapter.Post(ctx, post.Content, cred)
}

func (s *deliveryService) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	return s.posts.List(ctx)
}

// Cancel resolves a pending post to failed before the loop observes it,
// cancelling the external job when one exists.
func (s *deliveryService) Cancel(ctx context.Context, postID string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %s not found", postID)
	}
	// A claimed post is mid-delivery and can no longer be called off.
	if post.Status != models.PostStatusPending {
		return fmt.Errorf("post %s already resolved to %s", postID, post.Status)
	}

	if post.IsExternal() && s.external.Configured() {
		if err := s.external.CancelScheduledPost(ctx, post.ExternalJobID); err != nil {
			var pe *ProviderError
			// A job the provider no longer knows is already gone.
			if !errors.As(err, &pe) || pe.StatusCode != 404 {
				return err
			}
		}
	}

	return s.posts.SetTerminalStatus(ctx, postID, models.PostStatusFailed, "cancelled by user")
}

func (s *deliveryService) Reschedule(ctx context.Context, postID string, req *transfer.RescheduleRequest) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %s not found", postID)
	}
	if post.Status != models.PostStatusPending {
		return fmt.Errorf("post %s already resolved to %s", postID, post.Status)
	}

	if post.IsExternal() && s.external.Configured() {
		if _, err := s.external.UpdateScheduledPost(ctx, post.ExternalJobID, req); err != nil {
			return err
		}
	}

	if req.ScheduledTime != nil {
		return s.posts.SetScheduledTime(ctx, postID, *req.ScheduledTime)
	}
	return nil
}

func (s *deliveryService) ProviderJobs(ctx context.Context) ([]*transfer.UploadPostJob, error) {
	return s.external.ListScheduledPosts(ctx)
}

// dedupePlatforms drops duplicates while keeping first-seen order.
func dedupePlatforms(platforms []string) []string {
	seen := make(map[string]struct{}, len(platforms))
	out := make([]string, 0, len(platforms))
	for _, p := range platforms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
