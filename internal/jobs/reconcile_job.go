package job

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron"

	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/repository"
	"github.com/leaderflow/delivery/internal/service"
)

// ReconcileJob is the recurring sweep that advances pending posts toward a
// terminal state: external-path posts by polling the publisher, direct-path
// posts by dispatching platform adapters once due. A tick that fires while the
// previous one is still working is skipped.
type ReconcileJob struct {
	posts    repository.ScheduledPostRepository
	external service.UploadPostService
	delivery service.DeliveryService

	mu      sync.Mutex
	cron    *cron.Cron
	running bool

	tickMu sync.Mutex
}

func NewReconcileJob(
	posts repository.ScheduledPostRepository,
	external service.UploadPostService,
	delivery service.DeliveryService) *ReconcileJob {
	return &ReconcileJob{
		posts:    posts,
		external: external,
		delivery: delivery,
	}
}

// Start schedules the reconciliation tick every minute. Idempotent: the
// hosting process owns exactly one running instance no matter how many times
// it calls Start.
func (j *ReconcileJob) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return
	}

	log.Println("Starting the reconciliation poller...")
	j.cron = cron.New()
	j.cron.AddFunc("@every 0h1m0s", j.Run)
	j.cron.Start()
	j.running = true

	go j.Run()
}

func (j *ReconcileJob) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	j.cron.Stop()
	j.running = false
}

// Run executes one reconciliation tick. Failures are logged per post; nothing
// a single post does can abort the sweep or unschedule the next tick. The
// scheduler fires each tick in its own goroutine, so a tick that finds the
// previous one still working skips instead of overlapping it.
func (j *ReconcileJob) Run() {
	if !j.tickMu.TryLock() {
		slog.Info("reconciliation tick skipped, previous tick still running")
		return
	}
	defer j.tickMu.Unlock()

	ctx := context.Background()

	pending, err := j.posts.ListPending(ctx)
	if err != nil {
		slog.Error("reconciliation tick could not load pending posts", "error", err.Error())
		return
	}
	if len(pending) == 0 {
		return
	}

	var external, direct []*models.ScheduledPost
	for _, post := range pending {
		if post.IsExternal() {
			external = append(external, post)
		} else {
			direct = append(direct, post)
		}
	}

	if len(external) > 0 && j.external.Configured() {
		j.reconcileExternal(ctx, external)
	}

	now := time.Now()
	for _, post := range direct {
		if post.ScheduledTime.After(now) {
			continue
		}
		if err := j.delivery.DeliverDirect(ctx, post.ID); err != nil {
			slog.Error("direct delivery failed during tick",
				"post_id", post.ID, "error", err.Error())
		}
	}
}

func (j *ReconcileJob) reconcileExternal(ctx context.Context, posts []*models.ScheduledPost) {
	for _, post := range posts {
		statusData, err := j.external.GetJobStatus(ctx, post.ExternalJobID)
		if err != nil {
			slog.Error("failed to check external job status",
				"job_id", post.ExternalJobID, "error", err.Error())
			continue
		}

		switch strings.ToLower(statusData.Status) {
		case "published", "completed", "success":
			if err := j.posts.SetTerminalStatus(ctx, post.ID, models.PostStatusSuccess, ""); err != nil {
				slog.Error(err.Error())
				continue
			}
			slog.Info("external job completed", "job_id", post.ExternalJobID)
		case "failed", "error":
			errMsg := statusData.Error
			if errMsg == "" {
				errMsg = "external job failed"
			}
			if err := j.posts.SetTerminalStatus(ctx, post.ID, models.PostStatusFailed, errMsg); err != nil {
				slog.Error(err.Error())
				continue
			}
			slog.Info("external job failed", "job_id", post.ExternalJobID, "error", errMsg)
		default:
			// Still in flight; the next tick will look again.
		}
	}
}
