package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/leaderflow/delivery/internal/models"
	"github.com/leaderflow/delivery/internal/transfer"
)

// fakePostStore is an in-memory pending-post store with the monotonic
// terminal-status guard the real repository enforces in SQL.
type fakePostStore struct {
	mu    sync.Mutex
	posts map[string]*models.ScheduledPost
}

func newFakePostStore(posts ...*models.ScheduledPost) *fakePostStore {
	s := &fakePostStore{posts: map[string]*models.ScheduledPost{}}
	for _, p := range posts {
		s.posts[p.ID] = p
	}
	return s
}

func (s *fakePostStore) Create(ctx context.Context, post *models.ScheduledPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post
	return nil
}

func (s *fakePostStore) GetByID(ctx context.Context, id string) (*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return nil, nil
	}
	copied := *post
	return &copied, nil
}

func (s *fakePostStore) List(ctx context.Context) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range s.posts {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (s *fakePostStore) ListPending(ctx context.Context) ([]*models.ScheduledPost, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ScheduledPost
	for _, p := range s.posts {
		if p.Status == models.PostStatusPending {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *fakePostStore) Claim(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok || post.Status != models.PostStatusPending {
		return false, nil
	}
	post.Status = models.PostStatusProcessing
	return true, nil
}

func (s *fakePostStore) SetTerminalStatus(ctx context.Context, id, status, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok || (post.Status != models.PostStatusPending && post.Status != models.PostStatusProcessing) {
		return nil
	}
	post.Status = status
	post.Error = errMsg
	return nil
}

func (s *fakePostStore) SetScheduledTime(ctx context.Context, id string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post, ok := s.posts[id]; ok {
		post.ScheduledTime = t
	}
	return nil
}

func (s *fakePostStore) status(id string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.posts[id].Status, s.posts[id].Error
}

// fakePublisher serves scripted job statuses keyed by job id.
type fakePublisher struct {
	mu       sync.Mutex
	statuses map[string]*transfer.UploadPostJobStatus
	errs     map[string]error
	polled   []string
}

func (f *fakePublisher) CreateScheduledPost(ctx context.Context, content models.MediaContent, platforms []string, scheduledTime time.Time) (*transfer.UploadPostResponse, error) {
	return nil, errors.New("not stubbed")
}

func (f *fakePublisher) GetJobStatus(ctx context.Context, jobID string) (*transfer.UploadPostJobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polled = append(f.polled, jobID)
	if err, ok := f.errs[jobID]; ok {
		return nil, err
	}
	if status, ok := f.statuses[jobID]; ok {
		return status, nil
	}
	return &transfer.UploadPostJobStatus{JobID: jobID, Status: "scheduled"}, nil
}

func (f *fakePublisher) ListScheduledPosts(ctx context.Context) ([]*transfer.UploadPostJob, error) {
	return nil, nil
}

func (f *fakePublisher) CancelScheduledPost(ctx context.Context, jobID string) error { return nil }

func (f *fakePublisher) UpdateScheduledPost(ctx context.Context, jobID string, updates *transfer.RescheduleRequest) (*transfer.UploadPostResponse, error) {
	return nil, errors.New("not stubbed")
}

func (f *fakePublisher) Configured() bool { return true }

// fakeDelivery records which posts the tick dispatched.
type fakeDelivery struct {
	mu        sync.Mutex
	delivered []string
	errs      map[string]error
}

func (d *fakeDelivery) SchedulePost(ctx context.Context, req *transfer.SchedulePostRequest) (*transfer.SchedulePostResult, error) {
	return nil, errors.New("not stubbed")
}

func (d *fakeDelivery) DeliverDirect(ctx context.Context, postID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, postID)
	if err, ok := d.errs[postID]; ok {
		return err
	}
	return nil
}

func (d *fakeDelivery) List(ctx context.Context) ([]*models.ScheduledPost, error) { return nil, nil }

func (d *fakeDelivery) Cancel(ctx context.Context, postID string) error { return nil }

func (d *fakeDelivery) Reschedule(ctx context.Context, postID string, req *transfer.RescheduleRequest) error {
	return nil
}

func (d *fakeDelivery) ProviderJobs(ctx context.Context) ([]*transfer.UploadPostJob, error) {
	return nil, nil
}

func pendingPost(id, jobID string, scheduledTime time.Time) *models.ScheduledPost {
	return &models.ScheduledPost{
		ID:            id,
		Content:       models.MediaContent{Type: "image", ImageURL: "https://cdn.example.com/img.jpg"},
		Platforms:     []string{"twitter"},
		ScheduledTime: scheduledTime,
		Status:        models.PostStatusPending,
		ExternalJobID: jobID,
		BrandID:       "brand-1",
	}
}

func TestRun_PublishedExternalJobResolvesToSuccess(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "job-1", time.Now().Add(-time.Minute)))
	publisher := &fakePublisher{statuses: map[string]*transfer.UploadPostJobStatus{
		"job-1": {JobID: "job-1", Status: "Published"},
	}}
	j := NewReconcileJob(store, publisher, &fakeDelivery{})

	j.Run()

	status, errMsg := store.status("p1")
	assert.Equal(t, models.PostStatusSuccess, status)
	assert.Empty(t, errMsg)
}

func TestRun_FailedExternalJobCarriesProviderError(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "job-1", time.Now().Add(-time.Minute)))
	publisher := &fakePublisher{statuses: map[string]*transfer.UploadPostJobStatus{
		"job-1": {JobID: "job-1", Status: "failed", Error: "platform rejected media"},
	}}
	j := NewReconcileJob(store, publisher, &fakeDelivery{})

	j.Run()

	status, errMsg := store.status("p1")
	assert.Equal(t, models.PostStatusFailed, status)
	assert.Equal(t, "platform rejected media", errMsg)
}

func TestRun_FailedExternalJobWithoutMessageGetsDefault(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "job-1", time.Now().Add(-time.Minute)))
	publisher := &fakePublisher{statuses: map[string]*transfer.UploadPostJobStatus{
		"job-1": {JobID: "job-1", Status: "error"},
	}}
	j := NewReconcileJob(store, publisher, &fakeDelivery{})

	j.Run()

	status, errMsg := store.status("p1")
	assert.Equal(t, models.PostStatusFailed, status)
	assert.Equal(t, "external job failed", errMsg)
}

func TestRun_InFlightExternalJobStaysPending(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "job-1", time.Now().Add(-time.Minute)))
	publisher := &fakePublisher{statuses: map[string]*transfer.UploadPostJobStatus{
		"job-1": {JobID: "job-1", Status: "processing"},
	}}
	j := NewReconcileJob(store, publisher, &fakeDelivery{})

	j.Run()

	status, _ := store.status("p1")
	assert.Equal(t, models.PostStatusPending, status)
}

func TestRun_PollFailureDoesNotBlockOtherPosts(t *testing.T) {
	store := newFakePostStore(
		pendingPost("p1", "job-1", time.Now().Add(-time.Minute)),
		pendingPost("p2", "job-2", time.Now().Add(-time.Minute)),
	)
	publisher := &fakePublisher{
		errs: map[string]error{"job-1": errors.New("provider timeout")},
		statuses: map[string]*transfer.UploadPostJobStatus{
			"job-2": {JobID: "job-2", Status: "completed"},
		},
	}
	j := NewReconcileJob(store, publisher, &fakeDelivery{})

	j.Run()

	status1, _ := store.status("p1")
	status2, _ := store.status("p2")
	assert.Equal(t, models.PostStatusPending, status1)
	assert.Equal(t, models.PostStatusSuccess, status2)
}

func TestRun_ExternalPostsNeverGoThroughAdapters(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "job-1", time.Now().Add(-time.Hour)))
	publisher := &fakePublisher{statuses: map[string]*transfer.UploadPostJobStatus{
		"job-1": {JobID: "job-1", Status: "scheduled"},
	}}
	delivery := &fakeDelivery{}
	j := NewReconcileJob(store, publisher, delivery)

	j.Run()

	assert.Empty(t, delivery.delivered, "external post must be polled, never dispatched directly")
	assert.Equal(t, []string{"job-1"}, publisher.polled)
}

func TestRun_DispatchesOnlyDueDirectPosts(t *testing.T) {
	store := newFakePostStore(
		pendingPost("due", "", time.Now().Add(-time.Minute)),
		pendingPost("future", "", time.Now().Add(time.Hour)),
	)
	delivery := &fakeDelivery{}
	j := NewReconcileJob(store, &fakePublisher{}, delivery)

	j.Run()

	assert.Equal(t, []string{"due"}, delivery.delivered)
}

func TestRun_ResolvedPostsAreNeverRevisited(t *testing.T) {
	done := pendingPost("p1", "", time.Now().Add(-time.Hour))
	done.Status = models.PostStatusFailed
	done.Error = "cancelled by user"
	store := newFakePostStore(done)
	delivery := &fakeDelivery{}
	j := NewReconcileJob(store, &fakePublisher{}, delivery)

	j.Run()

	assert.Empty(t, delivery.delivered)
	status, errMsg := store.status("p1")
	assert.Equal(t, models.PostStatusFailed, status)
	assert.Equal(t, "cancelled by user", errMsg)
}

func TestRun_DeliveryErrorDoesNotAbortTick(t *testing.T) {
	store := newFakePostStore(
		pendingPost("p1", "", time.Now().Add(-2*time.Minute)),
		pendingPost("p2", "", time.Now().Add(-time.Minute)),
	)
	delivery := &fakeDelivery{errs: map[string]error{"p1": errors.New("db write failed")}}
	j := NewReconcileJob(store, &fakePublisher{}, delivery)

	j.Run()

	assert.Len(t, delivery.delivered, 2)
}

// blockingDelivery parks inside DeliverDirect so a tick can be held open.
type blockingDelivery struct {
	fakeDelivery
	entered chan struct{}
	release chan struct{}
}

func (d *blockingDelivery) DeliverDirect(ctx context.Context, postID string) error {
	d.mu.Lock()
	d.delivered = append(d.delivered, postID)
	d.mu.Unlock()
	d.entered <- struct{}{}
	<-d.release
	return nil
}

func TestRun_SkipsTickWhileAnotherIsRunning(t *testing.T) {
	store := newFakePostStore(pendingPost("p1", "", time.Now().Add(-time.Minute)))
	delivery := &blockingDelivery{
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	j := NewReconcileJob(store, &fakePublisher{}, delivery)

	done := make(chan struct{})
	go func() {
		j.Run()
		close(done)
	}()

	<-delivery.entered
	j.Run()

	delivery.mu.Lock()
	dispatched := len(delivery.delivered)
	delivery.mu.Unlock()
	assert.Equal(t, 1, dispatched, "overlapping tick must skip, not dispatch again")

	close(delivery.release)
	<-done
}

func TestStartIsIdempotent(t *testing.T) {
	store := newFakePostStore()
	j := NewReconcileJob(store, &fakePublisher{}, &fakeDelivery{})

	j.Start()
	first := j.cron
	j.Start()
	assert.Same(t, first, j.cron, "second Start must not replace the scheduler")
	j.Stop()

	j.Stop()
	assert.False(t, j.running)
}
