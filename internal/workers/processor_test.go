package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benvon/questlog/internal/cache"
	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/queue"
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/syncer"
	"github.com/benvon/questlog/internal/tracker"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var processorNow = time.Date(2026, 3, 9, 0, 5, 0, 0, time.UTC)

func processorCatalog() *models.Catalog {
	return &models.Catalog{
		Tasks: []models.TaskTemplate{
			{ID: "1", Category: models.CategoryTask, Name: "Read", PointValue: 10, NumberLimit: 4},
		},
	}
}

// downTree fails every write while down is set
type downTree struct {
	store.Tree
	mu   sync.Mutex
	down bool
}

func (d *downTree) setDown(down bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.down = down
}

func (d *downTree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	d.mu.Lock()
	down := d.down
	d.mu.Unlock()
	if down {
		return nil, errors.New("network unreachable")
	}
	return d.Tree.Get(ctx, path)
}

func (d *downTree) Update(ctx context.Context, updates map[string]any) error {
	d.mu.Lock()
	down := d.down
	d.mu.Unlock()
	if down {
		return errors.New("network unreachable")
	}
	return d.Tree.Update(ctx, updates)
}

type processorFixture struct {
	tree      *downTree
	remote    *syncer.RemoteStore
	manager   *tracker.Manager
	markers   *cache.MemoryCache
	jobQueue  *mockJobQueue
	processor *BoundaryProcessor
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	tree := &downTree{Tree: store.NewMemoryTree()}
	remote := syncer.NewRemoteStore(tree)
	reconciler := syncer.NewReconciler(syncer.NewLocalStore(cache.NewMemoryCache()), remote, zap.NewNop())
	eng := engine.New(processorCatalog(), engine.WithClock(func() time.Time { return processorNow }))
	manager := tracker.NewManager(eng, reconciler, tracker.WithLogger(zap.NewNop()))
	markers := cache.NewMemoryCache()
	jobQueue := &mockJobQueue{}
	return &processorFixture{
		tree:      tree,
		remote:    remote,
		manager:   manager,
		markers:   markers,
		jobQueue:  jobQueue,
		processor: NewBoundaryProcessor(manager, markers, jobQueue, zap.NewNop()),
	}
}

// seed stores a user who completed Read twice last week
func (f *processorFixture) seed(t *testing.T, userID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	s, err := f.manager.Session(ctx, userID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if _, err := s.Complete(ctx, "1", 1); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, err := s.Complete(ctx, "1", 1); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := f.manager.Evict(ctx, userID); err != nil {
		t.Fatalf("Evict() error = %v", err)
	}
}

func dueJob(jobType queue.JobType, userID uuid.UUID) *queue.Job {
	return queue.NewBoundaryJob(jobType, userID, time.Now().Add(-time.Minute), time.Hour)
}

func TestBoundaryProcessor_WeeklyBoundary(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t)
	userID := uuid.New()
	f.seed(t, userID)

	msg := &mockMessage{job: dueJob(queue.JobTypeWeeklyBoundary, userID)}
	if err := f.processor.ProcessJob(ctx, msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected message to be acked")
	}

	archives, err := f.remote.Archives(ctx, userID)
	if err != nil {
		t.Fatalf("Archives() error = %v", err)
	}
	if len(archives) != 1 {
		t.Fatalf("Expected 1 archive, got %d", len(archives))
	}
	if archives[0].OverallPerformance != 50 {
		t.Errorf("Expected 50%% performance, got %v", archives[0].OverallPerformance)
	}

	doc, err := f.remote.Load(ctx, userID)
	if err != nil || doc == nil {
		t.Fatalf("Load() = %v, %v", doc, err)
	}
	if doc.Points == nil || doc.Points.Current != 0 {
		t.Errorf("Expected weekly points reset, got %+v", doc.Points)
	}
	if doc.WeekCount != 2 {
		t.Errorf("Expected week count 2, got %d", doc.WeekCount)
	}
	if users := f.manager.Users(); len(users) != 0 {
		t.Errorf("Expected the session to be evicted, got %v", users)
	}
}

func TestBoundaryProcessor_DuplicateIsSkipped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t)
	userID := uuid.New()
	f.seed(t, userID)

	job := dueJob(queue.JobTypeWeeklyBoundary, userID)
	if err := f.processor.ProcessJob(ctx, &mockMessage{job: job}); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	redelivered := *job
	msg := &mockMessage{job: &redelivered}
	if err := f.processor.ProcessJob(ctx, msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected duplicate to be acked")
	}

	archives, err := f.remote.Archives(ctx, userID)
	if err != nil {
		t.Fatalf("Archives() error = %v", err)
	}
	if len(archives) != 1 {
		t.Errorf("Expected the week to be archived once, got %d archives", len(archives))
	}
}

func TestBoundaryProcessor_DailyAndMonthly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t)
	userID := uuid.New()
	f.seed(t, userID)

	for _, jobType := range []queue.JobType{queue.JobTypeDailyBoundary, queue.JobTypeMonthlyBoundary} {
		msg := &mockMessage{job: dueJob(jobType, userID)}
		if err := f.processor.ProcessJob(ctx, msg); err != nil {
			t.Fatalf("ProcessJob(%s) error = %v", jobType, err)
		}
		if !msg.acked {
			t.Errorf("Expected %s message to be acked", jobType)
		}
	}

	doc, err := f.remote.Load(ctx, userID)
	if err != nil || doc == nil {
		t.Fatalf("Load() = %v, %v", doc, err)
	}
	if doc.MonthlyPoints == nil || doc.MonthlyPoints.Current != 0 {
		t.Errorf("Expected monthly points reset, got %+v", doc.MonthlyPoints)
	}
	if doc.Points == nil || doc.Points.Current != 20 {
		t.Errorf("Expected weekly points to survive, got %+v", doc.Points)
	}
}

func TestBoundaryProcessor_WeeklySyncFailureKeepsSession(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t)
	userID := uuid.New()
	f.seed(t, userID)

	// Load the session while the store is reachable, then lose the connection
	if _, err := f.manager.Session(ctx, userID); err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	f.tree.setDown(true)

	msg := &mockMessage{job: dueJob(queue.JobTypeWeeklyBoundary, userID)}
	if err := f.processor.ProcessJob(ctx, msg); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if !msg.acked {
		t.Error("Expected the boundary to be acked once applied locally")
	}
	if len(f.jobQueue.jobs()) != 0 {
		t.Error("Expected no retry for a boundary already applied")
	}

	s, err := f.manager.Session(ctx, userID)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s.PendingArchives() != 1 {
		t.Errorf("Expected 1 pending archive, got %d", s.PendingArchives())
	}

	f.tree.setDown(false)
	if err := f.manager.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll() error = %v", err)
	}
	archives, err := f.remote.Archives(ctx, userID)
	if err != nil {
		t.Fatalf("Archives() error = %v", err)
	}
	if len(archives) != 1 {
		t.Errorf("Expected the pending archive to be pushed, got %d", len(archives))
	}
}

func TestBoundaryProcessor_LoadFailureIsRetried(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newProcessorFixture(t)
	f.tree.setDown(true)

	job := dueJob(queue.JobTypeDailyBoundary, uuid.New())
	msg := &mockMessage{job: job}
	if err := f.processor.ProcessJob(ctx, msg); err == nil {
		t.Fatal("Expected an error when the user cannot be loaded")
	}
	if !msg.acked {
		t.Error("Expected the failed delivery to be acked before re-enqueueing")
	}

	jobs := f.jobQueue.jobs()
	if len(jobs) != 1 {
		t.Fatalf("Expected 1 re-enqueued job, got %d", len(jobs))
	}
	retry := jobs[0]
	if retry.ID != job.ID || retry.RetryCount != 1 {
		t.Errorf("Expected the same job with retry count 1, got %s retry %d", retry.ID, retry.RetryCount)
	}
	if retry.NotBefore == nil || !retry.NotBefore.After(time.Now()) {
		t.Errorf("Expected a delayed retry, got %v", retry.NotBefore)
	}
	if !retry.Boundary.Equal(job.Boundary) {
		t.Errorf("Expected boundary %v to be kept, got %v", job.Boundary, retry.Boundary)
	}
}

func TestBoundaryProcessor_MaxRetriesGoToDLQ(t *testing.T) {
	t.Parallel()

	f := newProcessorFixture(t)
	f.tree.setDown(true)

	job := dueJob(queue.JobTypeDailyBoundary, uuid.New())
	job.RetryCount = job.MaxRetries
	msg := &mockMessage{job: job}
	if err := f.processor.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("Expected an error")
	}
	if !msg.nacked || msg.requeued {
		t.Errorf("Expected nack without requeue, got nacked=%v requeued=%v", msg.nacked, msg.requeued)
	}
	if len(f.jobQueue.jobs()) != 0 {
		t.Error("Expected no re-enqueue after the last retry")
	}
}

func TestBoundaryProcessor_MessageRouting(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	tests := []struct {
		name         string
		job          *queue.Job
		wantErr      bool
		wantAcked    bool
		wantRequeued bool
		wantNacked   bool
	}{
		{
			name:       "unknown type goes to DLQ",
			job:        &queue.Job{ID: uuid.New(), Type: "reprocess_user", UserID: userID},
			wantErr:    true,
			wantNacked: true,
		},
		{
			name:      "expired job is dropped",
			job:       &queue.Job{ID: uuid.New(), Type: queue.JobTypeDailyBoundary, UserID: userID, NotAfter: &past},
			wantAcked: true,
		},
		{
			name:         "early job is requeued",
			job:          &queue.Job{ID: uuid.New(), Type: queue.JobTypeDailyBoundary, UserID: userID, NotBefore: &future},
			wantNacked:   true,
			wantRequeued: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newProcessorFixture(t)
			msg := &mockMessage{job: tt.job}
			err := f.processor.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acked != tt.wantAcked {
				t.Errorf("Expected acked=%v, got %v", tt.wantAcked, msg.acked)
			}
			if msg.nacked != tt.wantNacked {
				t.Errorf("Expected nacked=%v, got %v", tt.wantNacked, msg.nacked)
			}
			if msg.requeued != tt.wantRequeued {
				t.Errorf("Expected requeued=%v, got %v", tt.wantRequeued, msg.requeued)
			}
		})
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{3, 4 * time.Minute},
		{10, 15 * time.Minute},
	}
	for _, tt := range tests {
		if got := retryDelay(tt.attempt); got != tt.want {
			t.Errorf("retryDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
