package workers

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benvon/questlog/internal/queue"
	"github.com/google/uuid"
)

// mockJobQueue is a mock implementation of JobQueue that records enqueued jobs
type mockJobQueue struct {
	mu          sync.Mutex
	enqueued    []*queue.Job
	enqueueFunc func(ctx context.Context, job *queue.Job) error
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	if m.enqueueFunc != nil {
		if err := m.enqueueFunc(ctx, job); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(ctx context.Context, prefetchCount int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockJobQueue) Close() error {
	return nil
}

func (m *mockJobQueue) HealthCheck(ctx context.Context) error {
	return nil
}

func (m *mockJobQueue) jobs() []*queue.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*queue.Job(nil), m.enqueued...)
}

// Ensure mock implements interface
var _ queue.JobQueue = (*mockJobQueue)(nil)

// mockUserLister is a mock implementation of UserLister with optional pausing
type mockUserLister struct {
	listActiveFunc    func(ctx context.Context) ([]uuid.UUID, error)
	pauseInactiveFunc func(ctx context.Context, idle time.Duration) (int64, error)
}

func (m *mockUserLister) ListActive(ctx context.Context) ([]uuid.UUID, error) {
	if m.listActiveFunc != nil {
		return m.listActiveFunc(ctx)
	}
	return []uuid.UUID{}, nil
}

func (m *mockUserLister) PauseInactive(ctx context.Context, idle time.Duration) (int64, error) {
	if m.pauseInactiveFunc != nil {
		return m.pauseInactiveFunc(ctx, idle)
	}
	return 0, nil
}

var (
	_ UserLister     = (*mockUserLister)(nil)
	_ inactivePauser = (*mockUserLister)(nil)
)

// mockMessage is a mock implementation of MessageInterface
type mockMessage struct {
	job      *queue.Job
	acked    bool
	nacked   bool
	requeued bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeued = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

var _ queue.MessageInterface = (*mockMessage)(nil)
