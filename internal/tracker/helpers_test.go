package tracker

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
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/syncer"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func testCatalog() *models.Catalog {
	return &models.Catalog{
		Tasks: []models.TaskTemplate{
			{ID: "1", Category: models.CategoryTask, Name: "Read", PointValue: 10, NumberLimit: 2},
			{ID: "2", Category: models.CategoryTask, Name: "Run", PointValue: 20, NumberLimit: 10, HasTimesOption: true},
		},
		Achievements: []models.AchievementDef{
			{ID: "read-2", Name: "Reader", TaskID: "1", Target: 2, Category: models.AchievementAdvanced},
		},
		Ranks: []models.RankTier{
			{Level: 1, Name: "Bronze", XPToNext: 100},
			{Level: 2, Name: "Silver", XPToNext: 200},
		},
		RankedTasks: []models.RankedTaskDef{
			{
				ID:       "r1",
				Category: models.CategoryTask,
				Levels: []models.LevelDef{
					{Name: "Walk", XPValue: 60, RequiredCompletionsForNextLevelUpgrade: 2},
					{Name: "Jog", XPValue: 80},
				},
			},
		},
	}
}

// flakyTree fails reads and writes while down is set
type flakyTree struct {
	store.Tree
	mu   sync.Mutex
	down bool
}

func (f *flakyTree) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *flakyTree) isDown() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

func (f *flakyTree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if f.isDown() {
		return nil, errors.New("network unreachable")
	}
	return f.Tree.Get(ctx, path)
}

func (f *flakyTree) Update(ctx context.Context, updates map[string]any) error {
	if f.isDown() {
		return errors.New("network unreachable")
	}
	return f.Tree.Update(ctx, updates)
}

var _ store.Tree = (*flakyTree)(nil)

// recordingNotifier keeps every notification
type recordingNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) kinds() []NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NotificationKind, 0, len(r.items))
	for _, n := range r.items {
		out = append(out, n.Kind)
	}
	return out
}

func (r *recordingNotifier) has(kind NotificationKind) bool {
	for _, k := range r.kinds() {
		if k == kind {
			return true
		}
	}
	return false
}

// message returns the text of the last notification of a kind
func (r *recordingNotifier) message(kind NotificationKind) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.items) - 1; i >= 0; i-- {
		if r.items[i].Kind == kind {
			return r.items[i].Message
		}
	}
	return ""
}

var _ Notifier = (*recordingNotifier)(nil)

// staticProvider serves a fixed catalog
type staticProvider struct {
	catalog *models.Catalog
}

func (p staticProvider) Load(ctx context.Context) (*models.Catalog, error) {
	return p.catalog, nil
}

type fixture struct {
	tree       *flakyTree
	local      *syncer.LocalStore
	remote     *syncer.RemoteStore
	reconciler *syncer.Reconciler
	notifier   *recordingNotifier
	manager    *Manager
}

func newFixture(t *testing.T, opts ...ManagerOption) *fixture {
	t.Helper()
	return newFixtureOver(t, store.NewMemoryTree(), opts...)
}

// newFixtureOver builds the fixture on top of a given remote tree
func newFixtureOver(t *testing.T, base store.Tree, opts ...ManagerOption) *fixture {
	t.Helper()
	tree := &flakyTree{Tree: base}
	local := syncer.NewLocalStore(cache.NewMemoryCache())
	remote := syncer.NewRemoteStore(tree)
	reconciler := syncer.NewReconciler(local, remote, zap.NewNop())
	notifier := &recordingNotifier{}
	eng := engine.New(testCatalog(), engine.WithClock(func() time.Time { return fixedNow }))

	opts = append([]ManagerOption{WithNotifier(notifier), WithLogger(zap.NewNop())}, opts...)
	return &fixture{
		tree:       tree,
		local:      local,
		remote:     remote,
		reconciler: reconciler,
		notifier:   notifier,
		manager:    NewManager(eng, reconciler, opts...),
	}
}

func progressOf(t *testing.T, st *models.UserProgressState, taskID string) models.TaskProgress {
	t.Helper()
	idx := st.TaskIndex(taskID)
	if idx < 0 {
		t.Fatalf("task %s not in working list", taskID)
	}
	return st.Tasks[idx].Progress
}

// gatedTree holds every Update until release is closed and records how many were in flight at once
type gatedTree struct {
	store.Tree
	arrived chan struct{}
	release chan struct{}

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func newGatedTree(tree store.Tree) *gatedTree {
	return &gatedTree{Tree: tree, arrived: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gatedTree) Update(ctx context.Context, updates map[string]any) error {
	g.mu.Lock()
	g.inFlight++
	if g.inFlight > g.maxInFlight {
		g.maxInFlight = g.inFlight
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	g.arrived <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.Tree.Update(ctx, updates)
}

func (g *gatedTree) peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.maxInFlight
}

var _ store.Tree = (*gatedTree)(nil)
