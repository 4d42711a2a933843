package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/benvon/questlog/internal/cache"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// flakyTree fails every call while down is set
type flakyTree struct {
	store.Tree
	down bool
}

func (f *flakyTree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	return f.Tree.Get(ctx, path)
}

func (f *flakyTree) Update(ctx context.Context, updates map[string]any) error {
	if f.down {
		return errors.New("connection refused")
	}
	return f.Tree.Update(ctx, updates)
}

var _ store.Tree = (*flakyTree)(nil)

func doc(stamp int64, current float64) *models.ProgressDocument {
	return &models.ProgressDocument{
		Tasks:         json.RawMessage(`{"1":{"taskId":"1","completionCount":1}}`),
		Points:        &models.PointsBalance{Current: current, Total: 100},
		MonthlyPoints: &models.PointsBalance{Current: current, Total: 400},
		XP:            &models.AccountXP{Level: 1},
		WeekCount:     1,
		LastUpdated:   stamp,
	}
}

func newDevice(tree store.Tree) (*Reconciler, *LocalStore) {
	local := NewLocalStore(cache.NewMemoryCache())
	return NewReconciler(local, NewRemoteStore(tree), zap.NewNop()), local
}

func TestReconciler_LoadPicksNewer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		localStamp  int64
		remoteStamp int64
		want        Source
		wantCurrent float64
	}{
		{name: "local newer", localStamp: 20, remoteStamp: 10, want: SourceLocal, wantCurrent: 2},
		{name: "remote newer", localStamp: 10, remoteStamp: 20, want: SourceRemote, wantCurrent: 1},
		{name: "tie goes to remote", localStamp: 10, remoteStamp: 10, want: SourceRemote, wantCurrent: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			uid := uuid.New()
			tree := store.NewMemoryTree()
			r, local := newDevice(tree)

			require.NoError(t, NewRemoteStore(tree).Save(ctx, uid, doc(tt.remoteStamp, 1)))
			require.NoError(t, local.Save(ctx, uid, doc(tt.localStamp, 2)))

			got, src, err := r.Load(ctx, uid)
			require.NoError(t, err)
			assert.Equal(t, tt.want, src)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCurrent, got.Points.Current)
		})
	}
}

func TestReconciler_LoadEmpty(t *testing.T) {
	t.Parallel()

	r, _ := newDevice(store.NewMemoryTree())
	got, src, err := r.Load(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, SourceNone, src)
}

func TestReconciler_LoadRemoteRefreshesLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	tree := store.NewMemoryTree()
	r, local := newDevice(tree)
	require.NoError(t, NewRemoteStore(tree).Save(ctx, uid, doc(50, 7)))

	_, src, err := r.Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.True(t, r.IsSynced(uid, 50))

	cached, err := local.Load(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, int64(50), cached.LastUpdated)
}

func TestReconciler_SyncNoOpWhenUnchanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	r, _ := newDevice(store.NewMemoryTree())

	wrote, err := r.Sync(ctx, uid, doc(10, 1))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = r.Sync(ctx, uid, doc(10, 1))
	require.NoError(t, err)
	assert.False(t, wrote)

	wrote, err = r.Sync(ctx, uid, doc(11, 2))
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestReconciler_SyncFailureKeepsLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	tree := &flakyTree{Tree: store.NewMemoryTree()}
	r, local := newDevice(tree)

	d := doc(30, 5)
	require.NoError(t, r.SaveLocal(ctx, uid, d))

	tree.down = true
	wrote, err := r.Sync(ctx, uid, d)
	assert.False(t, wrote)
	assert.ErrorIs(t, err, ErrSyncFailure)
	assert.False(t, r.IsSynced(uid, 30))

	// the device keeps working from its cache while the remote is down
	got, src, err := r.Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, SourceLocal, src)
	assert.Equal(t, 5.0, got.Points.Current)

	cached, err := local.Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, int64(30), cached.LastUpdated)

	tree.down = false
	wrote, err = r.Sync(ctx, uid, d)
	require.NoError(t, err)
	assert.True(t, wrote)
}

func TestReconciler_LoadFailsWithoutAnyCopy(t *testing.T) {
	t.Parallel()

	tree := &flakyTree{Tree: store.NewMemoryTree(), down: true}
	r, _ := newDevice(tree)

	_, _, err := r.Load(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSyncFailure)
}

func TestReconciler_PushWritesArchiveAtomically(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	tree := store.NewMemoryTree()
	r, _ := newDevice(tree)

	d := doc(40, 0)
	d.WeekCount = 2
	archive := &models.WeekArchive{WeekNumber: 1, OverallPerformance: 33}
	require.NoError(t, r.Push(ctx, uid, d, store.WeeklyBoundaryUpdates(uid, d, archive)))
	assert.True(t, r.IsSynced(uid, 40))

	remote := NewRemoteStore(tree)
	got, err := remote.Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, got.WeekCount)

	archives, err := remote.Archives(ctx, uid)
	require.NoError(t, err)
	require.Len(t, archives, 1)
	assert.Equal(t, 33.0, archives[0].OverallPerformance)
}

// Two devices editing the same user: the later sync overwrites the earlier one
// and the earlier device's edit is lost. This is the accepted last-write-wins policy.
func TestReconciler_LastWriteWinsAcrossDevices(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	tree := store.NewMemoryTree()
	phone, _ := newDevice(tree)
	laptop, _ := newDevice(tree)

	_, err := phone.Sync(ctx, uid, doc(100, 10))
	require.NoError(t, err)
	_, err = laptop.Sync(ctx, uid, doc(101, 25))
	require.NoError(t, err)

	got, err := NewRemoteStore(tree).Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 25.0, got.Points.Current)
	assert.Equal(t, int64(101), got.LastUpdated)

	reloaded, src, err := phone.Load(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, src)
	assert.Equal(t, 25.0, reloaded.Points.Current)
}

func TestReconciler_Forget(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	uid := uuid.New()
	r, _ := newDevice(store.NewMemoryTree())

	_, err := r.Sync(ctx, uid, doc(5, 1))
	require.NoError(t, err)
	r.Forget(uid)

	wrote, err := r.Sync(ctx, uid, doc(5, 1))
	require.NoError(t, err)
	assert.True(t, wrote)
}
