// Package syncer reconciles the local optimistic cache with the remote store.
//
// The policy is last-write-wins on the lastUpdated stamp: concurrent edits of
// the same user from two devices are not merged.
package syncer

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrSyncFailure is returned when the remote write failed and only the local copy holds the change
var ErrSyncFailure = engine.ErrSyncFailure

// Source names where a loaded document came from
type Source string

const (
	SourceNone   Source = "none"
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// Reconciler coordinates a local and a remote ProgressStore
type Reconciler struct {
	local  ProgressStore
	remote ProgressStore
	logger *zap.Logger

	mu         sync.Mutex
	lastSynced map[uuid.UUID]int64
}

// NewReconciler creates a reconciler. If remote implements Pusher, Push uses it.
func NewReconciler(local, remote ProgressStore, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		local:      local,
		remote:     remote,
		logger:     logger,
		lastSynced: make(map[uuid.UUID]int64),
	}
}

// Load returns the newer of the local and remote documents by lastUpdated; a tie
// goes to the remote. When the remote is unreachable the local copy is used.
func (r *Reconciler) Load(ctx context.Context, userID uuid.UUID) (*models.ProgressDocument, Source, error) {
	localDoc, localErr := r.local.Load(ctx, userID)
	if localErr != nil {
		r.logger.Warn("local_progress_unreadable", zap.String("user_id", userID.String()), zap.Error(localErr))
		localDoc = nil
	}

	remoteDoc, remoteErr := r.remote.Load(ctx, userID)
	if remoteErr != nil {
		if localDoc != nil {
			r.logger.Warn("remote_progress_unreachable", zap.String("user_id", userID.String()), zap.Error(remoteErr))
			return localDoc, SourceLocal, nil
		}
		return nil, SourceNone, fmt.Errorf("%w: %w", ErrSyncFailure, remoteErr)
	}

	switch {
	case localDoc == nil && remoteDoc == nil:
		return nil, SourceNone, nil
	case remoteDoc == nil || (localDoc != nil && localDoc.LastUpdated > remoteDoc.LastUpdated):
		return localDoc, SourceLocal, nil
	}

	r.markSynced(userID, remoteDoc.LastUpdated)
	if err := r.local.Save(ctx, userID, remoteDoc); err != nil {
		r.logger.Warn("local_progress_write_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
	return remoteDoc, SourceRemote, nil
}

// SaveLocal writes doc to the local store only
func (r *Reconciler) SaveLocal(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument) error {
	if err := r.local.Save(ctx, userID, doc); err != nil {
		return fmt.Errorf("failed to save progress locally: %w", err)
	}
	return nil
}

// Sync writes doc to the remote store unless its lastUpdated equals the last
// successfully synced stamp. It reports whether a remote write happened.
func (r *Reconciler) Sync(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument) (bool, error) {
	if r.IsSynced(userID, doc.LastUpdated) {
		return false, nil
	}
	if err := r.remote.Save(ctx, userID, doc); err != nil {
		return false, fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	r.markSynced(userID, doc.LastUpdated)
	return true, nil
}

// Push writes an explicit multi-path update in one atomic remote call. doc is the
// state the update produces and is recorded as synced on success.
func (r *Reconciler) Push(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument, updates map[string]any) error {
	pusher, ok := r.remote.(Pusher)
	if !ok {
		_, err := r.Sync(ctx, userID, doc)
		return err
	}
	if err := pusher.Push(ctx, updates); err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailure, err)
	}
	r.markSynced(userID, doc.LastUpdated)
	return nil
}

// IsSynced reports whether stamp is the last stamp written to the remote store
func (r *Reconciler) IsSynced(userID uuid.UUID, stamp int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastSynced[userID]
	return ok && last == stamp
}

// Forget drops the synced stamp for a user, forcing the next Sync to write
func (r *Reconciler) Forget(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastSynced, userID)
}

func (r *Reconciler) markSynced(userID uuid.UUID, stamp int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSynced[userID] = stamp
}

func sortArchives(archives []models.WeekArchive) {
	sort.Slice(archives, func(i, j int) bool { return archives[i].WeekNumber < archives[j].WeekNumber })
}
