package syncer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benvon/questlog/internal/cache"
	"github.com/benvon/questlog/internal/models"
	"github.com/benvon/questlog/internal/store"
	"github.com/google/uuid"
)

// ProgressStore loads and saves a user's progress document. Load returns nil
// without error when the user has nothing stored.
type ProgressStore interface {
	Load(ctx context.Context, userID uuid.UUID) (*models.ProgressDocument, error)
	Save(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument) error
}

// Pusher writes an explicit multi-path update atomically
type Pusher interface {
	Push(ctx context.Context, updates map[string]any) error
}

// ProgressKey is the cache key holding the serialized progress document
const ProgressKey = "progress"

// LocalStore keeps the document as one JSON string in the per-user cache
type LocalStore struct {
	cache cache.Cache
}

// NewLocalStore creates a store over c
func NewLocalStore(c cache.Cache) *LocalStore {
	return &LocalStore{cache: c}
}

func (l *LocalStore) Load(ctx context.Context, userID uuid.UUID) (*models.ProgressDocument, error) {
	raw, ok, err := l.cache.GetItem(ctx, userID, ProgressKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var doc models.ProgressDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode cached progress: %w", err)
	}
	return &doc, nil
}

func (l *LocalStore) Save(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	return l.cache.SetItem(ctx, userID, ProgressKey, string(raw))
}

// RemoteStore keeps the document in the shared tree under users/{uid}
type RemoteStore struct {
	tree store.Tree
}

// NewRemoteStore creates a store over tree
func NewRemoteStore(tree store.Tree) *RemoteStore {
	return &RemoteStore{tree: tree}
}

func (r *RemoteStore) Load(ctx context.Context, userID uuid.UUID) (*models.ProgressDocument, error) {
	var doc models.ProgressDocument
	found, err := store.Decode(ctx, r.tree, store.UserPath(userID), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &doc, nil
}

// Save writes every field of doc in a single multi-path update
func (r *RemoteStore) Save(ctx context.Context, userID uuid.UUID, doc *models.ProgressDocument) error {
	return r.tree.Update(ctx, store.DocumentUpdates(userID, doc))
}

func (r *RemoteStore) Push(ctx context.Context, updates map[string]any) error {
	return r.tree.Update(ctx, updates)
}

// Archives lists a user's week archives in week order
func (r *RemoteStore) Archives(ctx context.Context, userID uuid.UUID) ([]models.WeekArchive, error) {
	var byWeek map[string]models.WeekArchive
	if _, err := store.Decode(ctx, r.tree, store.UserPath(userID, "weekArchives"), &byWeek); err != nil {
		return nil, err
	}
	archives := make([]models.WeekArchive, 0, len(byWeek))
	for _, a := range byWeek {
		archives = append(archives, a)
	}
	sortArchives(archives)
	return archives, nil
}

var (
	_ ProgressStore = (*LocalStore)(nil)
	_ ProgressStore = (*RemoteStore)(nil)
	_ Pusher        = (*RemoteStore)(nil)
)
