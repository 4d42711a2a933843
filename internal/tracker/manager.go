package tracker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benvon/questlog/internal/catalog"
	"github.com/benvon/questlog/internal/engine"
	"github.com/benvon/questlog/internal/metrics"
	"github.com/benvon/questlog/internal/store"
	"github.com/benvon/questlog/internal/syncer"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager lazily loads one Session per user and keeps them synced
type Manager struct {
	reconciler *syncer.Reconciler
	provider   catalog.Provider
	confirmer  Confirmer
	notifier   Notifier
	logger     *zap.Logger

	mu       sync.Mutex
	engine   *engine.Engine
	sessions map[uuid.UUID]*Session
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithCatalogProvider sets the provider used by ReloadCatalog
func WithCatalogProvider(p catalog.Provider) ManagerOption {
	return func(m *Manager) {
		m.provider = p
	}
}

// WithDefaultConfirmer sets the Confirmer used when the request context carries none
func WithDefaultConfirmer(c Confirmer) ManagerOption {
	return func(m *Manager) {
		m.confirmer = c
	}
}

// WithNotifier sets the notification sink
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a session manager
func NewManager(eng *engine.Engine, reconciler *syncer.Reconciler, opts ...ManagerOption) *Manager {
	m := &Manager{
		reconciler: reconciler,
		logger:     zap.NewNop(),
		engine:     eng,
		sessions:   make(map[uuid.UUID]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}
	return m
}

// Engine returns the engine new sessions are created with
func (m *Manager) Engine() *engine.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine
}

// Session returns the user's session, loading it from the stores on first use
func (m *Manager) Session(ctx context.Context, userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[userID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	eng := m.engine
	m.mu.Unlock()

	doc, source, err := m.reconciler.Load(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	state := eng.Hydrate(userID, doc)

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}
	if m.engine != eng {
		if state, err = m.engine.Rehydrate(state); err != nil {
			return nil, fmt.Errorf("failed to rehydrate progress: %w", err)
		}
	}
	s := NewSession(state, m.engine, m.reconciler, m.confirmer, m.notifier, m.logger)
	m.sessions[userID] = s
	metrics.UpdateActiveSessions(len(m.sessions))
	m.logger.Info("session_loaded",
		zap.String("user_id", userID.String()),
		zap.String("source", string(source)),
		zap.Int64("last_updated", state.LastUpdated))
	return s, nil
}

// Users lists the users with a loaded session
func (m *Manager) Users() []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]uuid.UUID, 0, len(m.sessions))
	for id := range m.sessions {
		users = append(users, id)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })
	return users
}

// Evict syncs and drops a user's session
func (m *Manager) Evict(ctx context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if _, err := s.Sync(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.sessions, userID)
	metrics.UpdateActiveSessions(len(m.sessions))
	m.mu.Unlock()
	m.reconciler.Forget(userID)
	return nil
}

func (m *Manager) snapshot() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	return sessions
}

// SyncAll syncs every loaded session and returns the joined failures
func (m *Manager) SyncAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.snapshot() {
		if _, err := s.Sync(ctx); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", s.UserID(), err))
		}
	}
	return errors.Join(errs...)
}

// RunSync syncs all sessions every interval until ctx is done, then runs a final sync
func (m *Manager) RunSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("sync_loop_started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := m.SyncAll(finalCtx); err != nil {
				m.logger.Warn("final_sync_incomplete", zap.Error(err))
			}
			cancel()
			m.logger.Info("sync_loop_stopped")
			return
		case <-ticker.C:
			if err := m.SyncAll(ctx); err != nil {
				m.logger.Warn("periodic_sync_incomplete", zap.Error(err))
			}
		}
	}
}

// ReloadCatalog loads the catalog from the provider and re-merges every session
func (m *Manager) ReloadCatalog(ctx context.Context) error {
	if m.provider == nil {
		return errors.New("no catalog provider configured")
	}
	c, err := m.provider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	m.mu.Lock()
	eng := m.engine.WithCatalog(c)
	m.engine = eng
	m.mu.Unlock()

	for _, s := range m.snapshot() {
		if err := s.ReloadCatalog(ctx, eng); err != nil {
			m.logger.Error("session_catalog_reload_failed", zap.String("user_id", s.UserID().String()), zap.Error(err))
		}
	}
	m.logger.Info("catalog_applied", zap.Int("tasks", len(c.Tasks)))
	return nil
}

// WatchCatalog reloads the catalog whenever the tree's tasks subtree changes
func (m *Manager) WatchCatalog(ctx context.Context, tree store.Tree) error {
	return tree.Subscribe(ctx, store.CatalogRoot, func(changed string) {
		m.logger.Debug("catalog_changed", zap.String("path", changed))
		if err := m.ReloadCatalog(ctx); err != nil {
			m.logger.Error("catalog_reload_failed", zap.Error(err))
		}
	})
}

// WatchUsers refreshes loaded sessions when their stored progress changes, so
// writes made by another process (the boundary worker, another device) are adopted
func (m *Manager) WatchUsers(ctx context.Context, tree store.Tree) error {
	return tree.Subscribe(ctx, store.UsersRoot, func(changed string) {
		var sessions []*Session
		if userID, ok := store.UserFromPath(changed); ok {
			m.mu.Lock()
			if s, loaded := m.sessions[userID]; loaded {
				sessions = append(sessions, s)
			}
			m.mu.Unlock()
		} else {
			sessions = m.snapshot()
		}

		for _, s := range sessions {
			if _, err := s.Refresh(ctx); err != nil {
				m.logger.Warn("session_refresh_failed", zap.String("user_id", s.UserID().String()), zap.Error(err))
			}
		}
	})
}
