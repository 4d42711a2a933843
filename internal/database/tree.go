package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/benvon/questlog/internal/store"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotifyChannel is the LISTEN/NOTIFY channel carrying changed paths
const NotifyChannel = "progress_changes"

// listenerPingInterval is how often an idle listener connection is checked
const listenerPingInterval = 90 * time.Second

// Tree is a store.Tree backed by the progress_nodes table. Each leaf is one row;
// subtree reads select by path prefix and every Update runs in one transaction.
type Tree struct {
	db     *DB
	logger *zap.Logger
}

// NewTree creates a tree over db
func NewTree(db *DB, logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{db: db, logger: logger}
}

// escapeLike escapes LIKE metacharacters; escaped path segments contain '%'
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// subtreeFilter returns the WHERE clause and args selecting path and its descendants
func subtreeFilter(path string) (string, []any) {
	if path == "" {
		return "TRUE", nil
	}
	return "(path = $1 OR path LIKE $2)", []any{path, escapeLike(path) + "/%"}
}

func (t *Tree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path = store.Clean(path)
	where, args := subtreeFilter(path)

	rows, err := t.db.QueryContext(ctx, "SELECT path, value FROM progress_nodes WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %q: %w", path, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	leaves := make(map[string]json.RawMessage)
	for rows.Next() {
		var p string
		var v []byte
		if err := rows.Scan(&p, &v); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}
	return store.Assemble(path, leaves)
}

func (t *Tree) Update(ctx context.Context, updates map[string]any) error {
	mutations, err := store.Plan(updates)
	if err != nil {
		return err
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, mut := range mutations {
		if err := applyMutation(ctx, tx, mut, now); err != nil {
			return err
		}
	}
	for _, mut := range mutations {
		if _, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", NotifyChannel, mut.Path); err != nil {
			return fmt.Errorf("failed to notify change: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit update: %w", err)
	}
	return nil
}

func applyMutation(ctx context.Context, tx *sql.Tx, mut store.Mutation, now time.Time) error {
	where, args := subtreeFilter(mut.Path)
	if _, err := tx.ExecContext(ctx, "DELETE FROM progress_nodes WHERE "+where, args...); err != nil {
		return fmt.Errorf("failed to clear %q: %w", mut.Path, err)
	}

	if ancestors := store.Ancestors(mut.Path); len(ancestors) > 0 {
		if _, err := tx.ExecContext(ctx, "DELETE FROM progress_nodes WHERE path = ANY($1)", pq.Array(ancestors)); err != nil {
			return fmt.Errorf("failed to clear ancestors of %q: %w", mut.Path, err)
		}
	}

	query := `
		INSERT INTO progress_nodes (path, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	for p, v := range mut.Leaves {
		if _, err := tx.ExecContext(ctx, query, p, []byte(v), now); err != nil {
			return fmt.Errorf("failed to write %q: %w", p, err)
		}
	}
	return nil
}

// Subscribe listens on NotifyChannel through a dedicated pq.Listener connection.
// A reconnect may have dropped notifications, so it is reported as a change.
func (t *Tree) Subscribe(ctx context.Context, path string, fn func(changed string)) error {
	path = store.Clean(path)

	listener := pq.NewListener(t.db.url, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			t.logger.Warn("progress_listener_event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := listener.Listen(NotifyChannel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", NotifyChannel, err)
	}

	go func() {
		defer func() {
			_ = listener.Close()
		}()
		ticker := time.NewTicker(listenerPingInterval)
		defer ticker.Stop()
		t.listen(ctx, listener.Notify, listener, ticker.C, path, fn)
	}()
	return nil
}

// pinger checks that a listener connection is still alive
type pinger interface {
	Ping() error
}

// listen delivers matching notifications to fn and pings the connection on every tick
// until ctx is done or the notify channel is closed
func (t *Tree) listen(ctx context.Context, notify <-chan *pq.Notification, conn pinger, tick <-chan time.Time, path string, fn func(changed string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-notify:
			if !ok {
				return
			}
			if changed, ok := notificationPath(n, path); ok {
				fn(changed)
			}
		case <-tick:
			if err := conn.Ping(); err != nil {
				t.logger.Warn("progress_listener_ping_failed", zap.Error(err))
			}
		}
	}
}

// notificationPath filters a notification for a subscriber of path. A nil
// notification signals a reconnect.
func notificationPath(n *pq.Notification, path string) (string, bool) {
	if n == nil {
		return path, true
	}
	if store.Related(n.Extra, path) {
		return n.Extra, true
	}
	return "", false
}

func (t *Tree) ChildKeys(ctx context.Context, path string) ([]string, error) {
	path = store.Clean(path)
	where, args := subtreeFilter(path)

	rows, err := t.db.QueryContext(ctx, "SELECT path FROM progress_nodes WHERE "+where+" ORDER BY path", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", path, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	seen := make(map[string]bool)
	var keys []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("failed to scan path: %w", err)
		}
		if key, ok := childSegment(path, p); ok && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paths: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func childSegment(parent, leaf string) (string, bool) {
	rest := leaf
	if parent != "" {
		if !strings.HasPrefix(leaf, parent+"/") {
			return "", false
		}
		rest = leaf[len(parent)+1:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return "", false
	}
	return store.Unkey(rest), true
}

// Close is a no-op; the pool is owned by DB
func (t *Tree) Close() error {
	return nil
}

var _ store.Tree = (*Tree)(nil)
