package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

type subscriber struct {
	path string
	fn   func(changed string)
}

// MemoryTree is a Tree held in process memory. It is used for tests and for
// single-process deployments with STORE_BACKEND=memory.
type MemoryTree struct {
	mu     sync.RWMutex
	leaves map[string]json.RawMessage
	subs   map[int]subscriber
	nextID int
	closed bool
}

// NewMemoryTree returns an empty tree
func NewMemoryTree() *MemoryTree {
	return &MemoryTree{
		leaves: make(map[string]json.RawMessage),
		subs:   make(map[int]subscriber),
	}
}

func (m *MemoryTree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	path = Clean(path)
	matched := make(map[string]json.RawMessage)
	for k, v := range m.leaves {
		if IsUnder(k, path) {
			matched[k] = v
		}
	}
	return Assemble(path, matched)
}

func (m *MemoryTree) Update(ctx context.Context, updates map[string]any) error {
	mutations, err := Plan(updates)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	for _, mut := range mutations {
		for k := range m.leaves {
			if IsUnder(k, mut.Path) {
				delete(m.leaves, k)
			}
		}
		for _, a := range Ancestors(mut.Path) {
			delete(m.leaves, a)
		}
		for k, v := range mut.Leaves {
			m.leaves[k] = v
		}
	}
	subs := make([]subscriber, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()

	for _, s := range subs {
		for _, mut := range mutations {
			if Related(mut.Path, s.path) {
				s.fn(mut.Path)
				break
			}
		}
	}
	return nil
}

func (m *MemoryTree) Subscribe(ctx context.Context, path string, fn func(changed string)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	id := m.nextID
	m.nextID++
	m.subs[id] = subscriber{path: Clean(path), fn: fn}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()
	return nil
}

func (m *MemoryTree) ChildKeys(ctx context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(m.leaves))
	for k := range m.leaves {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return childKeys(Clean(path), keys), nil
}

func (m *MemoryTree) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.subs = make(map[int]subscriber)
	return nil
}

var _ Tree = (*MemoryTree)(nil)
