// Package store defines the path-addressable JSON tree that holds progress,
// along with the in-memory and Badger implementations of it.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrClosed is returned by operations on a closed tree
var ErrClosed = errors.New("store: tree closed")

// Tree is a JSON tree addressed by slash-delimited paths.
//
// Get returns the subtree at path, or nil when nothing is stored there.
// Update replaces the subtree at every given path in one atomic write; a nil
// value deletes the subtree. Subscribe calls fn after every write that touches
// path's subtree until ctx is done.
type Tree interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
	Update(ctx context.Context, updates map[string]any) error
	Subscribe(ctx context.Context, path string, fn func(changed string)) error
	ChildKeys(ctx context.Context, path string) ([]string, error)
	Close() error
}

// Mutation replaces everything at and below Path with Leaves
type Mutation struct {
	Path   string
	Leaves map[string]json.RawMessage
}

// Plan turns an update map into mutations ordered parent-first, so that a deeper
// path in the same update overrides what a shallower one wrote.
func Plan(updates map[string]any) ([]Mutation, error) {
	mutations := make([]Mutation, 0, len(updates))
	for path, value := range updates {
		path = Clean(path)
		leaves, err := Flatten(path, value)
		if err != nil {
			return nil, fmt.Errorf("failed to flatten %q: %w", path, err)
		}
		mutations = append(mutations, Mutation{Path: path, Leaves: leaves})
	}
	sort.Slice(mutations, func(i, j int) bool {
		di, dj := depth(mutations[i].Path), depth(mutations[j].Path)
		if di != dj {
			return di < dj
		}
		return mutations[i].Path < mutations[j].Path
	})
	return mutations, nil
}

func depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, "/") + 1
}

// Flatten converts value into leaf entries under path. Objects are split into
// children; scalars and arrays are stored whole. Nil and empty objects produce no leaves.
func Flatten(path string, value any) (map[string]json.RawMessage, error) {
	leaves := make(map[string]json.RawMessage)
	if value == nil {
		return leaves, nil
	}

	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return leaves, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, err
	}
	if err := flatten(Clean(path), decoded, leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func flatten(path string, value any, leaves map[string]json.RawMessage) error {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		for k, child := range v {
			childPath := Key(k)
			if path != "" {
				childPath = path + "/" + childPath
			}
			if err := flatten(childPath, child, leaves); err != nil {
				return err
			}
		}
		return nil
	default:
		if path == "" {
			return errors.New("cannot store a scalar at the root")
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		leaves[path] = b
		return nil
	}
}

// Assemble rebuilds the JSON subtree at path from the leaves stored at or below it.
// It returns nil when there are no leaves.
func Assemble(path string, leaves map[string]json.RawMessage) (json.RawMessage, error) {
	if len(leaves) == 0 {
		return nil, nil
	}
	if raw, ok := leaves[path]; ok {
		return raw, nil
	}

	root := make(map[string]any)
	for leafPath, raw := range leaves {
		rest := leafPath
		if path != "" {
			if !strings.HasPrefix(leafPath, path+"/") {
				continue
			}
			rest = leafPath[len(path)+1:]
		}
		segments := strings.Split(rest, "/")
		node := root
		for i, seg := range segments {
			seg = Unkey(seg)
			if i == len(segments)-1 {
				node[seg] = raw
				break
			}
			child, ok := node[seg].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[seg] = child
			}
			node = child
		}
	}
	if len(root) == 0 {
		return nil, nil
	}
	return json.Marshal(root)
}

// Decode reads the subtree at path into v. It reports false when nothing is stored.
func Decode(ctx context.Context, t Tree, path string, v any) (bool, error) {
	raw, err := t.Get(ctx, path)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", path, err)
	}
	return true, nil
}
