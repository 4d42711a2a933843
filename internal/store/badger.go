package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	"go.uber.org/zap"
)

// BadgerTree is a Tree persisted in an embedded Badger database. Each leaf is one
// key holding its JSON value.
type BadgerTree struct {
	db     *badger.DB
	logger *zap.Logger
}

// OpenBadgerTree opens (or creates) a Badger-backed tree at dir. An empty dir
// opens an in-memory database.
func OpenBadgerTree(dir string, logger *zap.Logger) (*BadgerTree, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	} else {
		opts.SyncWrites = true
		opts.CompactL0OnClose = true
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("badger_tree_opened", zap.String("path", dir))
	return &BadgerTree{db: db, logger: logger}, nil
}

func (b *BadgerTree) Get(ctx context.Context, path string) (json.RawMessage, error) {
	path = Clean(path)
	leaves := make(map[string]json.RawMessage)

	err := b.db.View(func(txn *badger.Txn) error {
		if path != "" {
			item, err := txn.Get([]byte(path))
			switch {
			case err == nil:
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				leaves[path] = val
				return nil
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		}

		prefix := subtreePrefix(path)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			leaves[string(item.KeyCopy(nil))] = val
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	return Assemble(path, leaves)
}

func (b *BadgerTree) Update(ctx context.Context, updates map[string]any) error {
	mutations, err := Plan(updates)
	if err != nil {
		return err
	}

	err = b.db.Update(func(txn *badger.Txn) error {
		for _, mut := range mutations {
			stale, err := keysUnder(txn, mut.Path)
			if err != nil {
				return err
			}
			for _, a := range Ancestors(mut.Path) {
				stale = append(stale, []byte(a))
			}
			for _, k := range stale {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			for k, v := range mut.Leaves {
				if err := txn.Set([]byte(k), v); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}
	return nil
}

func keysUnder(txn *badger.Txn, path string) ([][]byte, error) {
	var keys [][]byte
	if path != "" {
		if _, err := txn.Get([]byte(path)); err == nil {
			keys = append(keys, []byte(path))
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, err
		}
	}

	prefix := subtreePrefix(path)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

func subtreePrefix(path string) []byte {
	if path == "" {
		return nil
	}
	return []byte(path + "/")
}

// Subscribe watches path's subtree through Badger's change feed. The feed runs
// in the background until ctx is done.
func (b *BadgerTree) Subscribe(ctx context.Context, path string, fn func(changed string)) error {
	path = Clean(path)
	match := pb.Match{Prefix: []byte(path)}

	go func() {
		err := b.db.Subscribe(ctx, func(kvs *pb.KVList) error {
			for _, kv := range kvs.GetKv() {
				changed := string(kv.GetKey())
				if Related(changed, path) {
					fn(changed)
					return nil
				}
			}
			return nil
		}, []pb.Match{match})
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("badger_subscription_ended", zap.String("path", path), zap.Error(err))
		}
	}()
	return nil
}

func (b *BadgerTree) ChildKeys(ctx context.Context, path string) ([]string, error) {
	path = Clean(path)
	var leaves []string
	err := b.db.View(func(txn *badger.Txn) error {
		keys, err := keysUnder(txn, path)
		if err != nil {
			return err
		}
		for _, k := range keys {
			leaves = append(leaves, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", path, err)
	}
	return childKeys(path, leaves), nil
}

func (b *BadgerTree) Close() error {
	return b.db.Close()
}

// Ping verifies the database accepts reads
func (b *BadgerTree) Ping(ctx context.Context) error {
	return b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte("\x00ping"))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

var _ Tree = (*BadgerTree)(nil)
