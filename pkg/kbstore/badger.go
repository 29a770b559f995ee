package kbstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/promptlab/agentloop/pkg/rag"
)

const kbKeyPrefix = "kb:"

// BadgerStore persists knowledge bases in a BadgerDB directory. Each
// knowledge base is one JSON value under the key "kb:<id>", so vector
// swaps are single-key transactions.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a Badger-backed store at path.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kbstore: open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func kbKey(id string) []byte {
	return []byte(kbKeyPrefix + id)
}

// Get returns the knowledge base with the given ID.
func (s *BadgerStore) Get(ctx context.Context, id string) (*rag.KnowledgeBase, error) {
	var kb rag.KnowledgeBase
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(kbKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &kb)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

// Put stores the knowledge base, replacing any previous version under
// the same ID.
func (s *BadgerStore) Put(ctx context.Context, kb *rag.KnowledgeBase) error {
	if kb == nil || strings.TrimSpace(kb.ID) == "" {
		return fmt.Errorf("kbstore: knowledge base ID is required")
	}
	data, err := json.Marshal(kb)
	if err != nil {
		return fmt.Errorf("kbstore: marshal knowledge base: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(kbKey(kb.ID), data)
	})
}

// Delete removes the knowledge base. Deleting an unknown ID is a no-op.
func (s *BadgerStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(kbKey(id))
	})
}

// SetVectors replaces the vector set of an existing knowledge base in a
// single read-modify-write transaction.
func (s *BadgerStore) SetVectors(ctx context.Context, id string, vectors *rag.VectorSet) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(kbKey(id))
		if err != nil {
			return err
		}
		var kb rag.KnowledgeBase
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &kb)
		}); err != nil {
			return err
		}
		kb.Vectors = vectors
		data, err := json.Marshal(&kb)
		if err != nil {
			return fmt.Errorf("kbstore: marshal knowledge base: %w", err)
		}
		return txn.Set(kbKey(id), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return err
}

// List returns every stored knowledge base, ordered by ID.
func (s *BadgerStore) List(ctx context.Context) ([]*rag.KnowledgeBase, error) {
	var out []*rag.KnowledgeBase
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(kbKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var kb rag.KnowledgeBase
				if err := json.Unmarshal(val, &kb); err != nil {
					return nil // skip malformed entries
				}
				out = append(out, &kb)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*BadgerStore)(nil)
