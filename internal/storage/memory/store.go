// Package memory provides an in-process EntityStore. Transactions stage
// writes privately and publish them on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stableMirror/internal/model"
	"stableMirror/internal/storage"
)

// Store is an in-memory EntityStore safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[model.EntityType]map[string]model.Entity
}

func NewStore() *Store {
	return &Store{data: make(map[model.EntityType]map[string]model.Entity)}
}

func (s *Store) Close() {}

func (s *Store) Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[typ][key]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (s *Store) Exists(ctx context.Context, typ model.EntityType, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[typ][key]
	return ok, nil
}

func (s *Store) Each(ctx context.Context, typ model.EntityType, fn func(model.Entity) error) error {
	s.mu.RLock()
	entities := make([]model.Entity, 0, len(s.data[typ]))
	for _, e := range s.data[typ] {
		entities = append(entities, e.Clone())
	}
	s.mu.RUnlock()

	sortByKey(entities)
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of entities of typ.
func (s *Store) Count(typ model.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[typ])
}

func (s *Store) Update(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{store: s, writes: make(map[model.Ref]write)}
	if err := fn(t); err != nil {
		return err
	}
	return s.commit(t)
}

func (s *Store) commit(t *tx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ref, w := range t.writes {
		if !w.insert {
			continue
		}
		if _, ok := s.data[ref.Type][ref.Key]; ok {
			return fmt.Errorf("commit %s: %w", ref, storage.ErrExists)
		}
	}
	for ref, w := range t.writes {
		bucket, ok := s.data[ref.Type]
		if !ok {
			bucket = make(map[string]model.Entity)
			s.data[ref.Type] = bucket
		}
		bucket[ref.Key] = w.entity
	}
	return nil
}

type write struct {
	entity model.Entity
	insert bool
}

type tx struct {
	store  *Store
	writes map[model.Ref]write
}

func (t *tx) Load(ctx context.Context, typ model.EntityType, key string) (model.Entity, bool, error) {
	if w, ok := t.writes[model.Ref{Type: typ, Key: key}]; ok {
		return w.entity.Clone(), true, nil
	}
	return t.store.Load(ctx, typ, key)
}

func (t *tx) Exists(ctx context.Context, typ model.EntityType, key string) (bool, error) {
	if _, ok := t.writes[model.Ref{Type: typ, Key: key}]; ok {
		return true, nil
	}
	return t.store.Exists(ctx, typ, key)
}

func (t *tx) Each(ctx context.Context, typ model.EntityType, fn func(model.Entity) error) error {
	merged := make(map[string]model.Entity)
	err := t.store.Each(ctx, typ, func(e model.Entity) error {
		merged[e.EntityKey()] = e
		return nil
	})
	if err != nil {
		return err
	}
	for ref, w := range t.writes {
		if ref.Type == typ {
			merged[ref.Key] = w.entity.Clone()
		}
	}

	entities := make([]model.Entity, 0, len(merged))
	for _, e := range merged {
		entities = append(entities, e)
	}
	sortByKey(entities)
	for _, e := range entities {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (t *tx) Upsert(ctx context.Context, e model.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref := model.Ref{Type: e.EntityType(), Key: e.EntityKey()}
	if ref.Type.AppendOnly() {
		return fmt.Errorf("upsert %s: append-only entity", ref)
	}
	t.writes[ref] = write{entity: e.Clone()}
	return nil
}

func (t *tx) Insert(ctx context.Context, e model.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ref := model.Ref{Type: e.EntityType(), Key: e.EntityKey()}
	exists, err := t.Exists(ctx, ref.Type, ref.Key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("insert %s: %w", ref, storage.ErrExists)
	}
	t.writes[ref] = write{entity: e.Clone(), insert: true}
	return nil
}

func sortByKey(entities []model.Entity) {
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].EntityKey() < entities[j].EntityKey()
	})
}
