// Package memory is an in-process document store for development and tests.
// It enforces no unique constraints.
package memory

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"

	"github.com/akshaypatra/learning-path-dashboard-backend/internal/models"
	"github.com/akshaypatra/learning-path-dashboard-backend/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps collections in maps guarded by a single lock.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) storage.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &collection{}
		s.collections[name] = c
	}
	return c
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

type collection struct {
	mu   sync.RWMutex
	docs []storage.Document
}

func (c *collection) InsertOne(ctx context.Context, doc storage.Document) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(doc), nil
}

func (c *collection) InsertMany(ctx context.Context, docs []storage.Document) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, c.insert(doc))
	}
	return ids, nil
}

func (c *collection) FindOne(ctx context.Context, filter storage.Filter) (storage.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(filter); i >= 0 {
		return clone(c.docs[i]), nil
	}
	return nil, storage.ErrNotFound
}

func (c *collection) FindMany(ctx context.Context, filter storage.Filter) ([]storage.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []storage.Document{}
	for _, doc := range c.docs {
		if filter.Matches(doc) {
			out = append(out, clone(doc))
		}
	}
	return out, nil
}

func (c *collection) UpdateOne(ctx context.Context, filter storage.Filter, set storage.Document, upsert bool) (storage.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := c.index(filter)
	if i < 0 {
		if !upsert {
			return storage.UpdateResult{}, nil
		}
		seed := filter.Equalities()
		for k, v := range set {
			seed[k] = v
		}
		return storage.UpdateResult{UpsertedID: c.insert(seed)}, nil
	}

	doc := c.docs[i]
	modified := false
	for k, v := range set {
		if k == models.FieldID {
			continue
		}
		if old, ok := doc[k]; !ok || !reflect.DeepEqual(old, v) {
			modified = true
		}
		doc[k] = v
	}
	res := storage.UpdateResult{Matched: 1}
	if modified {
		res.Modified = 1
	}
	return res, nil
}

func (c *collection) DeleteOne(ctx context.Context, filter storage.Filter) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(filter)
	if i < 0 {
		return 0, nil
	}
	c.docs = append(c.docs[:i], c.docs[i+1:]...)
	return 1, nil
}

func (c *collection) insert(doc storage.Document) string {
	stored := clone(doc)
	id := uuid.NewString()
	stored[models.FieldID] = id
	c.docs = append(c.docs, stored)
	return id
}

func (c *collection) index(filter storage.Filter) int {
	for i, doc := range c.docs {
		if filter.Matches(doc) {
			return i
		}
	}
	return -1
}

func clone(doc storage.Document) storage.Document {
	out := make(storage.Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
