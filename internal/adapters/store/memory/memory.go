// Package memory implements store.Backend over an in-process document map.
//
// It backs local development (seeded from fixtures) and tests. Writes are
// applied under one lock and every listener whose result changes receives a
// full new snapshot. Snapshots a listener has not yet consumed are replaced
// by newer ones, so a slow consumer only ever sees the latest state.
package memory

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"sync"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/pkg/logger"
	"github.com/okian/awards/pkg/metrics"
)

// Store is an in-memory document database with live listeners.
type Store struct {
	mu        sync.RWMutex
	docs      map[string]map[string]any
	listeners map[uint64]*listener
	nextID    uint64
	log       logger.Logger
}

var _ store.Backend = (*Store)(nil)

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		docs:      make(map[string]map[string]any),
		listeners: make(map[uint64]*listener),
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set creates or replaces the document at path.
func (s *Store) Set(path string, data map[string]any) error {
	if _, _, err := store.SplitDocumentPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = maps.Clone(data)
	s.notifyLocked()
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(path string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", store.ErrNotFound, path)
	}
	next := maps.Clone(cur)
	maps.Copy(next, fields)
	s.docs[path] = next
	s.notifyLocked()
	return nil
}

// Delete removes the document at path. Deleting a missing document is a no-op.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[path]; !ok {
		return nil
	}
	delete(s.docs, path)
	s.notifyLocked()
	return nil
}

// Get returns a copy of the document at path.
func (s *Store) Get(path string) (map[string]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[path]
	if !ok {
		return nil, false
	}
	return maps.Clone(d), true
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// OpenListeners returns the number of listeners not yet stopped.
func (s *Store) OpenListeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Listen implements store.Backend.
func (s *Store) Listen(ctx context.Context, q store.Query) (store.Listener, error) {
	if !q.Group && !store.ValidCollectionPath(q.Collection) {
		return nil, fmt.Errorf("%w: collection %q", store.ErrInvalidPath, q.Collection)
	}
	return s.open(ctx, "query", func() result { return s.runQuery(q) }), nil
}

// ListenDocument implements store.Backend.
func (s *Store) ListenDocument(ctx context.Context, path string) (store.Listener, error) {
	if _, _, err := store.SplitDocumentPath(path); err != nil {
		return nil, err
	}
	return s.open(ctx, "document", func() result { return s.lookup(path) }), nil
}

func (s *Store) open(ctx context.Context, kind string, eval func() result) *listener {
	l := &listener{
		store:   s,
		kind:    kind,
		eval:    eval,
		signal:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}

	s.mu.Lock()
	s.nextID++
	l.id = s.nextID
	s.listeners[l.id] = l
	l.refreshLocked(true)
	s.mu.Unlock()

	metrics.RecordListenerOpened(kind)
	stop := context.AfterFunc(ctx, l.Stop)
	l.mu.Lock()
	l.release = stop
	l.mu.Unlock()
	s.log.Debug(ctx, "listener opened", logger.String("kind", kind), logger.Int("open", s.OpenListeners()))
	return l
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	delete(s.listeners, id)
	s.mu.Unlock()
}

// notifyLocked re-evaluates every listener. Callers hold s.mu for writing.
func (s *Store) notifyLocked() {
	for _, l := range s.listeners {
		l.refreshLocked(false)
	}
}

// entry is one document of an evaluated result. Stored maps are never
// mutated in place, so entries can be compared and shared safely.
type entry struct {
	path string
	data map[string]any
}

type result struct {
	entries []entry
	single  bool
}

func (r result) equal(o result) bool {
	return reflect.DeepEqual(r.entries, o.entries)
}

func (r result) snapshot() store.Snapshot {
	docs := make([]store.Document, len(r.entries))
	for i, e := range r.entries {
		data := e.data
		docs[i] = store.NewDocument(e.path, func(v any) error { return decode(data, v) })
	}
	return store.Snapshot{Documents: docs, Exists: !r.single || len(docs) > 0}
}

func (s *Store) lookup(path string) result {
	r := result{single: true}
	if d, ok := s.docs[path]; ok {
		r.entries = []entry{{path: path, data: d}}
	}
	return r
}
