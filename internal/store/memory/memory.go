package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/store"
)

var log = logger.New("store.memory")

// MemoryStore is an in-process implementation of store.Store with live
// subscriptions. It backs the test suites and the local development mode
// of the gateway. Every mutation fans the full matching result set out to
// each subscriber whose query covers the touched collection, including the
// writer's own subscriptions.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]store.Document

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int
}

type subscription struct {
	query store.Query
	fn    store.SnapshotHandler
}

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]map[string]store.Document),
		subs:        make(map[int]*subscription),
	}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (store.Document, error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return copyDoc(doc), nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, doc store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.put(collection, id, copyDoc(doc))
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Create(ctx context.Context, path string, doc store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.collections[collection][id]; ok {
		s.mu.Unlock()
		return store.ErrExists
	}
	s.put(collection, id, copyDoc(doc))
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, path string, patch store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	store.ApplyPatch(doc, copyDoc(patch))
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.collections[collection], id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *MemoryStore) Add(ctx context.Context, collection string, doc store.Document) (string, error) {
	id := uuid.New().String()
	s.mu.Lock()
	s.put(collection, id, copyDoc(doc))
	s.mu.Unlock()
	s.notify(collection)
	return id, nil
}

func (s *MemoryStore) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	s.mu.Lock()
	results := s.run(q)
	s.mu.Unlock()
	return results, nil
}

// Subscribe registers fn and delivers the current result set immediately,
// then again on every mutation of the query's collection.
func (s *MemoryStore) Subscribe(q store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{query: q, fn: fn}
	s.subMu.Unlock()

	s.mu.Lock()
	initial := s.run(q)
	s.mu.Unlock()
	fn(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}, nil
}

func (s *MemoryStore) Batch() store.Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Close() error {
	s.subMu.Lock()
	s.subs = make(map[int]*subscription)
	s.subMu.Unlock()
	return nil
}

// put assumes s.mu is held.
func (s *MemoryStore) put(collection, id string, doc store.Document) {
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]store.Document)
	}
	s.collections[collection][id] = doc
}

// run assumes s.mu is held.
func (s *MemoryStore) run(q store.Query) []store.Snapshot {
	var results []store.Snapshot
	for id, doc := range s.collections[q.Collection] {
		if store.Matches(doc, q) {
			results = append(results, store.Snapshot{ID: id, Data: copyDoc(doc)})
		}
	}
	store.Sort(results, q)
	return results
}

// notify re-runs every subscription over the touched collection and hands
// each its fresh full result set.
func (s *MemoryStore) notify(collection string) {
	s.subMu.Lock()
	var targets []*subscription
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range targets {
		s.mu.Lock()
		results := s.run(sub.query)
		s.mu.Unlock()
		sub.fn(results)
	}
}

type batchKind int

const (
	opUpdate batchKind = iota
	opSet
	opDelete
)

type batchOp struct {
	kind  batchKind
	path  string
	patch store.Document
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) Set(path string, doc store.Document) {
	b.ops = append(b.ops, batchOp{kind: opSet, path: path, patch: copyDoc(doc)})
}

func (b *memoryBatch) Update(path string, patch store.Document) {
	b.ops = append(b.ops, batchOp{kind: opUpdate, path: path, patch: copyDoc(patch)})
}

func (b *memoryBatch) Delete(path string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, path: path})
}

// Commit applies every queued op under one lock acquisition so subscribers
// observe the batch as a single transition.
func (b *memoryBatch) Commit(ctx context.Context) error {
	touched := map[string]bool{}
	b.store.mu.Lock()
	for _, op := range b.ops {
		collection, id, err := store.SplitPath(op.path)
		if err != nil {
			b.store.mu.Unlock()
			return err
		}
		switch op.kind {
		case opDelete:
			delete(b.store.collections[collection], id)
		case opSet:
			b.store.put(collection, id, op.patch)
		case opUpdate:
			doc, ok := b.store.collections[collection][id]
			if !ok {
				log.Warn("batch update on missing document %s", op.path)
				continue
			}
			store.ApplyPatch(doc, op.patch)
		}
		touched[collection] = true
	}
	b.store.mu.Unlock()

	for collection := range touched {
		b.store.notify(collection)
	}
	b.ops = nil
	return nil
}

func copyDoc(doc store.Document) store.Document {
	out := make(store.Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyDoc(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return v
	}
}
