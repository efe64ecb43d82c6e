package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document path resolves to nothing.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the document already exists.
	// Get-or-create races are resolved by losing this error, never by
	// client-side locking.
	ErrExists = errors.New("document already exists")
)

// Document is the loosely-typed field map a reactive document store holds.
// Typed decoding happens at the models boundary, not here.
type Document = map[string]any

// Snapshot is the full current state of one document. Subscriptions always
// deliver complete snapshots, never diffs.
type Snapshot struct {
	ID   string
	Data Document
}

// Op is a comparison operator understood by Query.
type Op string

const (
	OpEq       Op = "=="
	OpContains Op = "array-contains"
)

// Where is a single query predicate.
type Where struct {
	Field string
	Op    Op
	Value any
}

// Query describes a filtered, ordered read over one collection.
type Query struct {
	Collection string
	Wheres     []Where
	OrderBy    string
	Desc       bool
}

// Where appends an equality or containment predicate and returns the query
// for chaining.
func (q Query) Where(field string, op Op, value any) Query {
	q.Wheres = append(q.Wheres, Where{Field: field, Op: op, Value: value})
	return q
}

// Unsubscribe tears down a live subscription. It must be safe to call more
// than once; leaking a subscription delivers callbacks into stale state.
type Unsubscribe func()

// SnapshotHandler receives the full result set of a subscribed query every
// time any matching document changes.
type SnapshotHandler func(snapshots []Snapshot)

// Batch accumulates multi-document mutations that commit atomically.
type Batch interface {
	Set(path string, doc Document)
	Update(path string, patch Document)
	Delete(path string)
	Commit(ctx context.Context) error
}

// Store is the remote reactive document store the engine runs against.
// Paths are "collection/docID". Implementations must fan a change out to
// every subscriber whose query matches, including the writer's own client.
type Store interface {
	Get(ctx context.Context, path string) (Document, error)
	Set(ctx context.Context, path string, doc Document) error
	Update(ctx context.Context, path string, patch Document) error
	// Create writes doc at path only if the path is vacant, returning
	// ErrExists otherwise. This is the conditional-write primitive that
	// makes concurrent get-or-create converge on one document.
	Create(ctx context.Context, path string, doc Document) error
	Delete(ctx context.Context, path string) error
	// Add appends a document to a collection and returns the assigned id.
	Add(ctx context.Context, collection string, doc Document) (string, error)
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	Subscribe(q Query, fn SnapshotHandler) (Unsubscribe, error)
	Batch() Batch
	Close() error
}
