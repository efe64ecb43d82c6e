package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/store"
)

// notifyChannel is the LISTEN/NOTIFY channel carrying the touched
// collection name after every commit.
const notifyChannel = "documents_changed"

var log = logger.New("store.postgres")

// PostgresStore implements store.Store over a single jsonb documents
// table. Subscriptions ride LISTEN/NOTIFY: every write ends with a
// pg_notify naming the touched collection, and a shared listener re-runs
// each subscribed query and fans the fresh snapshots out, so all clients
// of the same database observe each other's writes.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener

	subMu   sync.Mutex
	subs    map[int]*subscription
	nextSub int
	done    chan struct{}
}

type subscription struct {
	query store.Query
	fn    store.SnapshotHandler
}

// New connects, ensures the documents table exists, and starts the
// notification listener.
func New(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id         TEXT NOT NULL,
			data       JSONB NOT NULL,
			PRIMARY KEY (collection, id)
		)`); err != nil {
		return nil, fmt.Errorf("create documents table: %w", err)
	}

	s := &PostgresStore{
		db:   db,
		subs: make(map[int]*subscription),
		done: make(chan struct{}),
	}

	s.listener = pq.NewListener(connStr, 200*time.Millisecond, 10*time.Second,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Warn("listener event %v: %v", ev, err)
			}
		})
	if err := s.listener.Listen(notifyChannel); err != nil {
		db.Close()
		return nil, fmt.Errorf("listen %s: %w", notifyChannel, err)
	}
	go s.dispatchLoop()

	return s, nil
}

func (s *PostgresStore) dispatchLoop() {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.listener.Notify:
			if n == nil {
				// Reconnect; re-run everything since events may be lost
				s.fanOut("")
				continue
			}
			s.fanOut(n.Extra)
		case <-time.After(90 * time.Second):
			go s.listener.Ping()
		}
	}
}

// fanOut re-runs every subscription whose collection matches; an empty
// collection means all of them.
func (s *PostgresStore) fanOut(collection string) {
	s.subMu.Lock()
	var targets []*subscription
	for _, sub := range s.subs {
		if collection == "" || sub.query.Collection == collection {
			targets = append(targets, sub)
		}
	}
	s.subMu.Unlock()

	ctx := context.Background()
	for _, sub := range targets {
		snapshots, err := s.Query(ctx, sub.query)
		if err != nil {
			log.Error("subscription query on %s failed: %v", sub.query.Collection, err)
			continue
		}
		sub.fn(snapshots)
	}
}

func (s *PostgresStore) notify(ctx context.Context, collection string) {
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, collection); err != nil {
		log.Warn("pg_notify for %s failed: %v", collection, err)
	}
}

func (s *PostgresStore) Get(ctx context.Context, path string) (store.Document, error) {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

func (s *PostgresStore) Set(ctx context.Context, path string, doc store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
		collection, id, raw)
	if err != nil {
		return err
	}
	s.notify(ctx, collection)
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, path string, doc store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO NOTHING`,
		collection, id, raw)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrExists
	}
	s.notify(ctx, collection)
	return nil
}

// Update applies a dotted-key patch inside a row-locked transaction so
// concurrent patches of different fields both land.
func (s *PostgresStore) Update(ctx context.Context, path string, patch store.Document) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := updateInTx(ctx, tx, collection, id, patch); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.notify(ctx, collection)
	return nil
}

func updateInTx(ctx context.Context, tx *sql.Tx, collection, id string, patch store.Document) error {
	var raw []byte
	err := tx.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	doc, err := decode(raw)
	if err != nil {
		return err
	}
	store.ApplyPatch(doc, patch)
	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE documents SET data = $3 WHERE collection = $1 AND id = $2`,
		collection, id, out)
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, path string) error {
	collection, id, err := store.SplitPath(path)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return err
	}
	s.notify(ctx, collection)
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, collection string, doc store.Document) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, store.Path(collection, id), doc); err != nil {
		return "", err
	}
	return id, nil
}

// Query loads the collection and evaluates predicates client-side; the
// document shapes are small and per-conversation, so the simplicity wins
// over translating dotted paths into jsonb operators.
func (s *PostgresStore) Query(ctx context.Context, q store.Query) ([]store.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = $1`, q.Collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []store.Snapshot
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		doc, err := decode(raw)
		if err != nil {
			log.Warn("skipping undecodable document %s/%s: %v", q.Collection, id, err)
			continue
		}
		if store.Matches(doc, q) {
			results = append(results, store.Snapshot{ID: id, Data: doc})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	store.Sort(results, q)
	return results, nil
}

func (s *PostgresStore) Subscribe(q store.Query, fn store.SnapshotHandler) (store.Unsubscribe, error) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = &subscription{query: q, fn: fn}
	s.subMu.Unlock()

	initial, err := s.Query(context.Background(), q)
	if err != nil {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
		return nil, err
	}
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

func (s *PostgresStore) Batch() store.Batch {
	return &pgBatch{store: s}
}

func (s *PostgresStore) Close() error {
	close(s.done)
	s.listener.Close()
	return s.db.Close()
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

type pgBatch struct {
	store *PostgresStore
	ops   []batchOp
}

func (b *pgBatch) Set(path string, doc store.Document) {
	b.ops = append(b.ops, batchOp{kind: opSet, path: path, patch: doc})
}

func (b *pgBatch) Update(path string, patch store.Document) {
	b.ops = append(b.ops, batchOp{kind: opUpdate, path: path, patch: patch})
}

func (b *pgBatch) Delete(path string) {
	b.ops = append(b.ops, batchOp{kind: opDelete, path: path})
}

// Commit runs every queued op in one transaction; subscribers observe the
// batch as a single transition.
func (b *pgBatch) Commit(ctx context.Context) error {
	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	touched := map[string]bool{}
	for _, op := range b.ops {
		collection, id, err := store.SplitPath(op.path)
		if err != nil {
			return err
		}
		switch op.kind {
		case opDelete:
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
				return err
			}
		case opSet:
			raw, err := json.Marshal(op.patch)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, data) VALUES ($1, $2, $3)
				ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`,
				collection, id, raw); err != nil {
				return err
			}
		case opUpdate:
			if err := updateInTx(ctx, tx, collection, id, op.patch); err != nil {
				if err == store.ErrNotFound {
					log.Warn("batch update on missing document %s", op.path)
					continue
				}
				return err
			}
		}
		touched[collection] = true
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	for collection := range touched {
		b.store.notify(ctx, collection)
	}
	b.ops = nil
	return nil
}

func decode(raw []byte) (store.Document, error) {
	var doc store.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
