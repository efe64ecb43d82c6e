package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnex/chatengine/internal/store"
)

func TestSetGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "things/a", store.Document{"name": "first"}))

	doc, err := s.Get(ctx, "things/a")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["name"])

	require.NoError(t, s.Delete(ctx, "things/a"))
	_, err = s.Get(ctx, "things/a")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things/a", store.Document{"nested": map[string]any{"v": 1}}))

	doc, err := s.Get(ctx, "things/a")
	require.NoError(t, err)
	doc["nested"].(map[string]any)["v"] = 99

	again, err := s.Get(ctx, "things/a")
	require.NoError(t, err)
	assert.Equal(t, 1, again["nested"].(map[string]any)["v"], "callers cannot mutate stored state")
}

func TestCreateConditional(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, "things/a", store.Document{"owner": "first"}))
	err := s.Create(ctx, "things/a", store.Document{"owner": "second"})
	assert.ErrorIs(t, err, store.ErrExists)

	doc, err := s.Get(ctx, "things/a")
	require.NoError(t, err)
	assert.Equal(t, "first", doc["owner"], "the loser of the race never overwrites")
}

func TestUpdateDottedPath(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "things/a", store.Document{
		"details": map[string]any{"u1": map[string]any{"typing": false, "name": "A"}},
	}))

	require.NoError(t, s.Update(ctx, "things/a", store.Document{"details.u1.typing": true}))

	doc, err := s.Get(ctx, "things/a")
	require.NoError(t, err)
	u1 := doc["details"].(map[string]any)["u1"].(map[string]any)
	assert.Equal(t, true, u1["typing"])
	assert.Equal(t, "A", u1["name"], "sibling fields survive a dotted patch")
}

func TestUpdateMissing(t *testing.T) {
	s := New()
	err := s.Update(context.Background(), "things/nope", store.Document{"x": 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAddAssignsID(t *testing.T) {
	s := New()
	ctx := context.Background()

	id, err := s.Add(ctx, "things", store.Document{"n": 1})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	doc, err := s.Get(ctx, "things/"+id)
	require.NoError(t, err)
	assert.Equal(t, 1, doc["n"])
}

func TestQueryFilterAndOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "msgs/a", store.Document{"conv": "c1", "ts": int64(30)}))
	require.NoError(t, s.Set(ctx, "msgs/b", store.Document{"conv": "c1", "ts": int64(10)}))
	require.NoError(t, s.Set(ctx, "msgs/c", store.Document{"conv": "c2", "ts": int64(20)}))

	results, err := s.Query(ctx, store.Query{Collection: "msgs", OrderBy: "ts"}.
		Where("conv", store.OpEq, "c1"))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, "a", results[1].ID)
}

func TestQueryArrayContains(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "convs/x", store.Document{"participants": []any{"alice", "bob"}}))
	require.NoError(t, s.Set(ctx, "convs/y", store.Document{"participants": []any{"carol", "dan"}}))

	results, err := s.Query(ctx, store.Query{Collection: "convs"}.
		Where("participants", store.OpContains, "bob"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "x", results[0].ID)
}

func TestSubscribeInitialAndUpdates(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "msgs/a", store.Document{"conv": "c1", "ts": int64(1)}))

	var got [][]store.Snapshot
	unsub, err := s.Subscribe(store.Query{Collection: "msgs", OrderBy: "ts"}.
		Where("conv", store.OpEq, "c1"),
		func(snaps []store.Snapshot) { got = append(got, snaps) })
	require.NoError(t, err)
	defer unsub()

	require.Len(t, got, 1, "initial snapshot on subscribe")
	require.Len(t, got[0], 1)

	require.NoError(t, s.Set(ctx, "msgs/b", store.Document{"conv": "c1", "ts": int64(2)}))
	require.Len(t, got, 2)
	assert.Len(t, got[1], 2)

	// A write to a non-matching document still snapshots, with the same result set
	require.NoError(t, s.Set(ctx, "msgs/z", store.Document{"conv": "other", "ts": int64(3)}))
	assert.Len(t, got[len(got)-1], 2)
}

func TestUnsubscribeIdempotent(t *testing.T) {
	s := New()
	calls := 0
	unsub, err := s.Subscribe(store.Query{Collection: "msgs"}, func([]store.Snapshot) { calls++ })
	require.NoError(t, err)

	unsub()
	unsub()

	require.NoError(t, s.Set(context.Background(), "msgs/a", store.Document{"n": 1}))
	assert.Equal(t, 1, calls, "only the initial snapshot was delivered")
}

func TestBatchAtomicVisibility(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "msgs/a", store.Document{"read": false}))
	require.NoError(t, s.Set(ctx, "msgs/b", store.Document{"read": false}))

	var perSnapshot []int
	unsub, err := s.Subscribe(store.Query{Collection: "msgs"}.
		Where("read", store.OpEq, true),
		func(snaps []store.Snapshot) { perSnapshot = append(perSnapshot, len(snaps)) })
	require.NoError(t, err)
	defer unsub()

	batch := s.Batch()
	batch.Update("msgs/a", store.Document{"read": true})
	batch.Update("msgs/b", store.Document{"read": true})
	require.NoError(t, batch.Commit(ctx))

	require.NotEmpty(t, perSnapshot)
	assert.Equal(t, 2, perSnapshot[len(perSnapshot)-1])
	for _, n := range perSnapshot[1:] {
		assert.NotEqual(t, 1, n, "subscribers never observe a half-applied batch")
	}
}

func TestBatchSetAndDelete(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "msgs/old", store.Document{"n": 1}))

	batch := s.Batch()
	batch.Set("msgs/new", store.Document{"n": 2})
	batch.Delete("msgs/old")
	require.NoError(t, batch.Commit(ctx))

	_, err := s.Get(ctx, "msgs/old")
	assert.ErrorIs(t, err, store.ErrNotFound)
	doc, err := s.Get(ctx, "msgs/new")
	require.NoError(t, err)
	assert.Equal(t, 2, doc["n"])
}

func TestInvalidPath(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "nopath")
	assert.Error(t, err)
}
