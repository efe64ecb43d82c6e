package chat

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnex/chatengine/internal/store"
)

func messageSnapshot(id string, ts int64, text string) store.Snapshot {
	return store.Snapshot{
		ID: id,
		Data: store.Document{
			"conversation_id": "alice_bob",
			"sender_id":       "alice",
			"recipient_id":    "bob",
			"text":            text,
			"timestamp":       ts,
			"read":            false,
		},
	}
}

func TestReconcileOrdersByTimestampThenID(t *testing.T) {
	rec := newReconciler()

	// Arrival order deliberately scrambled; m2 and m3 collide on timestamp
	seq := rec.apply([]store.Snapshot{
		messageSnapshot("m3", 200, "third"),
		messageSnapshot("m1", 100, "first"),
		messageSnapshot("m2", 200, "second"),
	})

	require.Len(t, seq, 3)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "m2", seq[1].ID)
	assert.Equal(t, "m3", seq[2].ID)
}

func TestReconcileIdempotentReplay(t *testing.T) {
	rec := newReconciler()
	snapshot := []store.Snapshot{
		messageSnapshot("m1", 100, "first"),
		messageSnapshot("m2", 150, "second"),
	}

	first := rec.apply(snapshot)
	second := rec.apply(snapshot)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestReconcileDropsRemovedMessages(t *testing.T) {
	rec := newReconciler()
	rec.apply([]store.Snapshot{
		messageSnapshot("m1", 100, "first"),
		messageSnapshot("m2", 150, "second"),
	})

	// m1 deleted remotely: the next full snapshot no longer includes it
	seq := rec.apply([]store.Snapshot{
		messageSnapshot("m2", 150, "second"),
	})

	require.Len(t, seq, 1)
	assert.Equal(t, "m2", seq[0].ID)
}

func TestReconcileReplacesEditedMessage(t *testing.T) {
	rec := newReconciler()
	rec.apply([]store.Snapshot{messageSnapshot("m1", 100, "first")})

	seq := rec.apply([]store.Snapshot{messageSnapshot("m1", 100, "first, edited")})

	require.Len(t, seq, 1)
	assert.Equal(t, "first, edited", seq[0].Text)
}

func TestReconcileSkipsMalformedDocuments(t *testing.T) {
	rec := newReconciler()

	seq := rec.apply([]store.Snapshot{
		messageSnapshot("m1", 100, "good"),
		{ID: "bad", Data: store.Document{"timestamp": int64(50)}},
		messageSnapshot("m2", 150, "also good"),
	})

	require.Len(t, seq, 2)
	assert.Equal(t, "m1", seq[0].ID)
	assert.Equal(t, "m2", seq[1].ID)
}

func TestReconcileManyCollidingTimestamps(t *testing.T) {
	rec := newReconciler()
	var snaps []store.Snapshot
	// Rapid successive sends sharing one millisecond
	for i := 9; i >= 0; i-- {
		snaps = append(snaps, messageSnapshot(fmt.Sprintf("m%d", i), 500, "burst"))
	}

	seq := rec.apply(snaps)

	require.Len(t, seq, 10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, fmt.Sprintf("m%d", i), seq[i].ID)
	}
}
