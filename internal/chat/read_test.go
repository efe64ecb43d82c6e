package chat

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/store"
	"github.com/learnex/chatengine/internal/store/memory"
)

// countingStore counts committed batches to observe write amplification.
type countingStore struct {
	store.Store
	mu      sync.Mutex
	commits int
}

func (c *countingStore) Batch() store.Batch {
	return &countingBatch{Batch: c.Store.Batch(), owner: c}
}

type countingBatch struct {
	store.Batch
	owner *countingStore
}

func (b *countingBatch) Commit(ctx context.Context) error {
	b.owner.mu.Lock()
	b.owner.commits++
	b.owner.mu.Unlock()
	return b.Batch.Commit(ctx)
}

func (c *countingStore) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

func TestMarkReadUnreadAccounting(t *testing.T) {
	e, _ := newMemoryEngine(t)
	conv := seedConversation(t, e)
	ctx := context.Background()

	// N inbound for bob plus one of bob's own outbound
	for i := int64(1); i <= 5; i++ {
		_, err := e.Messages().Append(ctx, conv.ID, &models.Message{
			SenderID: "alice", RecipientID: "bob", Text: "inbound", Timestamp: i * 10,
		})
		require.NoError(t, err)
	}
	own, err := e.Messages().Append(ctx, conv.ID, &models.Message{
		SenderID: "bob", RecipientID: "alice", Text: "outbound", Timestamp: 60,
	})
	require.NoError(t, err)

	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))

	msgs, err := e.Messages().FetchAll(ctx, conv.ID)
	require.NoError(t, err)
	for _, m := range msgs {
		if m.ID == own.ID {
			assert.False(t, m.Read, "the reader's own outbound message is never flagged")
			continue
		}
		assert.True(t, m.Read, "inbound message %s flagged read", m.ID)
	}

	refreshed, err := e.Directory().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.UnreadFor("bob"))
	assert.Equal(t, 1, refreshed.UnreadFor("alice"), "alice's counter belongs to alice's own read pass")
}

func TestMarkReadNoUnreadIsNoWrite(t *testing.T) {
	base := memory.New()
	counting := &countingStore{Store: base}
	e := newTestEngine(t, counting, nil)
	conv := seedConversation(t, e)
	ctx := context.Background()

	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))
	assert.Equal(t, 0, counting.Commits(), "nothing unread, nothing written")
}

func TestMarkReadRedundantPassWritesNothing(t *testing.T) {
	base := memory.New()
	counting := &countingStore{Store: base}
	e := newTestEngine(t, counting, nil)
	conv := seedConversation(t, e)
	ctx := context.Background()

	_, err := e.Messages().Append(ctx, conv.ID, &models.Message{
		SenderID: "alice", RecipientID: "bob", Text: "hi", Timestamp: 100,
	})
	require.NoError(t, err)

	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))
	first := counting.Commits()
	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))

	assert.Equal(t, first, counting.Commits(), "second pass with no new inbound writes nothing")
}

func TestMarkReadHandlesOlderTimestamps(t *testing.T) {
	e, _ := newMemoryEngine(t)
	conv := seedConversation(t, e)
	ctx := context.Background()

	// A sender with a slow clock stamps the second message earlier than
	// the first. Eligibility is membership in the unread set, never a
	// timestamp comparison against a previous pass.
	_, err := e.Messages().Append(ctx, conv.ID, &models.Message{
		SenderID: "alice", RecipientID: "bob", Text: "first", Timestamp: 200,
	})
	require.NoError(t, err)
	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))

	_, err = e.Messages().Append(ctx, conv.ID, &models.Message{
		SenderID: "alice", RecipientID: "bob", Text: "second", Timestamp: 150,
	})
	require.NoError(t, err)
	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))

	msgs, err := e.Messages().FetchAll(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.True(t, m.Read, "message %q flagged read despite the older timestamp", m.Text)
	}

	refreshed, err := e.Directory().Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed.UnreadFor("bob"))
}

func TestMarkReadBatchesSingleCommit(t *testing.T) {
	base := memory.New()
	counting := &countingStore{Store: base}
	e := newTestEngine(t, counting, nil)
	conv := seedConversation(t, e)
	ctx := context.Background()

	for i := int64(1); i <= 20; i++ {
		_, err := e.Messages().Append(ctx, conv.ID, &models.Message{
			SenderID: "alice", RecipientID: "bob", Text: "bulk", Timestamp: i,
		})
		require.NoError(t, err)
	}

	before := counting.Commits()
	require.NoError(t, e.MarkRead(ctx, conv.ID, "bob"))
	assert.Equal(t, before+1, counting.Commits(), "20 unread messages resolve in one batch commit")
}
