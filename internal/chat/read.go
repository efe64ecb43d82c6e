package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/store"
)

// ReadTracker batches the transition of unread inbound messages to read
// and zeroes the reader's unread counter, one atomic batch per pass
// instead of one write per message. A pass is skipped only when the
// unread set is identical to the one the last successful pass already
// handled; timestamps play no part, so a message stamped by a slow
// sender clock still gets marked.
type ReadTracker struct {
	store store.Store
	log   *logger.Logger

	mu      sync.Mutex
	handled map[string]string
}

// NewReadTracker creates a tracker over s.
func NewReadTracker(s store.Store) *ReadTracker {
	return &ReadTracker{
		store:   s,
		log:     logger.New("chat.read"),
		handled: make(map[string]string),
	}
}

// MarkRead flags every unread message addressed to userID in the
// conversation as read and resets unreadCount[userID] to zero, in a single
// batch commit. The caller's own outbound messages are never eligible.
// Called on conversation open and on new inbound messages while open.
func (r *ReadTracker) MarkRead(ctx context.Context, conversationID, userID string) error {
	snapshots, err := r.store.Query(ctx, store.Query{Collection: MessagesCollection}.
		Where("conversation_id", store.OpEq, conversationID).
		Where("recipient_id", store.OpEq, userID).
		Where("read", store.OpEq, false))
	if err != nil {
		return fmt.Errorf("query unread messages: %w", err)
	}
	if len(snapshots) == 0 {
		return nil
	}

	ids := make([]string, len(snapshots))
	for i, snap := range snapshots {
		ids[i] = snap.ID
	}
	sort.Strings(ids)
	fingerprint := strings.Join(ids, ",")

	key := conversationID + "/" + userID
	r.mu.Lock()
	if fingerprint == r.handled[key] {
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()

	batch := r.store.Batch()
	for _, snap := range snapshots {
		batch.Update(store.Path(MessagesCollection, snap.ID), store.Document{"read": true})
	}
	batch.Update(store.Path(ConversationsCollection, conversationID), store.Document{
		"unread_count." + userID: 0,
	})
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	r.mu.Lock()
	r.handled[key] = fingerprint
	r.mu.Unlock()

	r.log.Debug("marked %d messages read in %s for %s", len(snapshots), conversationID, userID)
	return nil
}
