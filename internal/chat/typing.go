package chat

import (
	"context"
	"sync"
	"time"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/store"
)

// DefaultTypingDebounce is the idle window after the last keystroke before
// the typing flag is written remotely. One write per pause, not one per
// keystroke.
const DefaultTypingDebounce = 500 * time.Millisecond

// TypingCoordinator debounces the ephemeral typing flag one participant
// broadcasts into a conversation's participant details. The flag is not
// cleared automatically on disconnect: Stop must be called when the screen
// loses focus or a message is sent, or stale "typing" indicators persist
// on the other side.
type TypingCoordinator struct {
	store          store.Store
	conversationID string
	userID         string
	debounce       time.Duration
	log            *logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	gen     int
	current bool
	closed  bool
}

// NewTypingCoordinator creates a coordinator for one user in one
// conversation. A zero debounce selects DefaultTypingDebounce.
func NewTypingCoordinator(s store.Store, conversationID, userID string, debounce time.Duration) *TypingCoordinator {
	if debounce <= 0 {
		debounce = DefaultTypingDebounce
	}
	return &TypingCoordinator{
		store:          s,
		conversationID: conversationID,
		userID:         userID,
		debounce:       debounce,
		log:            logger.New("chat.typing"),
	}
}

// InputChanged restarts the debounce window on every local keystroke.
// When the window elapses the flag is written once: true while the buffer
// holds text, false when it was cleared.
func (t *TypingCoordinator) InputChanged(hasText bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	gen := t.gen
	t.timer = time.AfterFunc(t.debounce, func() {
		t.write(gen, hasText)
	})
}

// Stop cancels any pending write and clears the remote flag, for a sent
// message or a blurred compose field. The coordinator stays usable: the
// next InputChanged starts a fresh debounce window.
func (t *TypingCoordinator) Stop(ctx context.Context) {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.gen++
	wasTyping := t.current
	t.mu.Unlock()

	if !wasTyping {
		return
	}
	t.writeFlag(ctx, false)
}

// Close stops the coordinator for good when the conversation handle is
// torn down. Further InputChanged calls are ignored. Safe to call
// repeatedly.
func (t *TypingCoordinator) Close(ctx context.Context) {
	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	if alreadyClosed {
		return
	}
	t.Stop(ctx)
}

func (t *TypingCoordinator) write(gen int, v bool) {
	t.mu.Lock()
	if t.closed || gen != t.gen || t.current == v {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.writeFlag(context.Background(), v)
}

func (t *TypingCoordinator) writeFlag(ctx context.Context, v bool) {
	patch := store.Document{"participant_details." + t.userID + ".typing": v}
	if err := t.store.Update(ctx, store.Path(ConversationsCollection, t.conversationID), patch); err != nil {
		t.log.Warn("failed to write typing=%v for %s: %v", v, t.userID, err)
		return
	}
	t.mu.Lock()
	t.current = v
	t.mu.Unlock()
}
