package chat

import (
	"context"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/notify"
	"github.com/learnex/chatengine/internal/store"
)

// ErrSendInFlight is returned when a submit happens while a previous send
// has not resolved yet. Double-taps are a no-op, not a duplicate message.
var ErrSendInFlight = errors.New("a send is already in flight")

const previewLimit = 96

// Engine is the conversation and message synchronization engine. Identity
// is explicit on every call; the engine never reads the logged-in user
// from ambient state.
type Engine struct {
	store     store.Store
	messages  *MessageStore
	directory *ConversationDirectory
	reads     *ReadTracker
	mutes     *MuteRegistry
	gateway   notify.Gateway
	log       *logger.Logger
}

// NewEngine wires an engine over a remote store, a local mute registry,
// and the external notification gateway.
func NewEngine(s store.Store, mutes *MuteRegistry, gateway notify.Gateway) *Engine {
	return &Engine{
		store:     s,
		messages:  NewMessageStore(s),
		directory: NewConversationDirectory(s),
		reads:     NewReadTracker(s),
		mutes:     mutes,
		gateway:   gateway,
		log:       logger.New("chat.engine"),
	}
}

// Messages exposes the message store for direct use.
func (e *Engine) Messages() *MessageStore { return e.messages }

// Directory exposes the conversation directory for direct use.
func (e *Engine) Directory() *ConversationDirectory { return e.directory }

// ListConversations opens a live subscription on userID's conversation
// list. The caller owns the returned Unsubscribe and must call it on
// teardown.
func (e *Engine) ListConversations(userID string, fn func([]*models.Conversation)) (store.Unsubscribe, error) {
	return e.directory.Subscribe(userID, fn)
}

// Conversations is the one-shot read of userID's conversation list.
func (e *Engine) Conversations(ctx context.Context, userID string) ([]*models.Conversation, error) {
	return e.directory.List(ctx, userID)
}

// GetOrCreateConversation resolves the conversation between userID and
// recipientID, creating it on first contact.
func (e *Engine) GetOrCreateConversation(ctx context.Context, userID, recipientID string, details map[string]models.ParticipantDetail) (*models.Conversation, error) {
	return e.directory.GetOrCreate(ctx, userID, recipientID, details)
}

// DeleteConversation cascades the delete over the message subcollection.
// Only a participant may delete.
func (e *Engine) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	conv, err := e.directory.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return e.directory.Delete(ctx, conversationID)
}

// MarkRead runs one read-receipt pass for userID over the conversation.
func (e *Engine) MarkRead(ctx context.Context, conversationID, userID string) error {
	return e.reads.MarkRead(ctx, conversationID, userID)
}

// MuteToggle flips notification suppression for recipientID and returns
// the new state.
func (e *Engine) MuteToggle(recipientID string) (bool, error) {
	return e.mutes.Toggle(recipientID)
}

// IsMuted reports the current suppression state for recipientID.
func (e *Engine) IsMuted(recipientID string) bool {
	return e.mutes.IsMuted(recipientID)
}

// SendMessage appends a message outside any open handle, for callers that
// do not hold a live subscription. The participant check and the
// notification emit match the handle path.
func (e *Engine) SendMessage(ctx context.Context, userID, conversationID, text string) (*models.Message, error) {
	conv, err := e.directory.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	msg := &models.Message{
		SenderID:    userID,
		RecipientID: conv.OtherParticipant(userID),
		Text:        text,
	}
	sent, err := e.messages.Append(ctx, conversationID, msg)
	if err != nil {
		return nil, err
	}
	e.emitInbound(ctx, sent)
	return sent, nil
}

// emitInbound hands the new-inbound-message event to the notification
// gateway unless the sender is muted. In-app delivery already happened
// through the subscription and is never suppressed here.
func (e *Engine) emitInbound(ctx context.Context, msg *models.Message) {
	if e.gateway == nil {
		return
	}
	if e.mutes != nil && e.mutes.IsMuted(msg.SenderID) {
		e.log.Debug("suppressing notification from muted sender %s", msg.SenderID)
		return
	}
	preview := msg.Text
	if len(preview) > previewLimit {
		cut := previewLimit
		for cut > 0 && !utf8.RuneStart(preview[cut]) {
			cut--
		}
		preview = preview[:cut]
	}
	event := notify.InboundMessage{
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		RecipientID:    msg.RecipientID,
		Preview:        preview,
	}
	if err := e.gateway.Deliver(ctx, event); err != nil {
		e.log.Warn("notification delivery failed for %s: %v", msg.ConversationID, err)
	}
}

// ConversationHandle is an open conversation screen: one live message
// subscription, a compose outbox, and the typing coordinator, all scoped
// to an explicit user. Close tears the subscription down; leaking it
// delivers callbacks into stale UI state after remount.
type ConversationHandle struct {
	engine         *Engine
	conversationID string
	userID         string
	recipientID    string
	outbox         *Outbox
	typing         *TypingCoordinator
	unsub          store.Unsubscribe
	onChange       func([]*models.Message)

	mu     sync.Mutex
	seq    []*models.Message
	closed bool
}

// OpenConversation opens a live handle on a conversation for userID.
// The current sequence is fetched first so onChange fires before the
// subscription's first event, then the subscription keeps it current.
// Opening also runs a read-receipt pass.
func (e *Engine) OpenConversation(ctx context.Context, userID, conversationID string, onChange func([]*models.Message)) (*ConversationHandle, error) {
	conv, err := e.directory.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}

	h := &ConversationHandle{
		engine:         e,
		conversationID: conversationID,
		userID:         userID,
		recipientID:    conv.OtherParticipant(userID),
		outbox:         NewOutbox(),
		typing:         NewTypingCoordinator(e.store, conversationID, userID, 0),
		onChange:       onChange,
	}

	initial, err := e.messages.FetchAll(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	h.replace(initial)

	unsub, err := e.messages.Subscribe(conversationID, h.onSnapshot)
	if err != nil {
		return nil, err
	}
	h.unsub = unsub

	if err := e.reads.MarkRead(ctx, conversationID, userID); err != nil {
		e.log.Warn("read pass on open of %s failed: %v", conversationID, err)
	}
	return h, nil
}

// ConversationID returns the id of the open conversation.
func (h *ConversationHandle) ConversationID() string { return h.conversationID }

// RecipientID returns the other participant.
func (h *ConversationHandle) RecipientID() string { return h.recipientID }

// Outbox exposes the compose state machine for the UI layer.
func (h *ConversationHandle) Outbox() *Outbox { return h.outbox }

// Messages returns the last known-good ordered sequence.
func (h *ConversationHandle) Messages() []*models.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*models.Message, len(h.seq))
	copy(out, h.seq)
	return out
}

func (h *ConversationHandle) onSnapshot(msgs []*models.Message) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq = msgs
	h.mu.Unlock()
	h.deliver(msgs)

	// New inbound messages while the screen is open get read-receipted
	// immediately; the tracker skips passes it has already handled.
	for _, m := range msgs {
		if m.RecipientID == h.userID && !m.Read {
			if err := h.engine.reads.MarkRead(context.Background(), h.conversationID, h.userID); err != nil {
				h.engine.log.Warn("read pass on inbound for %s failed: %v", h.conversationID, err)
			}
			break
		}
	}
}

func (h *ConversationHandle) deliver(msgs []*models.Message) {
	if h.onChange != nil {
		h.onChange(msgs)
	}
}

// SetBuffer mirrors the compose box into the outbox and feeds the typing
// debounce.
func (h *ConversationHandle) SetBuffer(text string) {
	h.outbox.SetBuffer(text)
	h.typing.InputChanged(text != "")
}

// Send submits the compose buffer. The buffer clears immediately; failure
// surfaces as a returned error with no automatic retry. No optimistic
// local insert ever happens, so the delivered sequence stays untouched
// until the subscription echo carries the new message back.
func (h *ConversationHandle) Send(ctx context.Context) error {
	text, ok := h.outbox.Submit()
	if !ok {
		if h.outbox.State() == StateSending {
			return ErrSendInFlight
		}
		return models.ErrEmptyText
	}
	h.typing.Stop(ctx)

	msg := &models.Message{
		SenderID:    h.userID,
		RecipientID: h.recipientID,
		Text:        text,
	}
	sent, err := h.engine.messages.Append(ctx, h.conversationID, msg)
	h.outbox.Complete(err)
	if err != nil {
		return err
	}
	h.engine.emitInbound(ctx, sent)
	return nil
}

// Edit optimistically rewrites a message's text in the local sequence,
// then confirms remotely. A rejection restores the exact pre-edit text so
// nothing is silently lost even if the user already navigated away.
func (h *ConversationHandle) Edit(ctx context.Context, messageID, newText string) error {
	h.mu.Lock()
	var target *models.Message
	for _, m := range h.seq {
		if m.ID == messageID {
			target = m
			break
		}
	}
	if target == nil {
		h.mu.Unlock()
		return ErrMessageNotFound
	}
	if target.SenderID != h.userID {
		h.mu.Unlock()
		return ErrNotSender
	}
	prev := *target
	target.Text = newText
	target.Edited = true
	snapshot := h.copySeqLocked()
	h.mu.Unlock()
	h.deliver(snapshot)

	if err := h.engine.messages.Edit(ctx, messageID, h.userID, newText); err != nil {
		h.mu.Lock()
		*target = prev
		rollback := h.copySeqLocked()
		h.mu.Unlock()
		h.deliver(rollback)
		return err
	}
	return nil
}

// Delete optimistically drops the message from the local sequence, then
// confirms remotely, reinstating it if the store rejects.
func (h *ConversationHandle) Delete(ctx context.Context, messageID string) error {
	h.mu.Lock()
	prev := h.seq
	var target *models.Message
	next := make([]*models.Message, 0, len(h.seq))
	for _, m := range h.seq {
		if m.ID == messageID {
			target = m
			continue
		}
		next = append(next, m)
	}
	if target == nil {
		h.mu.Unlock()
		return ErrMessageNotFound
	}
	if target.SenderID != h.userID {
		h.mu.Unlock()
		return ErrNotSender
	}
	h.seq = next
	h.mu.Unlock()
	h.deliver(next)

	if err := h.engine.messages.Remove(ctx, messageID, h.userID); err != nil {
		h.mu.Lock()
		h.seq = prev
		h.mu.Unlock()
		h.deliver(prev)
		return err
	}
	return nil
}

// SetTyping drives the typing flag directly, for UI layers that manage
// their own compose buffer.
func (h *ConversationHandle) SetTyping(active bool) {
	h.typing.InputChanged(active)
}

// MarkRead runs a read-receipt pass for the open conversation.
func (h *ConversationHandle) MarkRead(ctx context.Context) error {
	return h.engine.reads.MarkRead(ctx, h.conversationID, h.userID)
}

// Close clears the typing flag and tears down the subscription. In-flight
// sends already dispatched complete in the background. Idempotent.
func (h *ConversationHandle) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	h.typing.Close(context.Background())
	if h.unsub != nil {
		h.unsub()
	}
}

func (h *ConversationHandle) replace(msgs []*models.Message) {
	h.mu.Lock()
	h.seq = msgs
	h.mu.Unlock()
	h.deliver(msgs)
}

// copySeqLocked assumes h.mu is held.
func (h *ConversationHandle) copySeqLocked() []*models.Message {
	out := make([]*models.Message, len(h.seq))
	copy(out, h.seq)
	return out
}
