package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/store"
)

var (
	// ErrNotSender is returned when a caller tries to edit or delete a
	// message they did not author.
	ErrNotSender = errors.New("not the sender of this message")
	// ErrMessageNotFound is returned when a message id resolves to nothing.
	ErrMessageNotFound = errors.New("message not found")
)

// MessageStore wraps the remote store for a single concern: the ordered
// message sequence of a conversation, with live subscriptions, optimistic
// append, and sender-guarded edit/delete.
type MessageStore struct {
	store store.Store
	log   *logger.Logger
}

// NewMessageStore creates a MessageStore over s.
func NewMessageStore(s store.Store) *MessageStore {
	return &MessageStore{store: s, log: logger.New("chat.messages")}
}

func messagesQuery(conversationID string) store.Query {
	return store.Query{Collection: MessagesCollection, OrderBy: "timestamp"}.
		Where("conversation_id", store.OpEq, conversationID)
}

// Subscribe opens a live subscription on a conversation's messages. fn
// receives the full reconciled, ordered sequence on every remote mutation,
// not deltas, so consumers never re-implement merge logic. The returned
// Unsubscribe must be called on teardown; a leaked subscription keeps
// delivering into stale state.
func (m *MessageStore) Subscribe(conversationID string, fn func([]*models.Message)) (store.Unsubscribe, error) {
	rec := newReconciler()
	var mu sync.Mutex
	return m.store.Subscribe(messagesQuery(conversationID), func(snapshots []store.Snapshot) {
		mu.Lock()
		seq := rec.apply(snapshots)
		mu.Unlock()
		fn(seq)
	})
}

// FetchAll is the one-shot ordered read used to hydrate a screen before
// the subscription's first event arrives.
func (m *MessageStore) FetchAll(ctx context.Context, conversationID string) ([]*models.Message, error) {
	snapshots, err := m.store.Query(ctx, messagesQuery(conversationID))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	return newReconciler().apply(snapshots), nil
}

// Append writes a new message. The caller's clock assigns the timestamp at
// call time so an optimistic local copy orders correctly before the store
// confirms; the id is pre-assigned the way a reactive store's document ref
// works, so the message and the conversation's denormalized preview land
// in one atomic batch. The recipient's unread counter advances through a
// store-side increment, so concurrent sends never lose a count.
func (m *MessageStore) Append(ctx context.Context, conversationID string, msg *models.Message) (*models.Message, error) {
	msg.Text = strings.TrimSpace(msg.Text)
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	msg.ConversationID = conversationID
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	msg.ID = uuid.New().String()

	convPath := store.Path(ConversationsCollection, conversationID)
	if _, err := m.store.Get(ctx, convPath); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	batch := m.store.Batch()
	batch.Set(store.Path(MessagesCollection, msg.ID), models.MessageToDocument(msg))
	batch.Update(convPath, store.Document{
		"last_message": map[string]any{
			"text":      msg.Text,
			"timestamp": msg.Timestamp,
			"sender_id": msg.SenderID,
			"read":      false,
		},
		"unread_count." + msg.RecipientID: store.Increment{By: 1},
	})
	if err := batch.Commit(ctx); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return msg, nil
}

// Edit rewrites a message's text. Only the sender may edit; the guard runs
// here as well as at the UI affordance level. When the edited message is
// still the conversation's newest, the denormalized preview follows.
func (m *MessageStore) Edit(ctx context.Context, messageID, userID, newText string) error {
	newText = strings.TrimSpace(newText)
	if newText == "" {
		return models.ErrEmptyText
	}
	msg, err := m.get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}

	patch := store.Document{
		"text":      newText,
		"edited":    true,
		"edited_at": time.Now().UnixMilli(),
	}
	if err := m.store.Update(ctx, store.Path(MessagesCollection, messageID), patch); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}

	convPath := store.Path(ConversationsCollection, msg.ConversationID)
	conv, err := m.store.Get(ctx, convPath)
	if err != nil {
		return nil
	}
	if lm, ok := conv["last_message"].(map[string]any); ok {
		if models.DocString(lm, "sender_id") == msg.SenderID && models.DocInt(lm, "timestamp") == msg.Timestamp {
			if err := m.store.Update(ctx, convPath, store.Document{"last_message.text": newText}); err != nil {
				m.log.Warn("failed to update preview after edit of %s: %v", messageID, err)
			}
		}
	}
	return nil
}

// Remove hard-deletes a message. Only the sender may delete. There is no
// tombstone; the subscription snapshot simply stops including the id.
func (m *MessageStore) Remove(ctx context.Context, messageID, userID string) error {
	msg, err := m.get(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrNotSender
	}
	if err := m.store.Delete(ctx, store.Path(MessagesCollection, messageID)); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (m *MessageStore) get(ctx context.Context, messageID string) (*models.Message, error) {
	doc, err := m.store.Get(ctx, store.Path(MessagesCollection, messageID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return models.MessageFromDocument(messageID, doc)
}
