package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/store"
)

// ErrConversationNotFound is returned when a conversation id resolves to
// nothing.
var ErrConversationNotFound = errors.New("conversation not found")

// ErrNotParticipant is returned when a caller acts on a conversation they
// do not belong to.
var ErrNotParticipant = errors.New("not a participant of this conversation")

// ConversationDirectory wraps the remote store for the list of
// conversations a user participates in, with live subscriptions,
// race-safe get-or-create, and cascading delete.
type ConversationDirectory struct {
	store store.Store
	log   *logger.Logger
}

// NewConversationDirectory creates a directory over s.
func NewConversationDirectory(s store.Store) *ConversationDirectory {
	return &ConversationDirectory{store: s, log: logger.New("chat.directory")}
}

func directoryQuery(userID string) store.Query {
	return store.Query{
		Collection: ConversationsCollection,
		OrderBy:    "last_message.timestamp",
		Desc:       true,
	}.Where("participants", store.OpContains, userID)
}

// Subscribe opens a live subscription on userID's conversation list,
// newest activity first, each entry carrying the denormalized last-message
// preview and unread counters. An undecodable document is skipped, not
// fatal to the whole list.
func (d *ConversationDirectory) Subscribe(userID string, fn func([]*models.Conversation)) (store.Unsubscribe, error) {
	return d.store.Subscribe(directoryQuery(userID), func(snapshots []store.Snapshot) {
		fn(d.decode(snapshots))
	})
}

// List is the one-shot counterpart of Subscribe.
func (d *ConversationDirectory) List(ctx context.Context, userID string) ([]*models.Conversation, error) {
	snapshots, err := d.store.Query(ctx, directoryQuery(userID))
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return d.decode(snapshots), nil
}

func (d *ConversationDirectory) decode(snapshots []store.Snapshot) []*models.Conversation {
	out := make([]*models.Conversation, 0, len(snapshots))
	for _, snap := range snapshots {
		conv, err := models.ConversationFromDocument(snap.ID, snap.Data)
		if err != nil {
			d.log.Warn("skipping undecodable conversation %s: %v", snap.ID, err)
			continue
		}
		out = append(out, conv)
	}
	return out
}

// Get fetches a single conversation by id.
func (d *ConversationDirectory) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	doc, err := d.store.Get(ctx, store.Path(ConversationsCollection, conversationID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return models.ConversationFromDocument(conversationID, doc)
}

// GetOrCreate resolves the conversation between two users, creating it on
// first contact. The deterministic key plus the store's conditional Create
// make concurrent calls from both sides converge on one document: the
// loser of the race reads the winner's conversation instead of inserting a
// duplicate.
func (d *ConversationDirectory) GetOrCreate(ctx context.Context, userA, userB string, details map[string]models.ParticipantDetail) (*models.Conversation, error) {
	id := ConversationKey(userA, userB)
	path := store.Path(ConversationsCollection, id)

	if doc, err := d.store.Get(ctx, path); err == nil {
		return models.ConversationFromDocument(id, doc)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	conv := &models.Conversation{
		ID:                 id,
		Participants:       []string{userA, userB},
		ParticipantDetails: details,
		UnreadCount:        map[string]int{userA: 0, userB: 0},
		CreatedAt:          time.Now().UnixMilli(),
	}
	if conv.ParticipantDetails == nil {
		conv.ParticipantDetails = map[string]models.ParticipantDetail{}
	}

	err := d.store.Create(ctx, path, models.ConversationToDocument(conv))
	if errors.Is(err, store.ErrExists) {
		doc, getErr := d.store.Get(ctx, path)
		if getErr != nil {
			return nil, fmt.Errorf("get conversation after lost create race: %w", getErr)
		}
		return models.ConversationFromDocument(id, doc)
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	d.log.Info("created conversation %s", id)
	return conv, nil
}

// Delete removes a conversation and every message under it in one atomic
// batch, messages first, so a racing get-or-create can never resurrect
// orphaned message documents into a half-alive thread. Irreversible; the
// caller is responsible for user confirmation.
func (d *ConversationDirectory) Delete(ctx context.Context, conversationID string) error {
	snapshots, err := d.store.Query(ctx, store.Query{Collection: MessagesCollection}.
		Where("conversation_id", store.OpEq, conversationID))
	if err != nil {
		return fmt.Errorf("list messages for delete: %w", err)
	}

	batch := d.store.Batch()
	for _, snap := range snapshots {
		batch.Delete(store.Path(MessagesCollection, snap.ID))
	}
	batch.Delete(store.Path(ConversationsCollection, conversationID))
	if err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	d.log.Info("deleted conversation %s and %d messages", conversationID, len(snapshots))
	return nil
}

// SetParticipantDetail refreshes the denormalized profile snapshot for one
// participant, used when a profile changes after the conversation exists.
func (d *ConversationDirectory) SetParticipantDetail(ctx context.Context, conversationID, userID string, detail models.ParticipantDetail) error {
	patch := store.Document{
		"participant_details." + userID: map[string]any{
			"name":       detail.Name,
			"avatar_url": detail.AvatarURL,
			"typing":     detail.Typing,
			"last_seen":  detail.LastSeen,
		},
	}
	return d.store.Update(ctx, store.Path(ConversationsCollection, conversationID), patch)
}
