package models

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyText is returned when a message body is empty or whitespace-only.
	ErrEmptyText = errors.New("message text is empty")
	// ErrMissingParticipant is returned when a sender or recipient id is absent.
	ErrMissingParticipant = errors.New("message is missing a participant id")
)

// Message represents a single direct message within a conversation.
// Timestamp is client-assigned at send time, in milliseconds since the
// epoch, and is the primary ordering key; the store-assigned ID breaks ties.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Text           string `json:"text"`
	Timestamp      int64  `json:"timestamp"`
	Read           bool   `json:"read"`
	Edited         bool   `json:"edited,omitempty"`
	EditedAt       int64  `json:"edited_at,omitempty"`
}

// Validate checks a message before it is handed to the store. Blank or
// whitespace-only text never reaches a remote write.
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Text) == "" {
		return ErrEmptyText
	}
	if m.SenderID == "" || m.RecipientID == "" {
		return ErrMissingParticipant
	}
	return nil
}

// Before reports whether m sorts strictly ahead of other in a conversation's
// message sequence: ascending by timestamp, ties broken by id so every
// client converges on the same order.
func (m *Message) Before(other *Message) bool {
	if m.Timestamp != other.Timestamp {
		return m.Timestamp < other.Timestamp
	}
	return m.ID < other.ID
}

// MessageRequest is the structure for message creation requests. The
// recipient is derived from the conversation, never trusted from the body.
type MessageRequest struct {
	Text string `json:"text" binding:"required,min=1"`
}

// EditRequest is the structure for message edit requests.
type EditRequest struct {
	Text string `json:"text" binding:"required,min=1"`
}
