package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Documents coming back from the remote store are loosely-typed field maps.
// Decoding is centralized here so absent fields become explicit zero values
// instead of scattered nil checks, and a malformed document fails with one
// typed error the caller can skip on.

// ErrMalformedDocument is returned when a stored document cannot be decoded.
var ErrMalformedDocument = errors.New("malformed document")

// MessageToDocument flattens a message into a store document. The id is
// omitted; it lives in the document path.
func MessageToDocument(m *Message) map[string]any {
	doc := map[string]any{
		"conversation_id": m.ConversationID,
		"sender_id":       m.SenderID,
		"recipient_id":    m.RecipientID,
		"text":            m.Text,
		"timestamp":       m.Timestamp,
		"read":            m.Read,
	}
	if m.Edited {
		doc["edited"] = true
		doc["edited_at"] = m.EditedAt
	}
	return doc
}

// MessageFromDocument decodes a store document into a Message. Text and the
// participant ids are required; everything else defaults.
func MessageFromDocument(id string, doc map[string]any) (*Message, error) {
	m := &Message{
		ID:             id,
		ConversationID: docString(doc, "conversation_id"),
		SenderID:       docString(doc, "sender_id"),
		RecipientID:    docString(doc, "recipient_id"),
		Text:           docString(doc, "text"),
		Timestamp:      docInt(doc, "timestamp"),
		Read:           docBool(doc, "read"),
		Edited:         docBool(doc, "edited"),
		EditedAt:       docInt(doc, "edited_at"),
	}
	if m.SenderID == "" || m.RecipientID == "" || m.Text == "" {
		return nil, fmt.Errorf("%w: message %s", ErrMalformedDocument, id)
	}
	return m, nil
}

// ConversationToDocument flattens a conversation into a store document.
func ConversationToDocument(c *Conversation) map[string]any {
	details := map[string]any{}
	for uid, d := range c.ParticipantDetails {
		details[uid] = map[string]any{
			"name":       d.Name,
			"avatar_url": d.AvatarURL,
			"typing":     d.Typing,
			"last_seen":  d.LastSeen,
		}
	}
	unread := map[string]any{}
	for uid, n := range c.UnreadCount {
		unread[uid] = n
	}
	doc := map[string]any{
		"participants":        toAnySlice(c.Participants),
		"participant_details": details,
		"unread_count":        unread,
		"created_at":          c.CreatedAt,
	}
	if c.LastMessage != nil {
		doc["last_message"] = map[string]any{
			"text":      c.LastMessage.Text,
			"timestamp": c.LastMessage.Timestamp,
			"sender_id": c.LastMessage.SenderID,
			"read":      c.LastMessage.Read,
		}
	}
	return doc
}

// ConversationFromDocument decodes a store document into a Conversation.
// A conversation without exactly two participants is malformed.
func ConversationFromDocument(id string, doc map[string]any) (*Conversation, error) {
	c := &Conversation{
		ID:                 id,
		Participants:       docStringSlice(doc, "participants"),
		ParticipantDetails: map[string]ParticipantDetail{},
		UnreadCount:        map[string]int{},
		CreatedAt:          docInt(doc, "created_at"),
	}
	if len(c.Participants) != 2 {
		return nil, fmt.Errorf("%w: conversation %s has %d participants", ErrMalformedDocument, id, len(c.Participants))
	}
	if details, ok := doc["participant_details"].(map[string]any); ok {
		for uid, raw := range details {
			if d, ok := raw.(map[string]any); ok {
				c.ParticipantDetails[uid] = ParticipantDetail{
					Name:      docString(d, "name"),
					AvatarURL: docString(d, "avatar_url"),
					Typing:    docBool(d, "typing"),
					LastSeen:  docInt(d, "last_seen"),
				}
			}
		}
	}
	if unread, ok := doc["unread_count"].(map[string]any); ok {
		for uid, raw := range unread {
			c.UnreadCount[uid] = int(anyInt(raw))
		}
	}
	if lm, ok := doc["last_message"].(map[string]any); ok {
		c.LastMessage = &LastMessage{
			Text:      docString(lm, "text"),
			Timestamp: docInt(lm, "timestamp"),
			SenderID:  docString(lm, "sender_id"),
			Read:      docBool(lm, "read"),
		}
	}
	return c, nil
}

// DocString reads a string field from a raw document, "" when absent.
func DocString(doc map[string]any, key string) string {
	return docString(doc, key)
}

// DocInt reads an integer field from a raw document, tolerating the numeric
// types a JSON or driver round-trip produces; 0 when absent.
func DocInt(doc map[string]any, key string) int64 {
	return docInt(doc, key)
}

func docString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docBool(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

// docInt tolerates the numeric types a JSON or driver round-trip produces.
func docInt(doc map[string]any, key string) int64 {
	return anyInt(doc[key])
}

func anyInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func docStringSlice(doc map[string]any, key string) []string {
	raw, ok := doc[key].([]any)
	if !ok {
		if ss, ok := doc[key].([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
