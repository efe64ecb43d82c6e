package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	m := &Message{
		ID:             "m1",
		ConversationID: "alice_bob",
		SenderID:       "alice",
		RecipientID:    "bob",
		Text:           "hello",
		Timestamp:      1700000000000,
		Read:           true,
		Edited:         true,
		EditedAt:       1700000001000,
	}

	decoded, err := MessageFromDocument("m1", MessageToDocument(m))
	require.NoError(t, err)
	assert.Equal(t, m, decoded)
}

func TestMessageDefaults(t *testing.T) {
	decoded, err := MessageFromDocument("m1", map[string]any{
		"sender_id":    "alice",
		"recipient_id": "bob",
		"text":         "hi",
	})
	require.NoError(t, err)
	assert.Zero(t, decoded.Timestamp)
	assert.False(t, decoded.Read)
	assert.False(t, decoded.Edited)
	assert.Zero(t, decoded.EditedAt)
}

func TestMessageNumericTolerance(t *testing.T) {
	// A JSON round-trip turns int64 timestamps into float64.
	decoded, err := MessageFromDocument("m1", map[string]any{
		"sender_id":    "alice",
		"recipient_id": "bob",
		"text":         "hi",
		"timestamp":    float64(1700000000000),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000000), decoded.Timestamp)
}

func TestMessageMalformed(t *testing.T) {
	cases := map[string]map[string]any{
		"missing text":      {"sender_id": "alice", "recipient_id": "bob"},
		"missing sender":    {"recipient_id": "bob", "text": "hi"},
		"missing recipient": {"sender_id": "alice", "text": "hi"},
		"wrong types":       {"sender_id": 7, "recipient_id": true, "text": nil},
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := MessageFromDocument("m1", doc)
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestMessageValidate(t *testing.T) {
	m := &Message{SenderID: "alice", RecipientID: "bob", Text: "hi"}
	require.NoError(t, m.Validate())

	m.Text = "   \t\n"
	assert.ErrorIs(t, m.Validate(), ErrEmptyText)

	m.Text = "hi"
	m.RecipientID = ""
	assert.ErrorIs(t, m.Validate(), ErrMissingParticipant)
}

func TestMessageBefore(t *testing.T) {
	a := &Message{ID: "a", Timestamp: 100}
	b := &Message{ID: "b", Timestamp: 200}
	assert.True(t, a.Before(b))
	assert.False(t, b.Before(a))

	b.Timestamp = 100
	assert.True(t, a.Before(b), "equal timestamps fall back to id order")
	assert.False(t, b.Before(a))
}

func TestConversationRoundTrip(t *testing.T) {
	c := &Conversation{
		ID:           "alice_bob",
		Participants: []string{"alice", "bob"},
		ParticipantDetails: map[string]ParticipantDetail{
			"alice": {Name: "Alice", AvatarURL: "https://x/a.png", Typing: true, LastSeen: 50},
			"bob":   {Name: "Bob"},
		},
		LastMessage: &LastMessage{Text: "hey", Timestamp: 100, SenderID: "alice"},
		UnreadCount: map[string]int{"alice": 0, "bob": 2},
		CreatedAt:   10,
	}

	decoded, err := ConversationFromDocument("alice_bob", ConversationToDocument(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestConversationDefaults(t *testing.T) {
	decoded, err := ConversationFromDocument("alice_bob", map[string]any{
		"participants": []any{"alice", "bob"},
	})
	require.NoError(t, err)
	assert.Nil(t, decoded.LastMessage)
	assert.Empty(t, decoded.UnreadCount)
	assert.Empty(t, decoded.ParticipantDetails)
	assert.Zero(t, decoded.UnreadFor("bob"))
}

func TestConversationParticipantCount(t *testing.T) {
	for name, participants := range map[string]any{
		"none":  []any{},
		"one":   []any{"alice"},
		"three": []any{"alice", "bob", "carol"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ConversationFromDocument("x", map[string]any{"participants": participants})
			assert.ErrorIs(t, err, ErrMalformedDocument)
		})
	}
}

func TestConversationUnreadDecoding(t *testing.T) {
	decoded, err := ConversationFromDocument("alice_bob", map[string]any{
		"participants": []any{"alice", "bob"},
		"unread_count": map[string]any{"bob": float64(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.UnreadFor("bob"))
	assert.Equal(t, 0, decoded.UnreadFor("alice"))
}

func TestConversationHelpers(t *testing.T) {
	c := &Conversation{Participants: []string{"alice", "bob"}}
	assert.Equal(t, "bob", c.OtherParticipant("alice"))
	assert.Equal(t, "alice", c.OtherParticipant("bob"))
	assert.Empty(t, c.OtherParticipant("carol"))
	assert.True(t, c.HasParticipant("alice"))
	assert.False(t, c.HasParticipant("carol"))
}
