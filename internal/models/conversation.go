package models

// ParticipantDetail is the denormalized profile snapshot kept on a
// conversation for each participant, so the conversation list renders
// without a second lookup. Typing is ephemeral and written by the
// participant it describes.
type ParticipantDetail struct {
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Typing    bool   `json:"typing,omitempty"`
	LastSeen  int64  `json:"last_seen,omitempty"`
}

// LastMessage is the denormalized preview of a conversation's newest
// message, kept in sync by every message write.
type LastMessage struct {
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	SenderID  string `json:"sender_id"`
	Read      bool   `json:"read"`
}

// Conversation is the 1:1 thread container between two participants.
// Participants is immutable after creation and always holds exactly two
// user ids. UnreadCount maps each participant to the number of inbound
// messages they have not read.
type Conversation struct {
	ID                 string                       `json:"id"`
	Participants       []string                     `json:"participants"`
	ParticipantDetails map[string]ParticipantDetail `json:"participant_details"`
	LastMessage        *LastMessage                 `json:"last_message,omitempty"`
	UnreadCount        map[string]int               `json:"unread_count"`
	CreatedAt          int64                        `json:"created_at"`
}

// OtherParticipant returns the participant that is not userID, or "" when
// userID is not part of the conversation.
func (c *Conversation) OtherParticipant(userID string) string {
	if !c.HasParticipant(userID) {
		return ""
	}
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// HasParticipant reports whether userID is one of the two participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// UnreadFor returns the unread counter for userID, treating an absent
// entry as zero.
func (c *Conversation) UnreadFor(userID string) int {
	if c.UnreadCount == nil {
		return 0
	}
	return c.UnreadCount[userID]
}
