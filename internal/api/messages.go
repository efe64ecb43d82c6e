package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnex/chatengine/internal/chat"
	"github.com/learnex/chatengine/internal/models"
)

// MessageHandler handles message-related routes.
type MessageHandler struct {
	Engine *chat.Engine
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(engine *chat.Engine) *MessageHandler {
	return &MessageHandler{Engine: engine}
}

// List returns the ordered message sequence of a conversation, the
// one-shot hydration read a client runs before its subscription settles.
func (h *MessageHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conversationID := c.Param("conversationID")
	conv, err := h.Engine.Directory().Get(c.Request.Context(), conversationID)
	if errors.Is(err, chat.ErrConversationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
		return
	}

	messages, err := h.Engine.Messages().FetchAll(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, messages)
}

// Send appends a message to a conversation on the caller's behalf.
func (h *MessageHandler) Send(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID := c.Param("conversationID")
	sent, err := h.Engine.SendMessage(c.Request.Context(), userID, conversationID, req.Text)
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
	case errors.Is(err, models.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is empty"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusCreated, sent)
	}
}

// Edit rewrites the text of one of the caller's own messages.
func (h *MessageHandler) Edit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req models.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messageID := c.Param("messageID")
	err := h.Engine.Messages().Edit(c.Request.Context(), messageID, userID, req.Text)
	switch {
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, chat.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender may edit a message"})
	case errors.Is(err, models.ErrEmptyText):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message text is empty"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Message updated"})
	}
}

// Delete removes one of the caller's own messages. Hard delete, no
// tombstone.
func (h *MessageHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	messageID := c.Param("messageID")
	err := h.Engine.Messages().Remove(c.Request.Context(), messageID, userID)
	switch {
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, chat.ErrNotSender):
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the sender may delete a message"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
	}
}

// typingRequest is the body for the typing flag endpoint.
type typingRequest struct {
	IsTyping bool `json:"is_typing"`
}

// SetTyping writes the caller's typing flag directly. Socket clients get
// the debounced path instead; this endpoint exists for thin REST clients.
func (h *MessageHandler) SetTyping(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req typingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conversationID := c.Param("conversationID")
	detailPatch := models.ParticipantDetail{Typing: req.IsTyping}
	conv, err := h.Engine.Directory().Get(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		return
	}
	if !conv.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
		return
	}
	existing := conv.ParticipantDetails[userID]
	detailPatch.Name = existing.Name
	detailPatch.AvatarURL = existing.AvatarURL
	detailPatch.LastSeen = existing.LastSeen
	if err := h.Engine.Directory().SetParticipantDetail(c.Request.Context(), conversationID, userID, detailPatch); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Typing state updated"})
}
