package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnex/chatengine/internal/chat"
	"github.com/learnex/chatengine/internal/models"
)

// ConversationHandler handles conversation-level routes.
type ConversationHandler struct {
	Engine *chat.Engine
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(engine *chat.Engine) *ConversationHandler {
	return &ConversationHandler{Engine: engine}
}

// conversationRequest is the body for get-or-create.
type conversationRequest struct {
	RecipientID   string `json:"recipient_id" binding:"required"`
	Name          string `json:"name,omitempty"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	RecipientName string `json:"recipient_name,omitempty"`
}

// GetOrCreate resolves the conversation between the caller and a
// recipient, creating it on first contact. Idempotent: both sides calling
// simultaneously still end up with one conversation.
func (h *ConversationHandler) GetOrCreate(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req conversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RecipientID == userID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot open a conversation with yourself"})
		return
	}

	details := map[string]models.ParticipantDetail{
		userID:          {Name: req.Name, AvatarURL: req.AvatarURL},
		req.RecipientID: {Name: req.RecipientName},
	}
	conv, err := h.Engine.GetOrCreateConversation(c.Request.Context(), userID, req.RecipientID, details)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, conv)
}

// List returns the caller's conversations, newest activity first, each
// annotated with the last-message preview and the caller's unread count.
func (h *ConversationHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	convs, err := h.Engine.Conversations(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, convs)
}

// Delete removes a conversation and cascades over its messages. The
// client is expected to have confirmed with the user; this is
// irreversible.
func (h *ConversationHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conversationID := c.Param("conversationID")
	err := h.Engine.DeleteConversation(c.Request.Context(), userID, conversationID)
	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	case errors.Is(err, chat.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": "Not a participant"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted"})
	}
}

// MarkRead runs a read-receipt pass for the caller over a conversation.
func (h *ConversationHandler) MarkRead(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	conversationID := c.Param("conversationID")
	if err := h.Engine.MarkRead(c.Request.Context(), conversationID, userID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation marked as read"})
}

// MuteToggle flips notification suppression for a recipient and returns
// the new state. Only the push channel is affected; messages still arrive.
func (h *ConversationHandler) MuteToggle(c *gin.Context) {
	if _, ok := callerID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	recipientID := c.Param("recipientID")
	muted, err := h.Engine.MuteToggle(recipientID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recipient_id": recipientID, "muted": muted})
}
