package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/learnex/chatengine/internal/chat"
	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/store"
)

// Client message types
const (
	TypeOpen    = "open"
	TypeClose   = "close"
	TypeMessage = "message"
	TypeEdit    = "edit"
	TypeDelete  = "delete"
	TypeTyping  = "typing"
	TypeRead    = "read"
)

// Server push types
const (
	TypeConversations = "conversations"
	TypeMessages      = "messages"
	TypeError         = "error"
)

var log = logger.New("websocket")

// ClientMessage is what a connected UI sends over the socket.
type ClientMessage struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Text           string `json:"text,omitempty"`
	IsTyping       bool   `json:"is_typing,omitempty"`
}

// Envelope is what the server pushes: full current-state sequences, never
// deltas, so the UI renders straight from the payload.
type Envelope struct {
	Type           string                 `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Conversations  []*models.Conversation `json:"conversations,omitempty"`
	Messages       []*models.Message      `json:"messages,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
}

// Client represents one connected UI session: its socket, its live
// conversation-list subscription, and at most one open conversation
// handle. Both subscriptions are torn down when the socket closes.
type Client struct {
	ID     string
	Socket *websocket.Conn
	Send   chan []byte

	engine *chat.Engine

	mu        sync.Mutex
	handle    *chat.ConversationHandle
	listUnsub store.Unsubscribe
}

// Manager maintains the set of active clients
type Manager struct {
	engine     *chat.Engine
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mutex      sync.Mutex
}

// NewManager creates a new websocket manager over the engine.
func NewManager(engine *chat.Engine) *Manager {
	return &Manager{
		engine:     engine,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run starts the websocket manager
func (m *Manager) Run() {
	for {
		select {
		case client := <-m.register:
			m.mutex.Lock()
			m.clients[client.ID] = client
			log.Info("Client connected: %s", client.ID)
			m.mutex.Unlock()
		case client := <-m.unregister:
			m.mutex.Lock()
			if _, ok := m.clients[client.ID]; ok {
				delete(m.clients, client.ID)
				close(client.Send)
				log.Info("Client disconnected: %s", client.ID)
			}
			m.mutex.Unlock()
			client.teardown()
		}
	}
}

// HandleWebSocket upgrades an authenticated request and starts the pumps.
// The auth layer must have placed the caller's userID in the gin context;
// the engine only ever sees that explicit identity.
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	uid, ok := userID.(string)
	if !ok || uid == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// TODO: restrict origins in production deployments
			return true
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	client := &Client{
		ID:     uid,
		Socket: conn,
		Send:   make(chan []byte, 256),
		engine: m.engine,
	}

	unsub, err := m.engine.ListConversations(uid, func(convs []*models.Conversation) {
		client.push(Envelope{Type: TypeConversations, Conversations: convs, Timestamp: time.Now()})
	})
	if err != nil {
		log.Error("Failed to open conversation list for %s: %v", uid, err)
		conn.Close()
		return
	}
	client.listUnsub = unsub

	m.register <- client
	go client.readPump(m)
	go client.writePump()
	log.Info("Client %s connected and ready", client.ID)
}

// push marshals and queues an envelope, dropping the client when its send
// buffer is full rather than blocking a subscription callback.
func (c *Client) push(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Error("Failed to marshal envelope for %s: %v", c.ID, err)
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn("Send buffer full for client %s, dropping frame", c.ID)
	}
}

func (c *Client) pushError(conversationID, msg string) {
	c.push(Envelope{Type: TypeError, ConversationID: conversationID, Error: msg, Timestamp: time.Now()})
}

// teardown releases both subscriptions. Safe to call once the client is
// out of the manager's map.
func (c *Client) teardown() {
	c.mu.Lock()
	handle := c.handle
	c.handle = nil
	unsub := c.listUnsub
	c.listUnsub = nil
	c.mu.Unlock()

	if handle != nil {
		handle.Close()
	}
	if unsub != nil {
		unsub()
	}
}

// readPump pumps messages from the websocket connection into the engine.
func (c *Client) readPump(m *Manager) {
	defer func() {
		log.Debug("Client %s disconnecting, unregistering from manager", c.ID)
		m.unregister <- c
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(64 * 1024)
	c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Info("Client %s closed connection: %v", c.ID, err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			log.Error("Error unmarshaling message from %s: %v", c.ID, err)
			c.pushError("", "Invalid message format")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg ClientMessage) {
	ctx := context.Background()
	switch msg.Type {
	case TypeOpen:
		c.openConversation(ctx, msg.ConversationID)
	case TypeClose:
		c.closeConversation()
	case TypeMessage:
		h := c.currentHandle(msg.ConversationID)
		if h == nil {
			c.pushError(msg.ConversationID, "Conversation is not open")
			return
		}
		h.SetBuffer(msg.Text)
		if err := h.Send(ctx); err != nil {
			c.pushError(msg.ConversationID, err.Error())
		}
	case TypeEdit:
		h := c.currentHandle(msg.ConversationID)
		if h == nil {
			c.pushError(msg.ConversationID, "Conversation is not open")
			return
		}
		if err := h.Edit(ctx, msg.MessageID, msg.Text); err != nil {
			c.pushError(msg.ConversationID, err.Error())
		}
	case TypeDelete:
		h := c.currentHandle(msg.ConversationID)
		if h == nil {
			c.pushError(msg.ConversationID, "Conversation is not open")
			return
		}
		if err := h.Delete(ctx, msg.MessageID); err != nil {
			c.pushError(msg.ConversationID, err.Error())
		}
	case TypeTyping:
		h := c.currentHandle(msg.ConversationID)
		if h != nil {
			h.SetTyping(msg.IsTyping)
		}
	case TypeRead:
		h := c.currentHandle(msg.ConversationID)
		if h == nil {
			c.pushError(msg.ConversationID, "Conversation is not open")
			return
		}
		if err := h.MarkRead(ctx); err != nil {
			c.pushError(msg.ConversationID, err.Error())
		}
	default:
		log.Warn("Unknown message type '%s' from client %s", msg.Type, c.ID)
		c.pushError("", "Unknown message type")
	}
}

// openConversation swaps the client's single open handle. Navigating to a
// new conversation closes the previous subscription first.
func (c *Client) openConversation(ctx context.Context, conversationID string) {
	c.closeConversation()

	h, err := c.engine.OpenConversation(ctx, c.ID, conversationID, func(msgs []*models.Message) {
		c.push(Envelope{
			Type:           TypeMessages,
			ConversationID: conversationID,
			Messages:       msgs,
			Timestamp:      time.Now(),
		})
	})
	if err != nil {
		c.pushError(conversationID, err.Error())
		return
	}

	c.mu.Lock()
	c.handle = h
	c.mu.Unlock()
}

func (c *Client) closeConversation() {
	c.mu.Lock()
	h := c.handle
	c.handle = nil
	c.mu.Unlock()
	if h != nil {
		h.Close()
	}
}

func (c *Client) currentHandle(conversationID string) *chat.ConversationHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == nil || c.handle.ConversationID() != conversationID {
		return nil
	}
	return c.handle
}

// writePump pumps queued frames to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain anything already queued into the same frame
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
