package notify

import (
	"context"

	"github.com/learnex/chatengine/internal/logger"
)

// InboundMessage is the event handed to the push-notification channel when
// a message lands for a recipient. Preview is the trimmed message text; the
// gateway decides how much of it to surface.
type InboundMessage struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	RecipientID    string `json:"recipient_id"`
	Preview        string `json:"preview"`
}

// Gateway delivers push notifications for inbound messages. The engine
// consults the mute registry before invoking it; implementations never see
// events from muted senders. In-app delivery is not routed through here.
type Gateway interface {
	Deliver(ctx context.Context, msg InboundMessage) error
}

// LogGateway is the default Gateway: it only logs. The real push channel
// is wired by the host application.
type LogGateway struct {
	log *logger.Logger
}

// NewLogGateway creates a LogGateway.
func NewLogGateway() *LogGateway {
	return &LogGateway{log: logger.New("notify")}
}

// Deliver logs the event and succeeds.
func (g *LogGateway) Deliver(ctx context.Context, msg InboundMessage) error {
	g.log.Info("inbound message for %s from %s in %s", msg.RecipientID, msg.SenderID, msg.ConversationID)
	return nil
}
