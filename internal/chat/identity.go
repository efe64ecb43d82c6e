package chat

// Collection names in the remote store.
const (
	ConversationsCollection = "conversations"
	MessagesCollection      = "messages"
)

// ConversationKey derives the deterministic conversation id for a pair of
// participants. The pair is sorted before joining, so either side searching
// for "my conversation with X" resolves the same key and concurrent
// creation by both sides converges on one document.
func ConversationKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}
