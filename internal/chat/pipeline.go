package chat

import (
	"strings"
	"sync"
)

// SendState is the lifecycle of an outgoing message.
type SendState int

const (
	// StateComposing is local-only: the input buffer, no remote effect.
	StateComposing SendState = iota
	// StateSending means a submit is in flight; further submits are no-ops.
	StateSending
	// StateSent means the store acknowledged the write. The subscription
	// echoes the message back to the sender, so no local insert happens.
	StateSent
	// StateFailed means the store rejected the write. No automatic retry;
	// re-send requires explicit user action.
	StateFailed
)

// String names the state for logs.
func (s SendState) String() string {
	switch s {
	case StateComposing:
		return "composing"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Outbox is the pure send state machine for one conversation's compose
// box, kept free of I/O so the transitions are unit-testable without a
// network. The I/O half lives in ConversationHandle.
type Outbox struct {
	mu      sync.Mutex
	state   SendState
	buffer  string
	lastErr error
}

// NewOutbox starts in StateComposing with an empty buffer.
func NewOutbox() *Outbox {
	return &Outbox{state: StateComposing}
}

// SetBuffer replaces the compose buffer.
func (o *Outbox) SetBuffer(text string) {
	o.mu.Lock()
	o.buffer = text
	o.mu.Unlock()
}

// Buffer returns the current compose buffer.
func (o *Outbox) Buffer() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer
}

// State returns the current lifecycle state.
func (o *Outbox) State() SendState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the error from the most recent failed send.
func (o *Outbox) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Submit transitions Composing→Sending and returns the trimmed buffer
// text. The buffer clears immediately regardless of eventual outcome:
// sent text never reappears in the compose box even if delivery fails.
// A second submit while one is in flight, or a blank buffer, returns
// ok=false and changes nothing remote.
func (o *Outbox) Submit() (text string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSending {
		return "", false
	}
	text = strings.TrimSpace(o.buffer)
	if text == "" {
		return "", false
	}
	o.state = StateSending
	o.buffer = ""
	o.lastErr = nil
	return text, true
}

// Complete resolves the in-flight send: Sending→Sent on nil, Sending→Failed
// otherwise. Either way the outbox is immediately ready to compose again.
func (o *Outbox) Complete(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateSending {
		return
	}
	if err != nil {
		o.state = StateFailed
		o.lastErr = err
		return
	}
	o.state = StateSent
}

// Reset returns a Sent or Failed outbox to Composing for the next message.
func (o *Outbox) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == StateSending {
		return
	}
	o.state = StateComposing
}
