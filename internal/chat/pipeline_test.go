package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxSubmitClearsBuffer(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("  hello world  ")

	text, ok := o.Submit()

	require.True(t, ok)
	assert.Equal(t, "hello world", text)
	assert.Equal(t, "", o.Buffer(), "sent text must never reappear in the compose box")
	assert.Equal(t, StateSending, o.State())
}

func TestOutboxDoubleSubmitIsNoOp(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("first")
	_, ok := o.Submit()
	require.True(t, ok)

	// Double-tap while the first send is in flight
	o.SetBuffer("second")
	_, ok = o.Submit()

	assert.False(t, ok)
	assert.Equal(t, StateSending, o.State())
	assert.Equal(t, "second", o.Buffer(), "a refused submit must not eat the buffer")
}

func TestOutboxEmptyBufferRefused(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("   \t\n")

	_, ok := o.Submit()

	assert.False(t, ok)
	assert.Equal(t, StateComposing, o.State())
}

func TestOutboxCompleteSuccess(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("hello")
	o.Submit()

	o.Complete(nil)

	assert.Equal(t, StateSent, o.State())
	assert.NoError(t, o.LastError())
}

func TestOutboxCompleteFailure(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("hello")
	o.Submit()

	sendErr := errors.New("store unavailable")
	o.Complete(sendErr)

	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, sendErr, o.LastError())
	assert.Equal(t, "", o.Buffer(), "failure does not restore the buffer by contract")
}

func TestOutboxNextSendAfterResolution(t *testing.T) {
	o := NewOutbox()
	o.SetBuffer("first")
	o.Submit()
	o.Complete(nil)

	// No retry loop: the next message is a fresh explicit submit
	o.SetBuffer("second")
	text, ok := o.Submit()

	require.True(t, ok)
	assert.Equal(t, "second", text)
	assert.Equal(t, StateSending, o.State())
}

func TestOutboxCompleteOutsideSendingIgnored(t *testing.T) {
	o := NewOutbox()

	o.Complete(errors.New("stray ack"))

	assert.Equal(t, StateComposing, o.State())
	assert.NoError(t, o.LastError())
}

func TestSendStateString(t *testing.T) {
	assert.Equal(t, "composing", StateComposing.String())
	assert.Equal(t, "sending", StateSending.String())
	assert.Equal(t, "sent", StateSent.String())
	assert.Equal(t, "failed", StateFailed.String())
}
