package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/notify"
	"github.com/learnex/chatengine/internal/store"
	"github.com/learnex/chatengine/internal/store/memory"
)

var errTransient = errors.New("store unavailable")

// MockGateway records notification deliveries.
type MockGateway struct {
	mock.Mock
}

func (g *MockGateway) Deliver(ctx context.Context, msg notify.InboundMessage) error {
	args := g.Called(ctx, msg)
	return args.Error(0)
}

// failingStore wraps a working store and injects transient failures on
// selected operations, for rollback tests.
type failingStore struct {
	store.Store
	failUpdate bool
	failDelete bool
}

func (f *failingStore) Update(ctx context.Context, path string, patch store.Document) error {
	if f.failUpdate {
		return errTransient
	}
	return f.Store.Update(ctx, path, patch)
}

func (f *failingStore) Delete(ctx context.Context, path string) error {
	if f.failDelete {
		return errTransient
	}
	return f.Store.Delete(ctx, path)
}

func newTestRegistry(t *testing.T) *MuteRegistry {
	t.Helper()
	reg, err := NewMuteRegistry("")
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, s store.Store, gateway notify.Gateway) *Engine {
	t.Helper()
	return NewEngine(s, newTestRegistry(t), gateway)
}

// seedConversation creates the alice/bob conversation and returns it.
func seedConversation(t *testing.T, e *Engine) *models.Conversation {
	t.Helper()
	conv, err := e.GetOrCreateConversation(context.Background(), "alice", "bob", map[string]models.ParticipantDetail{
		"alice": {Name: "Alice"},
		"bob":   {Name: "Bob"},
	})
	require.NoError(t, err)
	return conv
}

func newMemoryEngine(t *testing.T) (*Engine, *memory.MemoryStore) {
	t.Helper()
	s := memory.New()
	return newTestEngine(t, s, nil), s
}
