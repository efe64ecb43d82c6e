package chat

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/learnex/chatengine/internal/logger"
)

// MuteRegistry is the per-recipient notification suppression list,
// persisted locally as a JSON file. It gates only the external push
// channel; in-app delivery through subscriptions is never suppressed.
type MuteRegistry struct {
	path string
	log  *logger.Logger

	mu    sync.Mutex
	muted map[string]bool
}

// NewMuteRegistry loads the registry from path, starting empty when the
// file does not exist yet. An empty path keeps the registry in memory
// only, which tests use.
func NewMuteRegistry(path string) (*MuteRegistry, error) {
	r := &MuteRegistry{
		path:  path,
		log:   logger.New("chat.mute"),
		muted: make(map[string]bool),
	}
	if path == "" {
		return r, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return r, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mute registry: %w", err)
	}
	if err := json.Unmarshal(data, &r.muted); err != nil {
		return nil, fmt.Errorf("decode mute registry: %w", err)
	}
	return r, nil
}

// Toggle flips the mute state for recipientID and returns the new state.
func (r *MuteRegistry) Toggle(recipientID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.muted[recipientID] {
		delete(r.muted, recipientID)
	} else {
		r.muted[recipientID] = true
	}
	state := r.muted[recipientID]
	if err := r.persist(); err != nil {
		return state, err
	}
	r.log.Info("mute for %s now %v", recipientID, state)
	return state, nil
}

// IsMuted reports whether notifications from recipientID are suppressed.
func (r *MuteRegistry) IsMuted(recipientID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted[recipientID]
}

// persist assumes r.mu is held.
func (r *MuteRegistry) persist() error {
	if r.path == "" {
		return nil
	}
	data, err := json.Marshal(r.muted)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, data, 0o600); err != nil {
		return fmt.Errorf("write mute registry: %w", err)
	}
	return nil
}
