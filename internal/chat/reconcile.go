package chat

import (
	"sort"

	"github.com/learnex/chatengine/internal/logger"
	"github.com/learnex/chatengine/internal/models"
	"github.com/learnex/chatengine/internal/store"
)

var reconcileLog = logger.New("chat.reconcile")

// reconciler folds full-state snapshots of one conversation's messages into
// an ordered in-memory sequence. Snapshots may arrive out of order and may
// repeat; applying the same snapshot twice yields the identical sequence.
// A document that fails to decode is logged and skipped so one bad message
// cannot blank the whole list.
type reconciler struct {
	byID map[string]*models.Message
}

func newReconciler() *reconciler {
	return &reconciler{byID: make(map[string]*models.Message)}
}

// apply merges a snapshot into the sequence: replace-or-insert by id, drop
// ids absent from the snapshot (it is the full current state), then sort by
// (timestamp, id) ascending.
func (r *reconciler) apply(snapshots []store.Snapshot) []*models.Message {
	seen := make(map[string]bool, len(snapshots))
	for _, snap := range snapshots {
		msg, err := models.MessageFromDocument(snap.ID, snap.Data)
		if err != nil {
			reconcileLog.Warn("skipping undecodable message %s: %v", snap.ID, err)
			continue
		}
		r.byID[msg.ID] = msg
		seen[msg.ID] = true
	}
	for id := range r.byID {
		if !seen[id] {
			delete(r.byID, id)
		}
	}
	return r.sequence()
}

func (r *reconciler) sequence() []*models.Message {
	out := make([]*models.Message, 0, len(r.byID))
	for _, msg := range r.byID {
		out = append(out, msg)
	}
	sortMessages(out)
	return out
}

// sortMessages orders a sequence by timestamp ascending, store id as the
// tie-break, so rapid same-millisecond sends render identically on every
// client.
func sortMessages(msgs []*models.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].Before(msgs[j])
	})
}
