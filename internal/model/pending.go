package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ActionType identifies the kind of deferred mutation held in the
// pending-action queue.
type ActionType string

const (
	ActionMarkRead    ActionType = "mark_read"
	ActionMarkAllRead ActionType = "mark_all_read"
	ActionCreate      ActionType = "create"
	ActionDelete      ActionType = "delete"
)

// PendingAction is a mutation that has not yet been confirmed by the
// backend. It lives in the queue while the client is offline or while
// the request is failing, and is removed on confirmed success.
type PendingAction struct {
	ID   string     `json:"id"`
	Type ActionType `json:"type"`
	// Data holds the action payload: the notification id for mark_read
	// and delete, empty for mark_all_read, and the full notification
	// for create (set in Notification instead).
	Data         string        `json:"data,omitempty"`
	Notification *Notification `json:"notification,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// NewPendingAction builds a queued action with a fresh id and timestamp.
func NewPendingAction(t ActionType, data string, n *Notification) PendingAction {
	return PendingAction{
		ID:           fmt.Sprintf("action_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		Type:         t,
		Data:         data,
		Notification: n,
		CreatedAt:    time.Now(),
	}
}
