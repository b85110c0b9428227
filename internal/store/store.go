package store

import (
	"context"

	"github.com/nhle/notify-agent/internal/model"
)

// Store defines the durable persistence interface backing the offline
// layer: the pending-action queue survives restarts, and the last
// fetched notification list is kept as a cold-start snapshot.
type Store interface {
	// === Pending actions ===

	SavePendingAction(ctx context.Context, a model.PendingAction) error
	ListPendingActions(ctx context.Context) ([]model.PendingAction, error)
	DeletePendingAction(ctx context.Context, id string) error

	// === Notification snapshot ===

	ReplaceSnapshot(ctx context.Context, notifications []model.Notification) error
	GetSnapshot(ctx context.Context) ([]model.Notification, error)

	Close() error
}
