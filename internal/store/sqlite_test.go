package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notify-agent/internal/model"
	"github.com/nhle/notify-agent/tests/testutil"
)

func TestPendingActionRoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	n := model.Notification{
		ID:        "n1",
		Type:      model.TypeSystemError,
		Priority:  model.PriorityHigh,
		Title:     "disk full",
		Message:   "volume /data at 99%",
		Metadata:  map[string]string{"component": "storage"},
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	a := model.PendingAction{
		ID:           "action_1",
		Type:         model.ActionCreate,
		Notification: &n,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, s.SavePendingAction(ctx, a))

	actions, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	got := actions[0]
	assert.Equal(t, "action_1", got.ID)
	assert.Equal(t, model.ActionCreate, got.Type)
	require.NotNil(t, got.Notification)
	assert.Equal(t, "disk full", got.Notification.Title)
	assert.Equal(t, "storage", got.Notification.Metadata["component"])
}

func TestPendingActionsListedInInsertionOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SavePendingAction(ctx, model.PendingAction{
			ID:        id,
			Type:      model.ActionMarkRead,
			Data:      "n" + id,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	actions, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, "a", actions[0].ID)
	assert.Equal(t, "b", actions[1].ID)
	assert.Equal(t, "c", actions[2].ID)
}

func TestDeletePendingAction(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePendingAction(ctx, model.PendingAction{
		ID: "a", Type: model.ActionMarkRead, Data: "n1", CreatedAt: time.Now(),
	}))
	require.NoError(t, s.DeletePendingAction(ctx, "a"))

	actions, err := s.ListPendingActions(ctx)
	require.NoError(t, err)
	assert.Empty(t, actions)

	// Deleting an id that is already gone is not an error.
	require.NoError(t, s.DeletePendingAction(ctx, "a"))
}

func TestSnapshotReplaceAndGet(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	older := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	newer := time.Now().UTC().Truncate(time.Second)

	first := []model.Notification{
		{ID: "old", Type: model.TypeUserActivity, Priority: model.PriorityLow,
			Title: "t1", Message: "m1", Timestamp: older},
	}
	require.NoError(t, s.ReplaceSnapshot(ctx, first))

	second := []model.Notification{
		{ID: "old", Type: model.TypeUserActivity, Priority: model.PriorityLow,
			Title: "t1", Message: "m1", Timestamp: older},
		{ID: "new", Type: model.TypeUserRegistered, Priority: model.PriorityMedium,
			Title: "t2", Message: "m2", Read: true,
			ActionURL: "/admin/users/7",
			Metadata:  map[string]string{"userId": "7"},
			Timestamp: newer},
	}
	require.NoError(t, s.ReplaceSnapshot(ctx, second))

	got, err := s.GetSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2, "replace swaps the whole snapshot, it never appends")

	// Newest first.
	assert.Equal(t, "new", got[0].ID)
	assert.True(t, got[0].Read)
	assert.Equal(t, "/admin/users/7", got[0].ActionURL)
	assert.Equal(t, "7", got[0].Metadata["userId"])
	assert.Equal(t, "old", got[1].ID)
	assert.False(t, got[1].Read)
}

func TestSnapshotEmptyAfterReplaceWithNothing(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceSnapshot(ctx, []model.Notification{
		{ID: "n1", Type: model.TypeSystemError, Priority: model.PriorityHigh,
			Title: "t", Message: "m", Timestamp: time.Now()},
	}))
	require.NoError(t, s.ReplaceSnapshot(ctx, nil))

	got, err := s.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}
