package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"SignalFlow/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOutbox(t *testing.T) (*OutboxStore, *GormTransactor) {
	db := newTestDB(t)
	return NewOutboxStore(db), &GormTransactor{db: db}
}

func newMessage(t *testing.T, eventType string) *models.OutboxMessage {
	t.Helper()
	msg, err := models.NewOutboxMessage(eventType, "BTCUSDT", map[string]string{"symbol": "BTCUSDT"})
	require.NoError(t, err)
	return msg
}

func addCommitted(t *testing.T, store *OutboxStore, tx *GormTransactor, msg *models.OutboxMessage) {
	t.Helper()
	require.NoError(t, inTx(t, tx, func(ctx context.Context) error {
		return store.Add(ctx, msg)
	}))
}

func TestOutboxAddRequiresTransaction(t *testing.T) {
	store, _ := newOutbox(t)

	err := store.Add(context.Background(), newMessage(t, models.EventSignalGenerated))
	assert.ErrorIs(t, err, models.ErrOutsideTransaction)
}

func TestOutboxAddRolledBackIsNeverReturned(t *testing.T) {
	store, tx := newOutbox(t)
	boom := errors.New("business write failed")

	err := inTx(t, tx, func(ctx context.Context) error {
		require.NoError(t, store.Add(ctx, newMessage(t, models.EventTradeExecuted)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	msgs, err := store.GetUnprocessed(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestOutboxRoundTripUntilProcessed(t *testing.T) {
	store, tx := newOutbox(t)
	ctx := context.Background()
	msg := newMessage(t, models.EventSignalGenerated)
	addCommitted(t, store, tx, msg)

	for i := 0; i < 2; i++ {
		msgs, err := store.GetUnprocessed(ctx, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, msg.ID, msgs[0].ID)
		assert.Equal(t, models.OutboxPending, msgs[0].Status)
		assert.JSONEq(t, `{"symbol":"BTCUSDT"}`, string(msgs[0].Payload))
	}

	require.NoError(t, store.MarkStatus(ctx, msg.ID, models.OutboxProcessing))
	require.NoError(t, store.MarkProcessed(ctx, msg.ID))

	msgs, err := store.GetUnprocessed(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxProcessed, got.Status)
	require.NotNil(t, got.ProcessedAt)
}

func TestOutboxGetUnprocessedOldestFirst(t *testing.T) {
	store, tx := newOutbox(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	var msgs []*models.OutboxMessage
	for i := 0; i < 3; i++ {
		msg := newMessage(t, models.EventSignalGenerated)
		msg.CreatedAt = base.Add(time.Duration(i) * time.Second)
		msgs = append(msgs, msg)
	}
	// insert newest first
	for i := len(msgs) - 1; i >= 0; i-- {
		addCommitted(t, store, tx, msgs[i])
	}

	got, err := store.GetUnprocessed(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, msgs[0].ID, got[0].ID)
	assert.Equal(t, msgs[1].ID, got[1].ID)
}

func TestOutboxMissingIDIsNotFound(t *testing.T) {
	store, _ := newOutbox(t)
	ctx := context.Background()

	_, err := store.IncrementRetry(ctx, "missing", "boom")
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, store.MarkProcessed(ctx, "missing"), models.ErrNotFound)
	assert.ErrorIs(t, store.MarkStatus(ctx, "missing", models.OutboxFailed), models.ErrNotFound)
}

func TestOutboxTransitions(t *testing.T) {
	store, tx := newOutbox(t)
	ctx := context.Background()
	msg := newMessage(t, models.EventTradeRejected)
	addCommitted(t, store, tx, msg)

	// Pending cannot go back to Pending.
	assert.ErrorIs(t, store.MarkStatus(ctx, msg.ID, models.OutboxPending), models.ErrInvalidTransition)
	// Outcomes need a claim first.
	assert.ErrorIs(t, store.MarkProcessed(ctx, msg.ID), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkStatus(ctx, msg.ID, models.OutboxFailed), models.ErrInvalidTransition)

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutboxPending, got.Status)

	require.NoError(t, store.MarkStatus(ctx, msg.ID, models.OutboxProcessing))
	require.NoError(t, store.MarkStatus(ctx, msg.ID, models.OutboxPending))
	require.NoError(t, store.MarkStatus(ctx, msg.ID, models.OutboxProcessing))
	require.NoError(t, store.MarkStatus(ctx, msg.ID, models.OutboxFailed))

	// Failed is terminal.
	assert.ErrorIs(t, store.MarkStatus(ctx, msg.ID, models.OutboxProcessing), models.ErrInvalidTransition)
	assert.ErrorIs(t, store.MarkProcessed(ctx, msg.ID), models.ErrInvalidTransition)

	failed, err := store.ListFailed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, msg.ID, failed[0].ID)
}

func TestOutboxIncrementRetry(t *testing.T) {
	store, tx := newOutbox(t)
	ctx := context.Background()
	msg := newMessage(t, models.EventSignalGenerated)
	addCommitted(t, store, tx, msg)

	for want := 1; want <= 3; want++ {
		n, err := store.IncrementRetry(ctx, msg.ID, "broker down")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	got, err := store.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	assert.Equal(t, "broker down", got.LastError)
}

func TestOutboxResetStale(t *testing.T) {
	store, tx := newOutbox(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	stuck := newMessage(t, models.EventSignalGenerated)
	fresh := newMessage(t, models.EventSignalGenerated)
	addCommitted(t, store, tx, stuck)
	addCommitted(t, store, tx, fresh)
	require.NoError(t, store.MarkStatus(ctx, stuck.ID, models.OutboxProcessing))

	now = now.Add(2 * time.Minute)
	require.NoError(t, store.MarkStatus(ctx, fresh.ID, models.OutboxProcessing))

	n, err := store.ResetStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	msgs, err := store.GetUnprocessed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, stuck.ID, msgs[0].ID)
}
