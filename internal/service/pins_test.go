package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
)

func TestPinTwiceUpdatesEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "alice", "bob", "remember")

	first, err := f.svc.Pin(ctx, "alice", m.ID, 1)
	require.NoError(t, err)
	second, err := f.svc.Pin(ctx, "alice", m.ID, 5)
	require.NoError(t, err)
	assert.True(t, second.ExpiresAt.After(first.ExpiresAt))

	stored, _ := f.msgs.Get(ctx, m.ID)
	require.Len(t, stored.PinnedBy, 1)
	assert.Equal(t, "alice", stored.PinnedBy[0].UserID)
	assert.Equal(t, second.ExpiresAt, stored.PinnedBy[0].ExpiresAt)
}

func TestSixthPinRejectedUntilOneExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, f.send(t, "alice", "bob", "m").ID)
	}

	_, err := f.svc.Pin(ctx, "alice", ids[0], 1)
	require.NoError(t, err)
	for _, id := range ids[1:5] {
		_, err := f.svc.Pin(ctx, "bob", id, 3)
		require.NoError(t, err)
	}

	_, err = f.svc.Pin(ctx, "alice", ids[5], 2)
	assert.ErrorIs(t, err, apperr.ErrLimit)

	_, err = f.svc.Pin(ctx, "alice", ids[1], 2)
	assert.ErrorIs(t, err, apperr.ErrLimit, "a second entry on an already pinned message still counts")

	_, err = f.svc.Pin(ctx, "bob", ids[1], 4)
	assert.NoError(t, err, "refreshing one's own pin is allowed at the limit")

	f.clock.Advance(61 * time.Minute)
	_, err = f.svc.Pin(ctx, "alice", ids[5], 2)
	assert.NoError(t, err)
}

func TestExpiredPinIsExcludedAndCleared(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "alice", "bob", "temporary")

	_, err := f.svc.Pin(ctx, "alice", m.ID, 1)
	require.NoError(t, err)

	items, err := f.svc.ListPinned(ctx, "bob", domain.DirectConversation("alice", "bob"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "temporary", items[0].Message.Content)

	f.clock.Advance(61 * time.Minute)
	items, err = f.svc.ListPinned(ctx, "alice", domain.DirectConversation("alice", "bob"))
	require.NoError(t, err)
	assert.Empty(t, items)

	stored, _ := f.msgs.Get(ctx, m.ID)
	assert.Empty(t, stored.PinnedBy)
}

func TestListPinnedOrderAndCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv := domain.DirectConversation("alice", "bob")
	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, f.send(t, "alice", "bob", "m").ID)
	}
	_, err := f.svc.Pin(ctx, "alice", ids[0], 1)
	require.NoError(t, err)
	_, err = f.svc.Pin(ctx, "alice", ids[1], 10)
	require.NoError(t, err)
	_, err = f.svc.Pin(ctx, "bob", ids[1], 3)
	require.NoError(t, err)
	_, err = f.svc.Pin(ctx, "bob", ids[2], 5)
	require.NoError(t, err)

	items, err := f.svc.ListPinned(ctx, "alice", conv)
	require.NoError(t, err)
	require.Len(t, items, 4)
	for i := 1; i < len(items); i++ {
		assert.False(t, items[i].ExpiresAt.After(items[i-1].ExpiresAt))
	}
	assert.Equal(t, ids[1], items[0].Message.ID)
	assert.Equal(t, "alice", items[0].UserID)

	_, err = f.svc.ListPinned(ctx, "carol", conv)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestUnpinRemovesOnlyOwnEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.connect(t, "bob")
	m := f.send(t, "alice", "bob", "both")

	_, err := f.svc.Pin(ctx, "alice", m.ID, 2)
	require.NoError(t, err)
	_, err = f.svc.Pin(ctx, "bob", m.ID, 2)
	require.NoError(t, err)

	require.NoError(t, f.svc.Unpin(ctx, "alice", m.ID))
	stored, _ := f.msgs.Get(ctx, m.ID)
	require.Len(t, stored.PinnedBy, 1)
	assert.Equal(t, "bob", stored.PinnedBy[0].UserID)

	pins := b.named(EventPin)
	require.Len(t, pins, 2)
	assert.True(t, pins[0].(PinEvent).Pinned)
	assert.False(t, pins[1].(PinEvent).Pinned)

	require.NoError(t, f.svc.Unpin(ctx, "alice", m.ID))
}

func TestPinValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := f.send(t, "alice", "bob", "x")

	_, err := f.svc.Pin(ctx, "alice", m.ID, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Pin(ctx, "alice", m.ID, 721)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.Pin(ctx, "carol", m.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorIs(t, f.svc.Unpin(ctx, "carol", m.ID), apperr.ErrUnauthorized)
}
