package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozma/mailcore/internal/testutil"
)

func TestUpsertSubscriberKeepsTokenStable(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	client := createTestClient(t, pool, "owner@acme.example")

	sub, err := UpsertSubscriber(ctx, pool, client.ID, "ada@example.com", "Ada")
	require.NoError(t, err)
	require.NotEmpty(t, sub.UnsubscribeToken)
	assert.True(t, sub.IsActive)

	// Unsubscribe, then resubscribe: the row reactivates under the same token.
	_, err = DeactivateSubscriberByToken(ctx, pool, sub.UnsubscribeToken)
	require.NoError(t, err)

	again, err := UpsertSubscriber(ctx, pool, client.ID, "ada@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)
	assert.Equal(t, sub.UnsubscribeToken, again.UnsubscribeToken)
	assert.True(t, again.IsActive)
	assert.Equal(t, "Ada", again.Name, "empty name does not clobber the stored one")
}

func TestGetActiveSubscribers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	client := createTestClient(t, pool, "owner@acme.example")
	other := createTestClient(t, pool, "other@acme.example")

	first, err := UpsertSubscriber(ctx, pool, client.ID, "a@example.com", "A")
	require.NoError(t, err)
	_, err = UpsertSubscriber(ctx, pool, client.ID, "b@example.com", "B")
	require.NoError(t, err)
	_, err = UpsertSubscriber(ctx, pool, other.ID, "c@example.com", "C")
	require.NoError(t, err)

	_, err = DeactivateSubscriberByToken(ctx, pool, first.UnsubscribeToken)
	require.NoError(t, err)

	subs, err := GetActiveSubscribers(ctx, pool, client.ID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "b@example.com", subs[0].Email)
}

func TestDeactivateSubscriberByTokenNotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)

	_, err := DeactivateSubscriberByToken(context.Background(), pool, "no-such-token")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}
