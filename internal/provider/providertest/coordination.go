package providertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/internal/provider"
	"github.com/snapline-io/snapline/pkg/types"
)

// TestPointerSwap verifies the empty-to-set and set-to-set conditional swaps.
func TestPointerSwap(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	before, err := prov.GetCurrentPointer(ctx)
	require.NoError(t, err)
	var prev string
	if before != nil {
		prev = before.SnapshotID
	}

	err = prov.SetCurrentPointer(ctx, prev, types.CurrentPointer{SnapshotID: "ct-ptr-1", UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)

	got, err := prov.GetCurrentPointer(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ct-ptr-1", got.SnapshotID)

	err = prov.SetCurrentPointer(ctx, "ct-ptr-1", types.CurrentPointer{SnapshotID: "ct-ptr-2", UpdatedAt: time.Now().UTC()})
	require.NoError(t, err)

	got, err = prov.GetCurrentPointer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ct-ptr-2", got.SnapshotID)
}

// TestPointerConflict verifies a stale expected value is rejected.
func TestPointerConflict(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	before, err := prov.GetCurrentPointer(ctx)
	require.NoError(t, err)
	var prev string
	if before != nil {
		prev = before.SnapshotID
	}
	require.NoError(t, prov.SetCurrentPointer(ctx, prev, types.CurrentPointer{SnapshotID: "ct-ptr-base", UpdatedAt: time.Now().UTC()}))

	err = prov.SetCurrentPointer(ctx, "ct-ptr-stale", types.CurrentPointer{SnapshotID: "ct-ptr-lost", UpdatedAt: time.Now().UTC()})
	require.ErrorIs(t, err, types.ErrPointerConflict)

	got, err := prov.GetCurrentPointer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ct-ptr-base", got.SnapshotID, "failed swap must leave pointer unchanged")
}

// TestLeaseMutualExclusion verifies at most one holder per key.
func TestLeaseMutualExclusion(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	ok, err := prov.AcquireLease(ctx, "ct-lease-mx", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = prov.AcquireLease(ctx, "ct-lease-mx", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held must fail")

	require.NoError(t, prov.ReleaseLease(ctx, "ct-lease-mx"))

	ok, err = prov.AcquireLease(ctx, "ct-lease-mx", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "acquire after release must succeed")
	require.NoError(t, prov.ReleaseLease(ctx, "ct-lease-mx"))
}

// TestLeaseExpiry verifies a lease frees itself after its TTL.
func TestLeaseExpiry(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	ok, err := prov.AcquireLease(ctx, "ct-lease-ttl", 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(100 * time.Millisecond)

	ok, err = prov.AcquireLease(ctx, "ct-lease-ttl", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lease must be acquirable")
	require.NoError(t, prov.ReleaseLease(ctx, "ct-lease-ttl"))
}

// TestEventAppendAndList verifies audit events append and filter by snapshot.
func TestEventAppendAndList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	for i, kind := range []types.EventKind{types.EventCycleStarted, types.EventCommitStarted, types.EventSnapshotPublished} {
		require.NoError(t, prov.AppendEvent(ctx, types.Event{
			Kind:       kind,
			SnapshotID: "ct-ev-snap",
			Timestamp:  time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, prov.AppendEvent(ctx, types.Event{
		Kind:       types.EventCycleFailed,
		SnapshotID: "ct-ev-other",
		Timestamp:  time.Now().UTC(),
	}))

	events, err := prov.ListEvents(ctx, "ct-ev-snap", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for _, ev := range events {
		assert.Equal(t, "ct-ev-snap", ev.SnapshotID)
	}

	limited, err := prov.ListEvents(ctx, "ct-ev-snap", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}
