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

var asOf = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func snapshot(id string) types.Snapshot {
	return types.Snapshot{
		SnapshotID:  id,
		AsOfTs:      asOf,
		RuleVersion: "v1",
		Status:      types.SnapshotDraft,
		CreatedAt:   time.Now().UTC(),
	}
}

// TestSnapshotPutGet verifies put, get, and not-found behavior.
func TestSnapshotPutGet(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutSnapshot(ctx, snapshot("ct-snap-pg")))

	got, err := prov.GetSnapshot(ctx, "ct-snap-pg")
	require.NoError(t, err)
	assert.Equal(t, "ct-snap-pg", got.SnapshotID)
	assert.Equal(t, types.SnapshotDraft, got.Status)
	assert.True(t, got.AsOfTs.Equal(asOf))

	_, err = prov.GetSnapshot(ctx, "ct-nonexistent")
	require.ErrorIs(t, err, types.ErrSnapshotNotFound)
}

// TestSnapshotStatusFlow verifies DRAFT -> COMMITTING -> PUBLISHED transitions
// and that PublishedAt is stamped.
func TestSnapshotStatusFlow(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutSnapshot(ctx, snapshot("ct-snap-flow")))
	require.NoError(t, prov.UpdateSnapshotStatus(ctx, "ct-snap-flow", types.SnapshotCommitting, ""))
	require.NoError(t, prov.UpdateSnapshotStatus(ctx, "ct-snap-flow", types.SnapshotPublished, types.SummaryOK))

	got, err := prov.GetSnapshot(ctx, "ct-snap-flow")
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotPublished, got.Status)
	assert.Equal(t, types.SummaryOK, got.SummaryStatus)
	assert.NotNil(t, got.PublishedAt)
}

// TestLinesAppendAndList verifies line append and per-snapshot listing.
func TestLinesAppendAndList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutSnapshot(ctx, snapshot("ct-snap-lines")))
	lines := []types.SnapshotLine{
		{SnapshotID: "ct-snap-lines", ScopePackageID: "P1", FlocID: "F1", ReadyToInvoice: true, AsOfTs: asOf, RuleVersion: "v1"},
		{SnapshotID: "ct-snap-lines", ScopePackageID: "P1", FlocID: "F2", BlockerCodes: []types.BlockerCode{types.BlockMissingImages}, AsOfTs: asOf, RuleVersion: "v1"},
	}
	require.NoError(t, prov.AppendSnapshotLines(ctx, lines))

	got, err := prov.ListSnapshotLines(ctx, "ct-snap-lines")
	require.NoError(t, err)
	require.Len(t, got, 2)

	other, err := prov.ListSnapshotLines(ctx, "ct-snap-other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// TestLinesWriteOnce verifies a published snapshot's lines cannot grow.
func TestLinesWriteOnce(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutSnapshot(ctx, snapshot("ct-snap-wo")))
	require.NoError(t, prov.AppendSnapshotLines(ctx, []types.SnapshotLine{
		{SnapshotID: "ct-snap-wo", ScopePackageID: "P1", FlocID: "F1", AsOfTs: asOf, RuleVersion: "v1"},
	}))
	require.NoError(t, prov.UpdateSnapshotStatus(ctx, "ct-snap-wo", types.SnapshotPublished, types.SummaryOK))

	err := prov.AppendSnapshotLines(ctx, []types.SnapshotLine{
		{SnapshotID: "ct-snap-wo", ScopePackageID: "P1", FlocID: "F2", AsOfTs: asOf, RuleVersion: "v1"},
	})
	require.Error(t, err)

	got, err := prov.ListSnapshotLines(ctx, "ct-snap-wo")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// TestSummariesAppendAndList verifies summary append and listing.
func TestSummariesAppendAndList(t *testing.T, prov provider.Provider) {
	ctx := context.Background()

	require.NoError(t, prov.PutSnapshot(ctx, snapshot("ct-snap-sum")))
	require.NoError(t, prov.AppendSnapshotSummaries(ctx, []types.SnapshotSummary{
		{SnapshotID: "ct-snap-sum", ScopePackageID: "P1", ReadyCount: 1, BlockedCount: 2, LineCount: 3},
	}))

	got, err := prov.ListSnapshotSummaries(ctx, "ct-snap-sum")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].LineCount)
}
