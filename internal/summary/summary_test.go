package summary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snapline-io/snapline/pkg/types"
)

func sl(pkg, floc string, ready, invoiced, paid bool) types.SnapshotLine {
	return types.SnapshotLine{
		SnapshotID:     "S1",
		ScopePackageID: pkg,
		FlocID:         floc,
		ReadyToInvoice: ready,
		Invoiced:       invoiced,
		Paid:           paid,
	}
}

func TestRollup(t *testing.T) {
	lines := []types.SnapshotLine{
		sl("P1", "F1", true, false, false),
		sl("P1", "F2", false, false, false),
		sl("P1", "F3", false, true, true),
		sl("P2", "F4", true, false, false),
	}

	got := Rollup(lines)
	require.Len(t, got, 2)

	p1 := got[0]
	assert.Equal(t, "P1", p1.ScopePackageID)
	assert.Equal(t, 3, p1.LineCount)
	assert.Equal(t, 1, p1.ReadyCount)
	assert.Equal(t, 2, p1.BlockedCount)
	assert.Equal(t, 1, p1.InvoicedCount)
	assert.Equal(t, 1, p1.PaidCount)
	assert.InDelta(t, 1.0/3.0, p1.ReadyRate, 1e-9)

	p2 := got[1]
	assert.Equal(t, "P2", p2.ScopePackageID)
	assert.Equal(t, 1, p2.LineCount)
	assert.Equal(t, 1.0, p2.ReadyRate)
}

func TestRollup_Empty(t *testing.T) {
	assert.Empty(t, Rollup(nil))
}

func TestRollup_CountsAreConsistent(t *testing.T) {
	lines := []types.SnapshotLine{
		sl("P1", "F1", true, false, false),
		sl("P1", "F2", false, true, false),
	}
	got := Rollup(lines)
	require.Len(t, got, 1)
	assert.Equal(t, got[0].LineCount, got[0].ReadyCount+got[0].BlockedCount)
}
