// Package providertest provides shared conformance tests for
// provider.Provider implementations. Call RunAll from a test function to
// verify a backend satisfies the behavioral contract the publisher relies on.
package providertest

import (
	"testing"

	"github.com/snapline-io/snapline/internal/provider"
)

// RunAll runs the complete provider conformance suite as subtests.
func RunAll(t *testing.T, prov provider.Provider) {
	t.Helper()

	t.Run("SnapshotPutGet", func(t *testing.T) { TestSnapshotPutGet(t, prov) })
	t.Run("SnapshotStatusFlow", func(t *testing.T) { TestSnapshotStatusFlow(t, prov) })
	t.Run("LinesAppendAndList", func(t *testing.T) { TestLinesAppendAndList(t, prov) })
	t.Run("LinesWriteOnce", func(t *testing.T) { TestLinesWriteOnce(t, prov) })
	t.Run("SummariesAppendAndList", func(t *testing.T) { TestSummariesAppendAndList(t, prov) })
	t.Run("PointerSwap", func(t *testing.T) { TestPointerSwap(t, prov) })
	t.Run("PointerConflict", func(t *testing.T) { TestPointerConflict(t, prov) })
	t.Run("LeaseMutualExclusion", func(t *testing.T) { TestLeaseMutualExclusion(t, prov) })
	t.Run("LeaseExpiry", func(t *testing.T) { TestLeaseExpiry(t, prov) })
	t.Run("EventAppendAndList", func(t *testing.T) { TestEventAppendAndList(t, prov) })
}
