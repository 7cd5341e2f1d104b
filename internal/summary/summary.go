// Package summary rolls snapshot lines up to per-package health counts.
package summary

import (
	"sort"

	"github.com/snapline-io/snapline/pkg/types"
)

// Rollup aggregates committed snapshot lines by scope package. Pure function;
// it runs after commit and can be retried against the stored lines at any
// time to regenerate summaries.
func Rollup(lines []types.SnapshotLine) []types.SnapshotSummary {
	byPkg := make(map[string]*types.SnapshotSummary)
	for _, line := range lines {
		s, ok := byPkg[line.ScopePackageID]
		if !ok {
			s = &types.SnapshotSummary{
				SnapshotID:     line.SnapshotID,
				ScopePackageID: line.ScopePackageID,
			}
			byPkg[line.ScopePackageID] = s
		}
		s.LineCount++
		if line.ReadyToInvoice {
			s.ReadyCount++
		} else {
			s.BlockedCount++
		}
		if line.Invoiced {
			s.InvoicedCount++
		}
		if line.Paid {
			s.PaidCount++
		}
	}

	out := make([]types.SnapshotSummary, 0, len(byPkg))
	for _, s := range byPkg {
		if s.LineCount > 0 {
			s.ReadyRate = float64(s.ReadyCount) / float64(s.LineCount)
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScopePackageID < out[j].ScopePackageID })
	return out
}
