// Package grain builds the canonical (package, FLOC) spine and resolves
// assignment state as of a timestamp.
package grain

import (
	"fmt"
	"sort"
	"time"

	"github.com/snapline-io/snapline/pkg/types"
)

// BuildSpine validates the line and interval inputs and returns one spine row
// per awarded (package, FLOC), with assignment resolved as of asOf.
//
// A line whose FLOC has no interval covering asOf stays on the spine flagged
// AssignmentUnresolved — it was awarded, so dropping it would hide work from
// the vendor. A line whose covering interval names a different package is
// flagged stale rather than current.
func BuildSpine(lines []types.PackageLine, intervals []types.AssignmentInterval, asOf time.Time) ([]types.SpineRow, error) {
	if err := checkLineGrain(lines); err != nil {
		return nil, err
	}
	byFloc, err := indexIntervals(intervals)
	if err != nil {
		return nil, err
	}

	rows := make([]types.SpineRow, 0, len(lines))
	for _, line := range lines {
		row := types.SpineRow{
			ScopePackageID: line.ScopePackageID,
			FlocID:         line.FlocID,
		}
		cur := resolveAt(byFloc[line.FlocID], asOf)
		switch {
		case cur == nil:
			row.AssignmentUnresolved = true
		case cur.ScopePackageID == line.ScopePackageID:
			row.AssignmentCurrent = true
		}
		rows = append(rows, row)
	}

	// Deterministic output order regardless of input order.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ScopePackageID != rows[j].ScopePackageID {
			return rows[i].ScopePackageID < rows[j].ScopePackageID
		}
		return rows[i].FlocID < rows[j].FlocID
	})
	return rows, nil
}

// ResolveAssignment returns the interval covering asOf for a FLOC, or nil.
// Interval containment is half-open: [start, end).
func ResolveAssignment(intervals []types.AssignmentInterval, flocID string, asOf time.Time) (*types.AssignmentInterval, error) {
	byFloc, err := indexIntervals(intervals)
	if err != nil {
		return nil, err
	}
	return resolveAt(byFloc[flocID], asOf), nil
}

// ValidateIntervals checks the no-overlap invariant for every FLOC. It runs
// before every resolution query; a violation means upstream data corruption
// that must be fixed, not papered over.
func ValidateIntervals(intervals []types.AssignmentInterval) error {
	_, err := indexIntervals(intervals)
	return err
}

func checkLineGrain(lines []types.PackageLine) error {
	seen := make(map[types.LineKey]struct{}, len(lines))
	for _, line := range lines {
		k := line.Key()
		if _, dup := seen[k]; dup {
			return &types.GrainViolation{
				Relation: "package_line",
				Key:      fmt.Sprintf("(%s, %s)", k.ScopePackageID, k.FlocID),
				Detail:   "duplicate line in one package version",
			}
		}
		seen[k] = struct{}{}
	}
	return nil
}

// indexIntervals groups intervals per FLOC sorted by start and enforces the
// no-overlap / single-open-end invariant.
func indexIntervals(intervals []types.AssignmentInterval) (map[string][]types.AssignmentInterval, error) {
	byFloc := make(map[string][]types.AssignmentInterval)
	for _, iv := range intervals {
		byFloc[iv.FlocID] = append(byFloc[iv.FlocID], iv)
	}

	for flocID, ivs := range byFloc {
		sort.Slice(ivs, func(i, j int) bool { return ivs[i].EffectiveStart.Before(ivs[j].EffectiveStart) })
		for i := 1; i < len(ivs); i++ {
			prev, cur := ivs[i-1], ivs[i]
			if prev.EffectiveEnd == nil || cur.EffectiveStart.Before(*prev.EffectiveEnd) {
				return nil, &types.GrainViolation{
					Relation: "assignment_interval",
					Key:      flocID,
					Detail: (&types.OverlapError{
						FlocID: flocID,
						A:      prev.EffectiveStart,
						B:      cur.EffectiveStart,
					}).Error(),
				}
			}
		}
		byFloc[flocID] = ivs
	}
	return byFloc, nil
}

func resolveAt(ivs []types.AssignmentInterval, asOf time.Time) *types.AssignmentInterval {
	for i := range ivs {
		if ivs[i].Contains(asOf) {
			return &ivs[i]
		}
	}
	return nil
}
