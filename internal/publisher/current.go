package publisher

import (
	"context"
	"fmt"

	"github.com/snapline-io/snapline/internal/metrics"
	"github.com/snapline-io/snapline/internal/summary"
	"github.com/snapline-io/snapline/pkg/types"
)

// Current returns the snapshot the current pointer references, or nil before
// the first successful publish. Pure read; published data is immutable, so no
// locking is needed.
func (p *Publisher) Current(ctx context.Context) (*types.Snapshot, error) {
	ptr, err := p.provider.GetCurrentPointer(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading current pointer: %w", err)
	}
	if ptr == nil {
		return nil, nil
	}
	snap, err := p.provider.GetSnapshot(ctx, ptr.SnapshotID)
	if err != nil {
		return nil, fmt.Errorf("loading current snapshot %s: %w", ptr.SnapshotID, err)
	}
	return snap, nil
}

// RegenerateSummaries recomputes and commits the per-package rollup for a
// snapshot whose summary step failed after its lines were durably committed.
// Safe to retry: the rollup is a pure function of the stored lines.
func (p *Publisher) RegenerateSummaries(ctx context.Context, snapshotID string) ([]types.SnapshotSummary, error) {
	snap, err := p.provider.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.Status != types.SnapshotPublished {
		return nil, fmt.Errorf("snapshot %s is %s; only published snapshots get summaries regenerated", snapshotID, snap.Status)
	}
	if snap.SummaryStatus != types.SummaryPendingRegen {
		return nil, fmt.Errorf("snapshot %s summaries are not pending regeneration", snapshotID)
	}

	lines, err := p.provider.ListSnapshotLines(ctx, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("loading lines for %s: %w", snapshotID, err)
	}
	summaries := summary.Rollup(lines)

	if err := p.provider.AppendSnapshotSummaries(ctx, summaries); err != nil {
		return nil, fmt.Errorf("committing regenerated summaries: %w", err)
	}
	if err := p.provider.UpdateSnapshotStatus(ctx, snapshotID, types.SnapshotPublished, types.SummaryOK); err != nil {
		return nil, fmt.Errorf("clearing pending-regen mark: %w", err)
	}
	p.appendEvent(ctx, types.Event{
		Kind: types.EventSummaryRegenerated, SnapshotID: snapshotID,
		Details:   map[string]interface{}{"summaries": len(summaries)},
		Timestamp: p.now().UTC(),
	})
	metrics.SummariesRegenerated.Add(1)
	return summaries, nil
}
