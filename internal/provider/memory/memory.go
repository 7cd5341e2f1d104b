// Package memory implements the Provider interface with in-process maps.
// It backs unit tests and single-process local runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/snapline-io/snapline/internal/provider"
	"github.com/snapline-io/snapline/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*Provider)(nil)

type lease struct {
	expiresAt time.Time
}

// Provider is an in-memory storage backend.
type Provider struct {
	mu sync.RWMutex

	packageLines []types.PackageLine
	intervals    []types.AssignmentInterval
	evidence     map[types.EvidenceType][]types.EvidenceAggregate
	invoices     []types.InvoiceLineFact
	reversals    []types.InvoiceReversal

	snapshots map[string]types.Snapshot
	lines     map[string][]types.SnapshotLine
	summaries map[string][]types.SnapshotSummary
	pointer   *types.CurrentPointer
	leases    map[string]lease
	events    []types.Event

	now func() time.Time
}

// New creates an empty in-memory provider.
func New() *Provider {
	return &Provider{
		evidence:  make(map[types.EvidenceType][]types.EvidenceAggregate),
		snapshots: make(map[string]types.Snapshot),
		lines:     make(map[string][]types.SnapshotLine),
		summaries: make(map[string][]types.SnapshotSummary),
		leases:    make(map[string]lease),
		now:       time.Now,
	}
}

// SeedPackageLines replaces the package-line input relation.
func (p *Provider) SeedPackageLines(lines []types.PackageLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.packageLines = append([]types.PackageLine(nil), lines...)
}

// SeedAssignmentIntervals replaces the assignment-interval input relation.
func (p *Provider) SeedAssignmentIntervals(intervals []types.AssignmentInterval) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intervals = append([]types.AssignmentInterval(nil), intervals...)
}

// SeedEvidence replaces one evidence source.
func (p *Provider) SeedEvidence(et types.EvidenceType, aggs []types.EvidenceAggregate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evidence[et] = append([]types.EvidenceAggregate(nil), aggs...)
}

// SeedInvoiceLines replaces the invoice-fact input relation.
func (p *Provider) SeedInvoiceLines(invoices []types.InvoiceLineFact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.invoices = append([]types.InvoiceLineFact(nil), invoices...)
}

// SeedInvoiceReversals replaces the reversal input relation.
func (p *Provider) SeedInvoiceReversals(reversals []types.InvoiceReversal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reversals = append([]types.InvoiceReversal(nil), reversals...)
}

func (p *Provider) ListPackageLines(_ context.Context) ([]types.PackageLine, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.PackageLine(nil), p.packageLines...), nil
}

func (p *Provider) ListAssignmentIntervals(_ context.Context) ([]types.AssignmentInterval, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.AssignmentInterval(nil), p.intervals...), nil
}

func (p *Provider) ListEvidence(_ context.Context, et types.EvidenceType) ([]types.EvidenceAggregate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.EvidenceAggregate(nil), p.evidence[et]...), nil
}

func (p *Provider) ListInvoiceLines(_ context.Context) ([]types.InvoiceLineFact, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.InvoiceLineFact(nil), p.invoices...), nil
}

func (p *Provider) ListInvoiceReversals(_ context.Context) ([]types.InvoiceReversal, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.InvoiceReversal(nil), p.reversals...), nil
}

func (p *Provider) PutSnapshot(_ context.Context, snap types.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.snapshots[snap.SnapshotID]; ok && existing.Status == types.SnapshotPublished {
		return fmt.Errorf("snapshot %s is published and immutable", snap.SnapshotID)
	}
	p.snapshots[snap.SnapshotID] = snap
	return nil
}

func (p *Provider) GetSnapshot(_ context.Context, snapshotID string) (*types.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	snap, ok := p.snapshots[snapshotID]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", snapshotID, types.ErrSnapshotNotFound)
	}
	return &snap, nil
}

func (p *Provider) ListSnapshots(_ context.Context, limit int) ([]types.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]types.Snapshot, 0, len(p.snapshots))
	for _, snap := range p.snapshots {
		out = append(out, snap)
	}
	// Newest first. ULIDs sort lexicographically by mint time.
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotID > out[j].SnapshotID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *Provider) UpdateSnapshotStatus(_ context.Context, snapshotID string, status types.SnapshotStatus, summaryStatus types.SummaryStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.snapshots[snapshotID]
	if !ok {
		return fmt.Errorf("snapshot %s: %w", snapshotID, types.ErrSnapshotNotFound)
	}
	snap.Status = status
	if summaryStatus != "" {
		snap.SummaryStatus = summaryStatus
	}
	if status == types.SnapshotPublished && snap.PublishedAt == nil {
		now := p.now()
		snap.PublishedAt = &now
	}
	p.snapshots[snapshotID] = snap
	return nil
}

func (p *Provider) AppendSnapshotLines(_ context.Context, lines []types.SnapshotLine) error {
	if len(lines) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := lines[0].SnapshotID
	if snap, ok := p.snapshots[id]; ok && snap.Status == types.SnapshotPublished {
		return fmt.Errorf("snapshot %s is published; lines are write-once", id)
	}
	p.lines[id] = append(p.lines[id], lines...)
	return nil
}

func (p *Provider) ListSnapshotLines(_ context.Context, snapshotID string) ([]types.SnapshotLine, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.SnapshotLine(nil), p.lines[snapshotID]...), nil
}

func (p *Provider) AppendSnapshotSummaries(_ context.Context, summaries []types.SnapshotSummary) error {
	if len(summaries) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := summaries[0].SnapshotID
	p.summaries[id] = append(p.summaries[id], summaries...)
	return nil
}

func (p *Provider) ListSnapshotSummaries(_ context.Context, snapshotID string) ([]types.SnapshotSummary, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.SnapshotSummary(nil), p.summaries[snapshotID]...), nil
}

func (p *Provider) GetCurrentPointer(_ context.Context) (*types.CurrentPointer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pointer == nil {
		return nil, nil
	}
	ptr := *p.pointer
	return &ptr, nil
}

func (p *Provider) SetCurrentPointer(_ context.Context, expectedPrev string, ptr types.CurrentPointer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var current string
	if p.pointer != nil {
		current = p.pointer.SnapshotID
	}
	if current != expectedPrev {
		return fmt.Errorf("pointer at %q, expected %q: %w", current, expectedPrev, types.ErrPointerConflict)
	}
	p.pointer = &ptr
	return nil
}

func (p *Provider) AcquireLease(_ context.Context, key string, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if l, held := p.leases[key]; held && l.expiresAt.After(now) {
		return false, nil
	}
	p.leases[key] = lease{expiresAt: now.Add(ttl)}
	return true, nil
}

func (p *Provider) ReleaseLease(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.leases, key)
	return nil
}

func (p *Provider) AppendEvent(_ context.Context, event types.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *Provider) ListEvents(_ context.Context, snapshotID string, limit int) ([]types.Event, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []types.Event
	for i := len(p.events) - 1; i >= 0; i-- {
		if snapshotID != "" && p.events[i].SnapshotID != snapshotID {
			continue
		}
		out = append(out, p.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (p *Provider) Start(_ context.Context) error { return nil }
func (p *Provider) Stop(_ context.Context) error  { return nil }
func (p *Provider) Ping(_ context.Context) error  { return nil }
