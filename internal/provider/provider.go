// Package provider defines the storage backend interface for Snapline.
package provider

import (
	"context"
	"time"

	"github.com/snapline-io/snapline/pkg/types"
)

// Provider is the storage backend interface. The memory backend serves tests
// and local runs; DynamoDB and Postgres are the durable backends.
//
// Inputs are conformed relations produced by external ingestion; Snapline only
// ever reads them. Snapshot lines and summaries are append-only: backends must
// reject or ignore mutation of committed rows.
type Provider interface {
	// Conformed input relations (read-only)
	ListPackageLines(ctx context.Context) ([]types.PackageLine, error)
	ListAssignmentIntervals(ctx context.Context) ([]types.AssignmentInterval, error)
	ListEvidence(ctx context.Context, evidenceType types.EvidenceType) ([]types.EvidenceAggregate, error)
	ListInvoiceLines(ctx context.Context) ([]types.InvoiceLineFact, error)
	ListInvoiceReversals(ctx context.Context) ([]types.InvoiceReversal, error)

	// Snapshot store — write-once records addressed by snapshot ID
	PutSnapshot(ctx context.Context, snap types.Snapshot) error
	GetSnapshot(ctx context.Context, snapshotID string) (*types.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]types.Snapshot, error)
	UpdateSnapshotStatus(ctx context.Context, snapshotID string, status types.SnapshotStatus, summaryStatus types.SummaryStatus) error
	AppendSnapshotLines(ctx context.Context, lines []types.SnapshotLine) error
	ListSnapshotLines(ctx context.Context, snapshotID string) ([]types.SnapshotLine, error)
	AppendSnapshotSummaries(ctx context.Context, summaries []types.SnapshotSummary) error
	ListSnapshotSummaries(ctx context.Context, snapshotID string) ([]types.SnapshotSummary, error)

	// Current pointer. GetCurrentPointer returns nil before the first publish.
	// SetCurrentPointer is a conditional swap: it fails with
	// types.ErrPointerConflict unless the stored value still matches
	// expectedPrev ("" meaning unset).
	GetCurrentPointer(ctx context.Context) (*types.CurrentPointer, error)
	SetCurrentPointer(ctx context.Context, expectedPrev string, ptr types.CurrentPointer) error

	// Exclusive publish lease keyed by as-of window
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string) error

	// Event log — append-only audit trail
	AppendEvent(ctx context.Context, event types.Event) error
	ListEvents(ctx context.Context, snapshotID string, limit int) ([]types.Event, error)

	// Lifecycle
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Ping(ctx context.Context) error
}
