package publisher

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/snapline-io/snapline/internal/provider/memory"
	"github.com/snapline-io/snapline/internal/rules"
	"github.com/snapline-io/snapline/pkg/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var asOf = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

// seedBaseline loads the reference scenario: package P1 with lines F1 and F2,
// both currently assigned; F1 has survey and images, F2 has survey only.
func seedBaseline(prov *memory.Provider) {
	prov.SeedPackageLines([]types.PackageLine{
		{ScopePackageID: "P1", FlocID: "F1"},
		{ScopePackageID: "P1", FlocID: "F2"},
	})
	start := asOf.Add(-90 * 24 * time.Hour)
	prov.SeedAssignmentIntervals([]types.AssignmentInterval{
		{FlocID: "F1", ScopePackageID: "P1", EffectiveStart: start},
		{FlocID: "F2", ScopePackageID: "P1", EffectiveStart: start},
	})
	evTs := asOf.Add(-24 * time.Hour)
	prov.SeedEvidence(types.EvidenceSurvey, []types.EvidenceAggregate{
		{ScopePackageID: "P1", FlocID: "F1", Type: types.EvidenceSurvey, Received: true, EvidenceTs: evTs},
		{ScopePackageID: "P1", FlocID: "F2", Type: types.EvidenceSurvey, Received: true, EvidenceTs: evTs},
	})
	prov.SeedEvidence(types.EvidenceImages, []types.EvidenceAggregate{
		{ScopePackageID: "P1", FlocID: "F1", Type: types.EvidenceImages, Received: true, Count: 12, EvidenceTs: evTs},
	})
}

func lineByFloc(lines []types.SnapshotLine, floc string) *types.SnapshotLine {
	for i := range lines {
		if lines[i].FlocID == floc {
			return &lines[i]
		}
	}
	return nil
}

func TestPublish_BaselineScenario(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	res, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)
	require.NotEmpty(t, res.SnapshotID)
	assert.Equal(t, types.SnapshotPublished, res.Status)
	require.Len(t, res.Lines, 2)

	f1 := lineByFloc(res.Lines, "F1")
	require.NotNil(t, f1)
	assert.True(t, f1.ReadyToInvoice)
	assert.Empty(t, f1.BlockerCodes)

	f2 := lineByFloc(res.Lines, "F2")
	require.NotNil(t, f2)
	assert.False(t, f2.ReadyToInvoice)
	assert.Equal(t, []types.BlockerCode{types.BlockMissingImages}, f2.BlockerCodes)

	// Pointer advanced to the new snapshot.
	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, res.SnapshotID, cur.SnapshotID)
	assert.Equal(t, types.SnapshotPublished, cur.Status)

	// Lines and summaries durably committed and audit-traceable.
	stored, err := prov.ListSnapshotLines(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, line := range stored {
		assert.Equal(t, res.SnapshotID, line.SnapshotID)
		assert.True(t, line.AsOfTs.Equal(asOf))
		assert.Equal(t, rules.V1, line.RuleVersion)
	}

	sums, err := prov.ListSnapshotSummaries(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].ReadyCount)
	assert.Equal(t, 1, sums[0].BlockedCount)
	assert.Equal(t, 2, sums[0].LineCount)
}

func TestPublish_LineKeysUnique(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	res, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	seen := map[types.LineKey]bool{}
	for _, line := range res.Lines {
		require.False(t, seen[line.Key()], "duplicate key %v", line.Key())
		seen[line.Key()] = true
	}
}

func TestPublish_Idempotence(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	first, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)
	second, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	assert.NotEqual(t, first.SnapshotID, second.SnapshotID, "each publish mints a new identity")
	require.Len(t, second.Lines, len(first.Lines))
	for i := range first.Lines {
		a, b := first.Lines[i], second.Lines[i]
		assert.Equal(t, a.ScopePackageID, b.ScopePackageID)
		assert.Equal(t, a.FlocID, b.FlocID)
		assert.Equal(t, a.ReadyToInvoice, b.ReadyToInvoice)
		assert.Equal(t, a.Invoiced, b.Invoiced)
		assert.Equal(t, a.Paid, b.Paid)
		assert.Equal(t, a.BlockerCodes, b.BlockerCodes)
	}
}

func TestPublish_LaterInvoiceBlocksLine(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	first, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)
	assert.True(t, lineByFloc(first.Lines, "F1").ReadyToInvoice)

	// F1 appears on an invoice before the next as-of.
	prov.SeedInvoiceLines([]types.InvoiceLineFact{
		{InvoiceID: "INV-1", ScopePackageID: "P1", FlocID: "F1", InvoicedTs: asOf.Add(12 * time.Hour)},
	})
	nextAsOf := asOf.Add(48 * time.Hour)

	second, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: nextAsOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	f1 := lineByFloc(second.Lines, "F1")
	assert.True(t, f1.Invoiced)
	assert.False(t, f1.ReadyToInvoice)
	assert.Equal(t, []types.BlockerCode{types.BlockAlreadyInvoiced}, f1.BlockerCodes)
}

func TestPublish_InvoicedMonotoneAcrossSnapshots(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	prov.SeedInvoiceLines([]types.InvoiceLineFact{
		{InvoiceID: "INV-1", ScopePackageID: "P1", FlocID: "F1", InvoicedTs: asOf.Add(-time.Hour)},
	})
	pub := New(prov, rules.NewRegistry())

	for i := 0; i < 3; i++ {
		res, err := pub.Publish(context.Background(), PublishRequest{
			AsOfTs:      asOf.Add(time.Duration(i) * 24 * time.Hour),
			RuleVersion: rules.V1,
		})
		require.NoError(t, err)
		assert.True(t, lineByFloc(res.Lines, "F1").Invoiced, "snapshot %d", i)
	}
}

func TestPublish_ReassignmentResolvesByAsOf(t *testing.T) {
	prov := memory.New()
	boundary := asOf.Add(-24 * time.Hour)
	prov.SeedPackageLines([]types.PackageLine{
		{ScopePackageID: "P1", FlocID: "F3"},
		{ScopePackageID: "P2", FlocID: "F3"},
	})
	prov.SeedAssignmentIntervals([]types.AssignmentInterval{
		{FlocID: "F3", ScopePackageID: "P1", EffectiveStart: boundary.Add(-90 * 24 * time.Hour), EffectiveEnd: &boundary},
		{FlocID: "F3", ScopePackageID: "P2", EffectiveStart: boundary},
	})
	pub := New(prov, rules.NewRegistry())

	before, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: boundary.Add(-time.Hour), RuleVersion: rules.V1})
	require.NoError(t, err)
	after, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: boundary, RuleVersion: rules.V1})
	require.NoError(t, err)

	find := func(lines []types.SnapshotLine, pkg string) *types.SnapshotLine {
		for i := range lines {
			if lines[i].ScopePackageID == pkg {
				return &lines[i]
			}
		}
		return nil
	}

	assert.NotContains(t, find(before.Lines, "P1").BlockerCodes, types.BlockAssignmentStale)
	assert.Contains(t, find(before.Lines, "P2").BlockerCodes, types.BlockAssignmentStale)

	assert.Contains(t, find(after.Lines, "P1").BlockerCodes, types.BlockAssignmentStale)
	assert.NotContains(t, find(after.Lines, "P2").BlockerCodes, types.BlockAssignmentStale)
}

func TestPublish_DryRunWritesNothing(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	dry, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1, DryRun: true})
	require.NoError(t, err)
	assert.Empty(t, dry.SnapshotID, "dry run mints no persisted identity")
	assert.True(t, dry.DryRun)

	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cur, "dry run must not advance the pointer")

	snaps, err := prov.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, snaps, "dry run must not stage snapshots")

	// Dry run reports the same decisions as a real run.
	real, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)
	require.Len(t, dry.Lines, len(real.Lines))
	for i := range dry.Lines {
		assert.Equal(t, real.Lines[i].ReadyToInvoice, dry.Lines[i].ReadyToInvoice)
		assert.Equal(t, real.Lines[i].BlockerCodes, dry.Lines[i].BlockerCodes)
	}
}

func TestPublish_UnknownRuleVersionFatal(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	_, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: "v99"})
	var unknown *types.RuleVersionUnknown
	require.ErrorAs(t, err, &unknown)

	snaps, err := prov.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, snaps, "fatal validation must abort before any write")
}

func TestPublish_GrainViolationAbortsBeforeWrites(t *testing.T) {
	prov := memory.New()
	prov.SeedPackageLines([]types.PackageLine{
		{ScopePackageID: "P1", FlocID: "F1"},
		{ScopePackageID: "P1", FlocID: "F1"},
	})
	pub := New(prov, rules.NewRegistry())

	_, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	var gv *types.GrainViolation
	require.ErrorAs(t, err, &gv)

	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cur)
	snaps, err := prov.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestPublish_ConcurrentSameWindowConflicts(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	// Hold the window's lease as if another publish were in flight.
	ok, err := prov.AcquireLease(context.Background(), "publish#"+asOf.UTC().Format(time.RFC3339), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.ErrorIs(t, err, types.ErrConcurrentPublish)
}

func TestPublish_ConcurrentDistinctWindowsBothSucceed(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = pub.Publish(context.Background(), PublishRequest{
				AsOfTs:      asOf.Add(time.Duration(i) * time.Hour),
				RuleVersion: rules.V1,
			})
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
}

func TestPublish_OrphanInvoiceSignaledNotFatal(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	prov.SeedInvoiceLines([]types.InvoiceLineFact{
		{InvoiceID: "INV-9", ScopePackageID: "P9", FlocID: "F9", InvoicedTs: asOf.Add(-time.Hour)},
	})
	pub := New(prov, rules.NewRegistry())

	res, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	var orphans []types.Signal
	for _, sig := range res.Signals {
		if sig.Kind == types.SignalOrphanInvoiceLine {
			orphans = append(orphans, sig)
		}
	}
	require.Len(t, orphans, 1)
	assert.Equal(t, "INV-9", orphans[0].InvoiceID)
}

func TestPublish_AlertsCarrySignals(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)

	var mu sync.Mutex
	var alerts []types.Alert
	pub := New(prov, rules.NewRegistry(), WithAlertFunc(func(a types.Alert) {
		mu.Lock()
		defer mu.Unlock()
		alerts = append(alerts, a)
	}))

	_, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	var kinds []string
	for _, a := range alerts {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, "snapshot_published")
	// Deliveries source is empty in the baseline seed.
	assert.Contains(t, kinds, string(types.SignalIngestionIncomplete))
}

// failingSummaryProvider drops summary writes to exercise the deferred
// regeneration path.
type failingSummaryProvider struct {
	*memory.Provider
	failures int
}

func (f *failingSummaryProvider) AppendSnapshotSummaries(ctx context.Context, summaries []types.SnapshotSummary) error {
	if f.failures > 0 {
		f.failures--
		return fmt.Errorf("simulated summary store outage")
	}
	return f.Provider.AppendSnapshotSummaries(ctx, summaries)
}

func TestPublish_SummaryFailureDefersRegeneration(t *testing.T) {
	inner := memory.New()
	seedBaseline(inner)
	prov := &failingSummaryProvider{Provider: inner, failures: 1}
	pub := New(prov, rules.NewRegistry())

	res, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err, "summary failure must not fail the cycle")

	snap, err := prov.GetSnapshot(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, types.SnapshotPublished, snap.Status)
	assert.Equal(t, types.SummaryPendingRegen, snap.SummaryStatus)

	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.SnapshotID, cur.SnapshotID, "pointer still advances")

	sums, err := pub.RegenerateSummaries(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 2, sums[0].LineCount)

	snap, err = prov.GetSnapshot(context.Background(), res.SnapshotID)
	require.NoError(t, err)
	assert.Equal(t, types.SummaryOK, snap.SummaryStatus)
}

// failingLineProvider drops line writes to exercise the FAILED path.
type failingLineProvider struct {
	*memory.Provider
}

func (f *failingLineProvider) AppendSnapshotLines(context.Context, []types.SnapshotLine) error {
	return fmt.Errorf("simulated line store outage")
}

func TestPublish_LineFailureLeavesPointerUnchanged(t *testing.T) {
	inner := memory.New()
	seedBaseline(inner)
	pub := New(inner, rules.NewRegistry())

	good, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	failing := New(&failingLineProvider{Provider: inner}, rules.NewRegistry())
	_, err = failing.Publish(context.Background(), PublishRequest{AsOfTs: asOf.Add(time.Hour), RuleVersion: rules.V1})
	require.Error(t, err)

	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, good.SnapshotID, cur.SnapshotID, "consumers keep seeing the last good snapshot")

	// The failed cycle is recorded for audit.
	snaps, err := inner.ListSnapshots(context.Background(), 0)
	require.NoError(t, err)
	var failed int
	for _, s := range snaps {
		if s.Status == types.SnapshotFailed {
			failed++
		}
	}
	assert.Equal(t, 1, failed)
}

func TestPublish_AuditEventsRecorded(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	res, err := pub.Publish(context.Background(), PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.NoError(t, err)

	events, err := prov.ListEvents(context.Background(), res.SnapshotID, 0)
	require.NoError(t, err)

	var kinds []types.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, types.EventCycleStarted)
	assert.Contains(t, kinds, types.EventCommitStarted)
	assert.Contains(t, kinds, types.EventPointerAdvanced)
	assert.Contains(t, kinds, types.EventSnapshotPublished)
}

func TestPublish_CancelledContextAbortsBeforeCommit(t *testing.T) {
	prov := memory.New()
	seedBaseline(prov)
	pub := New(prov, rules.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pub.Publish(ctx, PublishRequest{AsOfTs: asOf, RuleVersion: rules.V1})
	require.Error(t, err)

	cur, err := pub.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cur)
}
