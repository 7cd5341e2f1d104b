// Package publisher orchestrates eligibility publish cycles.
//
// A cycle moves DRAFT -> COMMITTING -> PUBLISHED or FAILED. All computation
// happens in DRAFT with nothing written; the commit step runs under an
// exclusive lease keyed by the as-of window and either publishes completely or
// leaves the current pointer untouched.
package publisher

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/snapline-io/snapline/internal/billing"
	"github.com/snapline-io/snapline/internal/evidence"
	"github.com/snapline-io/snapline/internal/grain"
	"github.com/snapline-io/snapline/internal/metrics"
	"github.com/snapline-io/snapline/internal/provider"
	"github.com/snapline-io/snapline/internal/rules"
	"github.com/snapline-io/snapline/internal/summary"
	"github.com/snapline-io/snapline/pkg/types"
)

// DefaultLeaseTTL bounds how long a crashed publisher can block the next
// attempt for the same as-of window.
const DefaultLeaseTTL = 5 * time.Minute

const pointerSwapRetries = 3

// PublishRequest describes one publish cycle.
type PublishRequest struct {
	AsOfTs      time.Time
	RuleVersion types.RuleVersion
	// DryRun computes and validates everything but writes nothing and mints
	// no snapshot identity.
	DryRun bool
}

// PublishResult is the outcome of a publish cycle. SnapshotID is empty on
// dry runs.
type PublishResult struct {
	SnapshotID string
	Status     types.SnapshotStatus
	DryRun     bool
	Lines      []types.SnapshotLine
	Summaries  []types.SnapshotSummary
	Signals    []types.Signal
}

// Publisher runs publish cycles against a storage provider.
type Publisher struct {
	provider  provider.Provider
	registry  *rules.Registry
	alertFn   func(types.Alert)
	logger    *slog.Logger
	tracer    trace.Tracer
	cycles    metric.Int64Counter
	published metric.Int64Counter
	minImages int
	leaseTTL  time.Duration

	entropyMu sync.Mutex
	entropy   *ulid.MonotonicEntropy
	now       func() time.Time
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAlertFunc sets the notification callback.
func WithAlertFunc(fn func(types.Alert)) Option {
	return func(p *Publisher) { p.alertFn = fn }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// WithMinImages sets the image-count threshold for count-gated evidence.
func WithMinImages(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.minImages = n
		}
	}
}

// WithLeaseTTL sets the publish lease TTL.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(p *Publisher) {
		if ttl > 0 {
			p.leaseTTL = ttl
		}
	}
}

// New creates a Publisher.
func New(prov provider.Provider, registry *rules.Registry, opts ...Option) *Publisher {
	p := &Publisher{
		provider:  prov,
		registry:  registry,
		logger:    slog.Default(),
		tracer:    otel.Tracer("snapline/publisher"),
		minImages: evidence.DefaultMinImages,
		leaseTTL:  DefaultLeaseTTL,
		entropy:   ulid.Monotonic(rand.Reader, 0),
		now:       time.Now,
	}
	meter := otel.Meter("snapline/publisher")
	p.cycles, _ = meter.Int64Counter("snapline.publish.cycles",
		metric.WithDescription("Publish cycles by outcome"))
	p.published, _ = meter.Int64Counter("snapline.publish.lines",
		metric.WithDescription("Snapshot lines published"))
	for _, o := range opts {
		o(p)
	}
	return p
}

// Publish runs one publish cycle and returns the committed (or computed, for
// dry runs) result.
//
// Fatal conditions — unknown rule version, grain violations, a lease already
// held for the window — abort before any snapshot write. Non-fatal findings
// travel out as Signals and blocker codes so vendors still get a timely, if
// partially blocked, snapshot.
func (p *Publisher) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	ctx, span := p.tracer.Start(ctx, "publisher.Publish",
		trace.WithAttributes(
			attribute.String("rule_version", string(req.RuleVersion)),
			attribute.Bool("dry_run", req.DryRun),
		))
	defer span.End()

	if req.AsOfTs.IsZero() {
		return nil, fmt.Errorf("as-of timestamp is required")
	}
	if !p.registry.Has(req.RuleVersion) {
		return nil, &types.RuleVersionUnknown{Version: req.RuleVersion}
	}

	if !req.DryRun {
		key := leaseKey(req.AsOfTs)
		ok, err := p.provider.AcquireLease(ctx, key, p.leaseTTL)
		if err != nil {
			return nil, fmt.Errorf("acquiring publish lease: %w", err)
		}
		if !ok {
			metrics.PublishConflicts.Add(1)
			p.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "conflict")))
			return nil, fmt.Errorf("lease %s held: %w", key, types.ErrConcurrentPublish)
		}
		defer func() {
			if err := p.provider.ReleaseLease(context.WithoutCancel(ctx), key); err != nil {
				p.logger.Warn("releasing publish lease", "key", key, "error", err)
			}
		}()
	}

	draft, err := p.computeDraft(ctx, req)
	if err != nil {
		metrics.PublishFailures.Add(1)
		return nil, err
	}

	if req.DryRun {
		metrics.DryRunsTotal.Add(1)
		p.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "dry_run")))
		p.logger.Info("dry-run cycle complete",
			"as_of", req.AsOfTs, "rule_version", req.RuleVersion,
			"lines", len(draft.Lines), "signals", len(draft.Signals))
		return draft, nil
	}

	return p.commit(ctx, req, draft)
}

// computeDraft runs the read-only reconciliation pipeline. Nothing is written.
func (p *Publisher) computeDraft(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	ctx, span := p.tracer.Start(ctx, "publisher.computeDraft")
	defer span.End()

	in, err := p.loadInputs(ctx)
	if err != nil {
		return nil, err
	}

	spine, err := grain.BuildSpine(in.lines, in.intervals, req.AsOfTs)
	if err != nil {
		metrics.GrainViolations.Add(1)
		return nil, fmt.Errorf("building spine: %w", err)
	}

	ev, err := evidence.Reconcile(spine, in.evidence, req.AsOfTs, p.minImages)
	if err != nil {
		metrics.GrainViolations.Add(1)
		return nil, fmt.Errorf("reconciling evidence: %w", err)
	}

	bill := billing.Reconcile(spine, in.invoices, in.reversals, req.AsOfTs)
	metrics.OrphanInvoiceLines.Add(int64(len(bill.Signals)))

	lines, err := p.evaluate(ctx, req, spine, ev, bill)
	if err != nil {
		return nil, err
	}

	res := &PublishResult{
		Status:    types.SnapshotDraft,
		DryRun:    req.DryRun,
		Lines:     lines,
		Summaries: summary.Rollup(lines),
		Signals:   append(append([]types.Signal(nil), ev.Signals...), bill.Signals...),
	}
	return res, nil
}

// evaluate fans rule evaluation out across package partitions. Partitions
// share no state, so the only coordination is the pre-sized result slots.
func (p *Publisher) evaluate(ctx context.Context, req PublishRequest, spine []types.SpineRow, ev *evidence.Result, bill *billing.Result) ([]types.SnapshotLine, error) {
	partitions := partitionByPackage(spine)
	results := make([][]types.SnapshotLine, len(partitions))

	g, _ := errgroup.WithContext(ctx)
	for i, part := range partitions {
		g.Go(func() error {
			out := make([]types.SnapshotLine, 0, len(part))
			for _, row := range part {
				k := row.Key()
				line := types.ReconciledLine{
					SpineRow: row,
					Evidence: ev.Statuses[k],
					Invoiced: bill.Statuses[k].Invoiced,
					Paid:     bill.Statuses[k].Paid,
				}
				decision, err := p.registry.Evaluate(req.RuleVersion, line)
				if err != nil {
					return fmt.Errorf("evaluating (%s, %s): %w", k.ScopePackageID, k.FlocID, err)
				}
				out = append(out, types.SnapshotLine{
					ScopePackageID: row.ScopePackageID,
					FlocID:         row.FlocID,
					ReadyToInvoice: decision.ReadyToInvoice,
					Invoiced:       line.Invoiced,
					Paid:           line.Paid,
					BlockerCodes:   decision.BlockerCodes,
					AsOfTs:         req.AsOfTs,
					RuleVersion:    req.RuleVersion,
				})
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var lines []types.SnapshotLine
	for _, out := range results {
		lines = append(lines, out...)
	}
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].ScopePackageID != lines[j].ScopePackageID {
			return lines[i].ScopePackageID < lines[j].ScopePackageID
		}
		return lines[i].FlocID < lines[j].FlocID
	})
	return lines, nil
}

// commit persists the draft. Once COMMITTING begins the cycle runs to
// PUBLISHED or FAILED without observing cancellation, so readers never see a
// pointer referencing a partial snapshot.
func (p *Publisher) commit(ctx context.Context, req PublishRequest, draft *PublishResult) (*PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("aborting before commit: %w", err)
	}
	ctx, span := p.tracer.Start(context.WithoutCancel(ctx), "publisher.commit")
	defer span.End()

	snapshotID := p.mintID()
	now := p.now().UTC()
	asOf := req.AsOfTs

	snap := types.Snapshot{
		SnapshotID:    snapshotID,
		AsOfTs:        req.AsOfTs,
		RuleVersion:   req.RuleVersion,
		Status:        types.SnapshotDraft,
		SummaryStatus: types.SummaryOK,
		CreatedAt:     now,
		LineCount:     len(draft.Lines),
	}
	if err := p.provider.PutSnapshot(ctx, snap); err != nil {
		return nil, p.fail(ctx, snapshotID, req, fmt.Errorf("staging snapshot: %w", err))
	}
	p.appendEvent(ctx, types.Event{Kind: types.EventCycleStarted, SnapshotID: snapshotID, AsOfTs: &asOf, Timestamp: p.now().UTC()})

	lines := make([]types.SnapshotLine, len(draft.Lines))
	for i, line := range draft.Lines {
		line.SnapshotID = snapshotID
		lines[i] = line
	}
	summaries := make([]types.SnapshotSummary, len(draft.Summaries))
	for i, s := range draft.Summaries {
		s.SnapshotID = snapshotID
		summaries[i] = s
	}

	if err := p.provider.UpdateSnapshotStatus(ctx, snapshotID, types.SnapshotCommitting, ""); err != nil {
		return nil, p.fail(ctx, snapshotID, req, fmt.Errorf("entering commit: %w", err))
	}
	p.appendEvent(ctx, types.Event{Kind: types.EventCommitStarted, SnapshotID: snapshotID, Timestamp: p.now().UTC()})

	if err := p.provider.AppendSnapshotLines(ctx, lines); err != nil {
		return nil, p.fail(ctx, snapshotID, req, fmt.Errorf("committing lines: %w", err))
	}

	summaryStatus := types.SummaryOK
	if err := p.provider.AppendSnapshotSummaries(ctx, summaries); err != nil {
		// Lines are durable; the rollup can be regenerated from them at any
		// time, so this does not fail the cycle.
		summaryStatus = types.SummaryPendingRegen
		metrics.SummariesDeferred.Add(1)
		p.logger.Warn("summary commit failed, deferring regeneration", "snapshot_id", snapshotID, "error", err)
		p.appendEvent(ctx, types.Event{
			Kind: types.EventSummaryDeferred, SnapshotID: snapshotID,
			Message: err.Error(), Timestamp: p.now().UTC(),
		})
		p.alert(types.Alert{
			Level: types.AlertLevelWarning, SnapshotID: snapshotID, Kind: "summary_deferred",
			Message: fmt.Sprintf("summaries for %s pending regeneration: %v", snapshotID, err), Timestamp: p.now().UTC(),
		})
	}

	if err := p.provider.UpdateSnapshotStatus(ctx, snapshotID, types.SnapshotPublished, summaryStatus); err != nil {
		return nil, p.fail(ctx, snapshotID, req, fmt.Errorf("marking published: %w", err))
	}

	if err := p.advancePointer(ctx, snapshotID); err != nil {
		return nil, p.fail(ctx, snapshotID, req, fmt.Errorf("advancing current pointer: %w", err))
	}
	p.appendEvent(ctx, types.Event{Kind: types.EventPointerAdvanced, SnapshotID: snapshotID, Timestamp: p.now().UTC()})
	p.appendEvent(ctx, types.Event{
		Kind: types.EventSnapshotPublished, SnapshotID: snapshotID, AsOfTs: &asOf,
		Details:   map[string]interface{}{"lines": len(lines), "ruleVersion": string(req.RuleVersion)},
		Timestamp: p.now().UTC(),
	})

	p.reportSignals(ctx, snapshotID, draft.Signals)

	metrics.PublishesTotal.Add(1)
	p.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "published")))
	p.published.Add(ctx, int64(len(lines)), metric.WithAttributes(attribute.String("rule_version", string(req.RuleVersion))))
	p.logger.Info("snapshot published",
		"snapshot_id", snapshotID, "as_of", req.AsOfTs,
		"rule_version", req.RuleVersion, "lines", len(lines))
	p.alert(types.Alert{
		Level: types.AlertLevelInfo, SnapshotID: snapshotID, Kind: "snapshot_published",
		Message:   fmt.Sprintf("snapshot %s published with %d lines", snapshotID, len(lines)),
		Details:   map[string]interface{}{"asOfTs": req.AsOfTs, "ruleVersion": string(req.RuleVersion)},
		Timestamp: p.now().UTC(),
	})

	res := &PublishResult{
		SnapshotID: snapshotID,
		Status:     types.SnapshotPublished,
		Lines:      lines,
		Summaries:  summaries,
		Signals:    draft.Signals,
	}
	return res, nil
}

// advancePointer swaps the current pointer to snapshotID. A conflict means
// another window's publish advanced it between read and swap; re-read and
// retry against the fresh value.
func (p *Publisher) advancePointer(ctx context.Context, snapshotID string) error {
	var lastErr error
	for attempt := 0; attempt < pointerSwapRetries; attempt++ {
		prev, err := p.provider.GetCurrentPointer(ctx)
		if err != nil {
			return fmt.Errorf("reading current pointer: %w", err)
		}
		var prevID string
		if prev != nil {
			prevID = prev.SnapshotID
		}
		err = p.provider.SetCurrentPointer(ctx, prevID, types.CurrentPointer{
			SnapshotID: snapshotID,
			UpdatedAt:  p.now().UTC(),
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// fail transitions the snapshot to FAILED. The current pointer is never
// touched on this path; readers keep the last good snapshot.
func (p *Publisher) fail(ctx context.Context, snapshotID string, req PublishRequest, cause error) error {
	metrics.PublishFailures.Add(1)
	p.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failed")))
	if err := p.provider.UpdateSnapshotStatus(ctx, snapshotID, types.SnapshotFailed, ""); err != nil {
		p.logger.Error("marking snapshot failed", "snapshot_id", snapshotID, "error", err)
	}
	asOf := req.AsOfTs
	p.appendEvent(ctx, types.Event{
		Kind: types.EventCycleFailed, SnapshotID: snapshotID, AsOfTs: &asOf,
		Message: cause.Error(), Timestamp: p.now().UTC(),
	})
	p.alert(types.Alert{
		Level: types.AlertLevelError, SnapshotID: snapshotID, Kind: "cycle_failed",
		Message: fmt.Sprintf("publish cycle failed: %v", cause), Timestamp: p.now().UTC(),
	})
	return cause
}

// reportSignals records data-quality findings, aggregated per kind so a noisy
// source produces one alert, not thousands.
func (p *Publisher) reportSignals(ctx context.Context, snapshotID string, signals []types.Signal) {
	if len(signals) == 0 {
		return
	}
	counts := make(map[types.SignalKind]int)
	for _, sig := range signals {
		counts[sig.Kind]++
	}
	p.appendEvent(ctx, types.Event{
		Kind: types.EventDataQualitySignaled, SnapshotID: snapshotID,
		Details:   map[string]interface{}{"counts": counts},
		Timestamp: p.now().UTC(),
	})
	for kind, n := range counts {
		p.alert(types.Alert{
			Level: types.AlertLevelWarning, SnapshotID: snapshotID, Kind: string(kind),
			Message:   fmt.Sprintf("%d %s finding(s) in cycle", n, kind),
			Timestamp: p.now().UTC(),
		})
	}
}

type inputs struct {
	lines     []types.PackageLine
	intervals []types.AssignmentInterval
	evidence  map[types.EvidenceType][]types.EvidenceAggregate
	invoices  []types.InvoiceLineFact
	reversals []types.InvoiceReversal
}

func (p *Publisher) loadInputs(ctx context.Context) (*inputs, error) {
	in := &inputs{evidence: make(map[types.EvidenceType][]types.EvidenceAggregate, len(types.AllEvidenceTypes))}
	var evMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		in.lines, err = p.provider.ListPackageLines(ctx)
		return err
	})
	g.Go(func() (err error) {
		in.intervals, err = p.provider.ListAssignmentIntervals(ctx)
		return err
	})
	g.Go(func() (err error) {
		in.invoices, err = p.provider.ListInvoiceLines(ctx)
		return err
	})
	g.Go(func() (err error) {
		in.reversals, err = p.provider.ListInvoiceReversals(ctx)
		return err
	})
	for _, et := range types.AllEvidenceTypes {
		g.Go(func() error {
			rows, err := p.provider.ListEvidence(ctx, et)
			if err != nil {
				return err
			}
			evMu.Lock()
			in.evidence[et] = rows
			evMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading inputs: %w", err)
	}
	return in, nil
}

func (p *Publisher) mintID() string {
	p.entropyMu.Lock()
	defer p.entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(p.now().UTC()), p.entropy).String()
}

func (p *Publisher) appendEvent(ctx context.Context, event types.Event) {
	if err := p.provider.AppendEvent(ctx, event); err != nil {
		p.logger.Warn("appending audit event", "kind", event.Kind, "error", err)
	}
}

func (p *Publisher) alert(alert types.Alert) {
	if p.alertFn != nil {
		p.alertFn(alert)
	}
}

func leaseKey(asOf time.Time) string {
	return "publish#" + asOf.UTC().Format(time.RFC3339)
}

func partitionByPackage(spine []types.SpineRow) [][]types.SpineRow {
	byPkg := make(map[string][]types.SpineRow)
	for _, row := range spine {
		byPkg[row.ScopePackageID] = append(byPkg[row.ScopePackageID], row)
	}
	out := make([][]types.SpineRow, 0, len(byPkg))
	for _, part := range byPkg {
		out = append(out, part)
	}
	return out
}
