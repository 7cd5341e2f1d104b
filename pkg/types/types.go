// Package types defines the public domain types for the Snapline eligibility
// snapshot publisher.
package types

import "time"

// EvidenceType identifies a conformed evidence source.
type EvidenceType string

// EvidenceType values enumerate the evidence sources joined onto the spine.
const (
	EvidenceSurvey     EvidenceType = "SURVEY"
	EvidenceImages     EvidenceType = "IMAGES"
	EvidenceDeliveries EvidenceType = "DELIVERIES"
)

// AllEvidenceTypes lists every known evidence source. The evidence reconciler
// produces a status for each of these on every spine row, whether or not the
// source delivered data for the cycle.
var AllEvidenceTypes = []EvidenceType{EvidenceSurvey, EvidenceImages, EvidenceDeliveries}

// SnapshotStatus represents the lifecycle state of a publish cycle.
type SnapshotStatus string

// SnapshotStatus values. A snapshot is immutable once PUBLISHED.
const (
	SnapshotDraft      SnapshotStatus = "DRAFT"
	SnapshotCommitting SnapshotStatus = "COMMITTING"
	SnapshotPublished  SnapshotStatus = "PUBLISHED"
	SnapshotFailed     SnapshotStatus = "FAILED"
)

// PackageStatus represents the lifecycle state of a scope package.
type PackageStatus string

const (
	PackageActive PackageStatus = "ACTIVE"
	PackageClosed PackageStatus = "CLOSED"
)

// SummaryStatus marks whether a snapshot's summaries are usable or awaiting
// regeneration after a post-commit aggregation failure.
type SummaryStatus string

const (
	SummaryOK           SummaryStatus = "OK"
	SummaryPendingRegen SummaryStatus = "PENDING_REGEN"
)

// BlockerCode names a reason a line is not eligible to invoice.
type BlockerCode string

// BlockerCode values emitted by the rule engine.
const (
	BlockMissingSurvey     BlockerCode = "MISSING_SURVEY"
	BlockMissingImages     BlockerCode = "MISSING_IMAGES"
	BlockMissingDeliveries BlockerCode = "MISSING_DELIVERIES"
	BlockAlreadyInvoiced   BlockerCode = "ALREADY_INVOICED"
	BlockAlreadyPaid       BlockerCode = "ALREADY_PAID"
	BlockAssignmentStale   BlockerCode = "ASSIGNMENT_STALE"
)

// RuleVersion identifies an immutable entry in the rule registry.
type RuleVersion string

// ScopePackage is an awarded set of FLOCs a vendor is authorized to invoice.
type ScopePackage struct {
	ScopePackageID string        `yaml:"scopePackageId" json:"scopePackageId"`
	Vendor         string        `yaml:"vendor" json:"vendor"`
	Status         PackageStatus `yaml:"status" json:"status"`
	UploadVersion  int           `yaml:"uploadVersion" json:"uploadVersion"`
}

// PackageLine is one (package, FLOC) awarded line. History across re-uploads is
// retained upstream; each row carries the upload version it belongs to.
type PackageLine struct {
	ScopePackageID string `yaml:"scopePackageId" json:"scopePackageId"`
	FlocID         string `yaml:"flocId" json:"flocId"`
	UploadVersion  int    `yaml:"uploadVersion,omitempty" json:"uploadVersion,omitempty"`
}

// LineKey is the grain of the whole product: one row per (package, FLOC).
type LineKey struct {
	ScopePackageID string `json:"scopePackageId"`
	FlocID         string `json:"flocId"`
}

// Key returns the line's grain key.
func (l PackageLine) Key() LineKey {
	return LineKey{ScopePackageID: l.ScopePackageID, FlocID: l.FlocID}
}

// AssignmentInterval records which package a FLOC belonged to over
// [EffectiveStart, EffectiveEnd). A nil EffectiveEnd means the assignment is
// still open; at most one open interval may exist per FLOC.
type AssignmentInterval struct {
	FlocID         string     `yaml:"flocId" json:"flocId"`
	ScopePackageID string     `yaml:"scopePackageId" json:"scopePackageId"`
	EffectiveStart time.Time  `yaml:"effectiveStart" json:"effectiveStart"`
	EffectiveEnd   *time.Time `yaml:"effectiveEnd,omitempty" json:"effectiveEnd,omitempty"`
}

// Contains reports whether ts falls inside the half-open interval.
func (a AssignmentInterval) Contains(ts time.Time) bool {
	if ts.Before(a.EffectiveStart) {
		return false
	}
	return a.EffectiveEnd == nil || ts.Before(*a.EffectiveEnd)
}

// EvidenceAggregate is a conformed evidence rollup at line grain. The upstream
// contract guarantees at most one row per (package, FLOC, type).
type EvidenceAggregate struct {
	ScopePackageID string       `yaml:"scopePackageId" json:"scopePackageId"`
	FlocID         string       `yaml:"flocId" json:"flocId"`
	Type           EvidenceType `yaml:"type" json:"type"`
	Received       bool         `yaml:"received" json:"received"`
	EvidenceTs     time.Time    `yaml:"evidenceTs" json:"evidenceTs"`
	Count          int          `yaml:"count,omitempty" json:"count,omitempty"`
}

// InvoiceLineFact records that a line appeared on a vendor invoice.
type InvoiceLineFact struct {
	InvoiceID      string     `yaml:"invoiceId" json:"invoiceId"`
	ScopePackageID string     `yaml:"scopePackageId" json:"scopePackageId"`
	FlocID         string     `yaml:"flocId" json:"flocId"`
	InvoicedTs     time.Time  `yaml:"invoicedTs" json:"invoicedTs"`
	PaidTs         *time.Time `yaml:"paidTs,omitempty" json:"paidTs,omitempty"`
}

// InvoiceReversal is an explicit, auditable cancellation of an invoice line.
// Invoiced status never flips back silently; it only reverses through one of
// these facts.
type InvoiceReversal struct {
	InvoiceID      string    `yaml:"invoiceId" json:"invoiceId"`
	ScopePackageID string    `yaml:"scopePackageId" json:"scopePackageId"`
	FlocID         string    `yaml:"flocId" json:"flocId"`
	ReversedTs     time.Time `yaml:"reversedTs" json:"reversedTs"`
	Reason         string    `yaml:"reason,omitempty" json:"reason,omitempty"`
}

// EvidenceStatus is the reconciled state of one evidence source for one line.
type EvidenceStatus struct {
	Type       EvidenceType `json:"type"`
	Received   bool         `json:"received"`
	Count      int          `json:"count,omitempty"`
	EvidenceTs *time.Time   `json:"evidenceTs,omitempty"`
}

// SpineRow is one canonical (package, FLOC) line with its resolved assignment.
type SpineRow struct {
	ScopePackageID    string `json:"scopePackageId"`
	FlocID            string `json:"flocId"`
	AssignmentCurrent bool   `json:"assignmentCurrent"`
	// AssignmentUnresolved marks an awarded line with no assignment interval
	// covering the as-of timestamp. The line stays on the spine.
	AssignmentUnresolved bool `json:"assignmentUnresolved"`
}

// Key returns the row's grain key.
func (r SpineRow) Key() LineKey {
	return LineKey{ScopePackageID: r.ScopePackageID, FlocID: r.FlocID}
}

// ReconciledLine is a spine row with evidence and billing facts joined on,
// ready for rule evaluation.
type ReconciledLine struct {
	SpineRow
	Evidence map[EvidenceType]EvidenceStatus `json:"evidence"`
	Invoiced bool                            `json:"invoiced"`
	Paid     bool                            `json:"paid"`
}

// Snapshot is one immutable publish-cycle record.
type Snapshot struct {
	SnapshotID    string         `json:"snapshotId"`
	AsOfTs        time.Time      `json:"asOfTs"`
	RuleVersion   RuleVersion    `json:"ruleVersion"`
	Status        SnapshotStatus `json:"status"`
	SummaryStatus SummaryStatus  `json:"summaryStatus,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	PublishedAt   *time.Time     `json:"publishedAt,omitempty"`
	LineCount     int            `json:"lineCount,omitempty"`
}

// SnapshotLine is one line of a published snapshot. Written once, never
// mutated; corrections are new snapshots.
type SnapshotLine struct {
	SnapshotID     string        `json:"snapshotId"`
	ScopePackageID string        `json:"scopePackageId"`
	FlocID         string        `json:"flocId"`
	ReadyToInvoice bool          `json:"readyToInvoice"`
	Invoiced       bool          `json:"invoiced"`
	Paid           bool          `json:"paid"`
	BlockerCodes   []BlockerCode `json:"blockerCodes,omitempty"`
	AsOfTs         time.Time     `json:"asOfTs"`
	RuleVersion    RuleVersion   `json:"ruleVersion"`
}

// Key returns the line's grain key.
func (l SnapshotLine) Key() LineKey {
	return LineKey{ScopePackageID: l.ScopePackageID, FlocID: l.FlocID}
}

// SnapshotSummary is the per-package rollup of a snapshot's lines.
type SnapshotSummary struct {
	SnapshotID     string  `json:"snapshotId"`
	ScopePackageID string  `json:"scopePackageId"`
	ReadyCount     int     `json:"readyCount"`
	BlockedCount   int     `json:"blockedCount"`
	InvoicedCount  int     `json:"invoicedCount"`
	PaidCount      int     `json:"paidCount"`
	LineCount      int     `json:"lineCount"`
	ReadyRate      float64 `json:"readyRate"`
}

// CurrentPointer identifies which snapshot is presented as "latest". Updated
// only by a successful publish commit.
type CurrentPointer struct {
	SnapshotID string    `json:"snapshotId"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SignalKind classifies a non-fatal data-quality finding.
type SignalKind string

// SignalKind values. None of these abort a publish cycle.
const (
	SignalOrphanInvoiceLine   SignalKind = "ORPHAN_INVOICE_LINE"
	SignalUnmatchedEvidence   SignalKind = "UNMATCHED_EVIDENCE"
	SignalIngestionIncomplete SignalKind = "INGESTION_INCOMPLETE"
)

// Signal is a data-quality finding surfaced to operators alongside a cycle.
type Signal struct {
	Kind           SignalKind   `json:"kind"`
	ScopePackageID string       `json:"scopePackageId,omitempty"`
	FlocID         string       `json:"flocId,omitempty"`
	InvoiceID      string       `json:"invoiceId,omitempty"`
	EvidenceType   EvidenceType `json:"evidenceType,omitempty"`
	Message        string       `json:"message,omitempty"`
}

// EventKind classifies the type of audit event.
type EventKind string

// EventKind values enumerate the recorded publish-cycle events.
const (
	EventCycleStarted        EventKind = "CYCLE_STARTED"
	EventCycleDryRun         EventKind = "CYCLE_DRY_RUN"
	EventCommitStarted       EventKind = "COMMIT_STARTED"
	EventSnapshotPublished   EventKind = "SNAPSHOT_PUBLISHED"
	EventCycleFailed         EventKind = "CYCLE_FAILED"
	EventPointerAdvanced     EventKind = "POINTER_ADVANCED"
	EventSummaryDeferred     EventKind = "SUMMARY_DEFERRED"
	EventSummaryRegenerated  EventKind = "SUMMARY_REGENERATED"
	EventDataQualitySignaled EventKind = "DATA_QUALITY_SIGNALED"
)

// Event is an append-only audit log entry recording what happened and when.
type Event struct {
	Kind       EventKind              `json:"kind"`
	SnapshotID string                 `json:"snapshotId,omitempty"`
	AsOfTs     *time.Time             `json:"asOfTs,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AlertType defines the notification sink type.
type AlertType string

// AlertType values enumerate the supported notification sink backends.
const (
	AlertConsole     AlertType = "console"
	AlertFile        AlertType = "file"
	AlertWebhook     AlertType = "webhook"
	AlertSQS         AlertType = "sqs"
	AlertEventBridge AlertType = "eventbridge"
)

// AlertLevel grades notification severity.
type AlertLevel string

const (
	AlertLevelError   AlertLevel = "error"
	AlertLevelWarning AlertLevel = "warning"
	AlertLevelInfo    AlertLevel = "info"
)

// Alert is a notification dispatched to configured sinks.
type Alert struct {
	Level      AlertLevel             `json:"level"`
	SnapshotID string                 `json:"snapshotId,omitempty"`
	Kind       string                 `json:"kind,omitempty"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AlertConfig defines one notification sink.
type AlertConfig struct {
	Type     AlertType `yaml:"type" json:"type"`
	URL      string    `yaml:"url,omitempty" json:"url,omitempty"`
	Path     string    `yaml:"path,omitempty" json:"path,omitempty"`
	QueueURL string    `yaml:"queueUrl,omitempty" json:"queueUrl,omitempty"`
	BusName  string    `yaml:"busName,omitempty" json:"busName,omitempty"`
	Region   string    `yaml:"region,omitempty" json:"region,omitempty"`
}

// PublisherConfig holds publish-cycle settings.
type PublisherConfig struct {
	DefaultRuleVersion string `yaml:"defaultRuleVersion,omitempty" json:"defaultRuleVersion,omitempty"`
	MinImages          int    `yaml:"minImages,omitempty" json:"minImages,omitempty"`
	LeaseTTL           string `yaml:"leaseTtl,omitempty" json:"leaseTtl,omitempty"`
}

// TelemetryConfig holds OpenTelemetry export settings. Traces and metrics
// are exported over OTLP gRPC when enabled.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Endpoint     string  `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty" json:"insecure,omitempty"`
	SamplingRate float64 `yaml:"samplingRate,omitempty" json:"samplingRate,omitempty"`
}

// ProjectConfig represents the top-level snapline.yaml configuration.
type ProjectConfig struct {
	Provider  string           `yaml:"provider"`
	DynamoDB  interface{}      `yaml:"dynamodb,omitempty"`
	Postgres  interface{}      `yaml:"postgres,omitempty"`
	Publisher *PublisherConfig `yaml:"publisher,omitempty"`
	Alerts    []AlertConfig    `yaml:"alerts,omitempty"`
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}
