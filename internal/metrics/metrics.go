// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	PublishesTotal       = expvar.NewInt("publishes_total")
	PublishFailures      = expvar.NewInt("publish_failures")
	PublishConflicts     = expvar.NewInt("publish_conflicts")
	DryRunsTotal         = expvar.NewInt("dry_runs_total")
	GrainViolations      = expvar.NewInt("grain_violations")
	OrphanInvoiceLines   = expvar.NewInt("orphan_invoice_lines")
	SummariesDeferred    = expvar.NewInt("summaries_deferred")
	SummariesRegenerated = expvar.NewInt("summaries_regenerated")
	AlertsDispatched     = expvar.NewInt("alerts_dispatched")
	AlertsFailed         = expvar.NewInt("alerts_failed")
)
