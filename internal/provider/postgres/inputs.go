package postgres

import (
	"context"

	"github.com/snapline-io/snapline/pkg/types"
)

// ListPackageLines returns the conformed awarded-scope relation.
func (p *PostgresProvider) ListPackageLines(ctx context.Context) ([]types.PackageLine, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT scope_package_id, floc_id, upload_version
		FROM package_lines
		ORDER BY scope_package_id, floc_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []types.PackageLine
	for rows.Next() {
		var l types.PackageLine
		if err := rows.Scan(&l.ScopePackageID, &l.FlocID, &l.UploadVersion); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListAssignmentIntervals returns the FLOC-to-package assignment history.
func (p *PostgresProvider) ListAssignmentIntervals(ctx context.Context) ([]types.AssignmentInterval, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT floc_id, scope_package_id, effective_start, effective_end
		FROM assignment_intervals
		ORDER BY floc_id, effective_start
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []types.AssignmentInterval
	for rows.Next() {
		var iv types.AssignmentInterval
		if err := rows.Scan(&iv.FlocID, &iv.ScopePackageID, &iv.EffectiveStart, &iv.EffectiveEnd); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// ListEvidence returns conformed evidence aggregates of one type.
func (p *PostgresProvider) ListEvidence(ctx context.Context, evidenceType types.EvidenceType) ([]types.EvidenceAggregate, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT scope_package_id, floc_id, evidence_type, received, evidence_ts, item_count
		FROM evidence_aggregates
		WHERE evidence_type = $1
		ORDER BY scope_package_id, floc_id
	`, string(evidenceType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var aggs []types.EvidenceAggregate
	for rows.Next() {
		var (
			a  types.EvidenceAggregate
			et string
		)
		if err := rows.Scan(&a.ScopePackageID, &a.FlocID, &et, &a.Received, &a.EvidenceTs, &a.Count); err != nil {
			return nil, err
		}
		a.Type = types.EvidenceType(et)
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

// ListInvoiceLines returns the vendor invoice line facts.
func (p *PostgresProvider) ListInvoiceLines(ctx context.Context) ([]types.InvoiceLineFact, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT invoice_id, scope_package_id, floc_id, invoiced_ts, paid_ts
		FROM invoice_lines
		ORDER BY invoice_id, scope_package_id, floc_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []types.InvoiceLineFact
	for rows.Next() {
		var f types.InvoiceLineFact
		if err := rows.Scan(&f.InvoiceID, &f.ScopePackageID, &f.FlocID, &f.InvoicedTs, &f.PaidTs); err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// ListInvoiceReversals returns the invoice reversal facts.
func (p *PostgresProvider) ListInvoiceReversals(ctx context.Context) ([]types.InvoiceReversal, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT invoice_id, scope_package_id, floc_id, reversed_ts, COALESCE(reason, '')
		FROM invoice_reversals
		ORDER BY invoice_id, scope_package_id, floc_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reversals []types.InvoiceReversal
	for rows.Next() {
		var r types.InvoiceReversal
		if err := rows.Scan(&r.InvoiceID, &r.ScopePackageID, &r.FlocID, &r.ReversedTs, &r.Reason); err != nil {
			return nil, err
		}
		reversals = append(reversals, r)
	}
	return reversals, rows.Err()
}
