package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/snapline-io/snapline/pkg/types"
)

// PutSnapshot stores a new snapshot record. Snapshot IDs are write-once.
func (p *PostgresProvider) PutSnapshot(ctx context.Context, snap types.Snapshot) error {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO snapshots (snapshot_id, as_of_ts, rule_version, status, summary_status, created_at, published_at, line_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (snapshot_id) DO NOTHING
	`, snap.SnapshotID, snap.AsOfTs, string(snap.RuleVersion), string(snap.Status),
		string(snap.SummaryStatus), snap.CreatedAt, snap.PublishedAt, snap.LineCount)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %q already exists", snap.SnapshotID)
	}
	return nil
}

// GetSnapshot retrieves a snapshot record by ID.
func (p *PostgresProvider) GetSnapshot(ctx context.Context, snapshotID string) (*types.Snapshot, error) {
	var (
		snap          types.Snapshot
		ruleVersion   string
		status        string
		summaryStatus string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT snapshot_id, as_of_ts, rule_version, status, summary_status, created_at, published_at, line_count
		FROM snapshots
		WHERE snapshot_id = $1
	`, snapshotID).Scan(&snap.SnapshotID, &snap.AsOfTs, &ruleVersion, &status,
		&summaryStatus, &snap.CreatedAt, &snap.PublishedAt, &snap.LineCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %q: %w", snapshotID, types.ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, err
	}
	snap.RuleVersion = types.RuleVersion(ruleVersion)
	snap.Status = types.SnapshotStatus(status)
	snap.SummaryStatus = types.SummaryStatus(summaryStatus)
	return &snap, nil
}

// ListSnapshots returns snapshots newest-first.
func (p *PostgresProvider) ListSnapshots(ctx context.Context, limit int) ([]types.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT snapshot_id, as_of_ts, rule_version, status, summary_status, created_at, published_at, line_count
		FROM snapshots
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []types.Snapshot
	for rows.Next() {
		var (
			snap          types.Snapshot
			ruleVersion   string
			status        string
			summaryStatus string
		)
		if err := rows.Scan(&snap.SnapshotID, &snap.AsOfTs, &ruleVersion, &status,
			&summaryStatus, &snap.CreatedAt, &snap.PublishedAt, &snap.LineCount); err != nil {
			return nil, err
		}
		snap.RuleVersion = types.RuleVersion(ruleVersion)
		snap.Status = types.SnapshotStatus(status)
		snap.SummaryStatus = types.SummaryStatus(summaryStatus)
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// UpdateSnapshotStatus advances a snapshot's lifecycle status. PublishedAt is
// stamped on the transition to PUBLISHED.
func (p *PostgresProvider) UpdateSnapshotStatus(ctx context.Context, snapshotID string, status types.SnapshotStatus, summaryStatus types.SummaryStatus) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE snapshots SET
			status = $2,
			summary_status = $3,
			published_at = CASE WHEN $2 = $4 AND published_at IS NULL THEN NOW() ELSE published_at END
		WHERE snapshot_id = $1
	`, snapshotID, string(status), string(summaryStatus), string(types.SnapshotPublished))
	if err != nil {
		return fmt.Errorf("updating snapshot status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %q: %w", snapshotID, types.ErrSnapshotNotFound)
	}
	return nil
}

// AppendSnapshotLines writes snapshot lines inside one transaction. Lines of
// a published snapshot are immutable.
func (p *PostgresProvider) AppendSnapshotLines(ctx context.Context, lines []types.SnapshotLine) error {
	if len(lines) == 0 {
		return nil
	}

	snap, err := p.GetSnapshot(ctx, lines[0].SnapshotID)
	if err != nil {
		return err
	}
	if snap.Status == types.SnapshotPublished {
		return fmt.Errorf("snapshot %q is published; lines are immutable", snap.SnapshotID)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, line := range lines {
		codes, err := json.Marshal(line.BlockerCodes)
		if err != nil {
			return fmt.Errorf("marshal blocker codes: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO snapshot_lines (snapshot_id, scope_package_id, floc_id, ready_to_invoice, invoiced, paid, blocker_codes, as_of_ts, rule_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (snapshot_id, scope_package_id, floc_id) DO NOTHING
		`, line.SnapshotID, line.ScopePackageID, line.FlocID, line.ReadyToInvoice,
			line.Invoiced, line.Paid, codes, line.AsOfTs, string(line.RuleVersion))
		if err != nil {
			return fmt.Errorf("insert snapshot line: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("line %s/%s already written for snapshot %q", line.ScopePackageID, line.FlocID, line.SnapshotID)
		}
	}
	return tx.Commit(ctx)
}

// ListSnapshotLines returns all lines of one snapshot.
func (p *PostgresProvider) ListSnapshotLines(ctx context.Context, snapshotID string) ([]types.SnapshotLine, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT snapshot_id, scope_package_id, floc_id, ready_to_invoice, invoiced, paid, blocker_codes, as_of_ts, rule_version
		FROM snapshot_lines
		WHERE snapshot_id = $1
		ORDER BY scope_package_id, floc_id
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []types.SnapshotLine
	for rows.Next() {
		var (
			line        types.SnapshotLine
			codes       []byte
			ruleVersion string
		)
		if err := rows.Scan(&line.SnapshotID, &line.ScopePackageID, &line.FlocID,
			&line.ReadyToInvoice, &line.Invoiced, &line.Paid, &codes, &line.AsOfTs, &ruleVersion); err != nil {
			return nil, err
		}
		if len(codes) > 0 {
			if err := json.Unmarshal(codes, &line.BlockerCodes); err != nil {
				return nil, fmt.Errorf("unmarshal blocker codes: %w", err)
			}
		}
		line.RuleVersion = types.RuleVersion(ruleVersion)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// AppendSnapshotSummaries upserts per-package summary rows. Summaries may be
// rewritten after publish when a deferred summary is regenerated.
func (p *PostgresProvider) AppendSnapshotSummaries(ctx context.Context, summaries []types.SnapshotSummary) error {
	for _, sum := range summaries {
		_, err := p.pool.Exec(ctx, `
			INSERT INTO snapshot_summaries (snapshot_id, scope_package_id, ready_count, blocked_count, invoiced_count, paid_count, line_count, ready_rate)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (snapshot_id, scope_package_id) DO UPDATE SET
				ready_count    = EXCLUDED.ready_count,
				blocked_count  = EXCLUDED.blocked_count,
				invoiced_count = EXCLUDED.invoiced_count,
				paid_count     = EXCLUDED.paid_count,
				line_count     = EXCLUDED.line_count,
				ready_rate     = EXCLUDED.ready_rate
		`, sum.SnapshotID, sum.ScopePackageID, sum.ReadyCount, sum.BlockedCount,
			sum.InvoicedCount, sum.PaidCount, sum.LineCount, sum.ReadyRate)
		if err != nil {
			return fmt.Errorf("upsert snapshot summary: %w", err)
		}
	}
	return nil
}

// ListSnapshotSummaries returns the per-package summaries of one snapshot.
func (p *PostgresProvider) ListSnapshotSummaries(ctx context.Context, snapshotID string) ([]types.SnapshotSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT snapshot_id, scope_package_id, ready_count, blocked_count, invoiced_count, paid_count, line_count, ready_rate
		FROM snapshot_summaries
		WHERE snapshot_id = $1
		ORDER BY scope_package_id
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []types.SnapshotSummary
	for rows.Next() {
		var sum types.SnapshotSummary
		if err := rows.Scan(&sum.SnapshotID, &sum.ScopePackageID, &sum.ReadyCount,
			&sum.BlockedCount, &sum.InvoicedCount, &sum.PaidCount, &sum.LineCount, &sum.ReadyRate); err != nil {
			return nil, err
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}
