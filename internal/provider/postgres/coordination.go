package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/snapline-io/snapline/pkg/types"
)

// GetCurrentPointer returns the current-snapshot pointer, or nil before the
// first publish.
func (p *PostgresProvider) GetCurrentPointer(ctx context.Context) (*types.CurrentPointer, error) {
	var ptr types.CurrentPointer
	err := p.pool.QueryRow(ctx, `
		SELECT snapshot_id, updated_at FROM current_pointer WHERE id = 1
	`).Scan(&ptr.SnapshotID, &ptr.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ptr, nil
}

// SetCurrentPointer advances the pointer conditionally: the write succeeds
// only while the stored snapshot ID still matches expectedPrev, with ""
// meaning the pointer has never been set.
func (p *PostgresProvider) SetCurrentPointer(ctx context.Context, expectedPrev string, ptr types.CurrentPointer) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if expectedPrev == "" {
		tag, err = p.pool.Exec(ctx, `
			INSERT INTO current_pointer (id, snapshot_id, updated_at)
			VALUES (1, $1, $2)
			ON CONFLICT (id) DO NOTHING
		`, ptr.SnapshotID, ptr.UpdatedAt)
	} else {
		tag, err = p.pool.Exec(ctx, `
			UPDATE current_pointer SET snapshot_id = $1, updated_at = $2
			WHERE id = 1 AND snapshot_id = $3
		`, ptr.SnapshotID, ptr.UpdatedAt, expectedPrev)
	}
	if err != nil {
		return fmt.Errorf("advancing pointer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("advancing pointer to %q: %w", ptr.SnapshotID, types.ErrPointerConflict)
	}
	return nil
}

// AcquireLease attempts to acquire the publish lease for a window key. An
// expired lease is taken over in the same statement.
func (p *PostgresProvider) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO publish_leases (lease_key, expires_at)
		VALUES ($1, NOW() + make_interval(secs => $2))
		ON CONFLICT (lease_key) DO UPDATE SET
			expires_at = EXCLUDED.expires_at
		WHERE publish_leases.expires_at < NOW()
	`, key, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReleaseLease releases a publish lease.
func (p *PostgresProvider) ReleaseLease(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM publish_leases WHERE lease_key = $1`, key)
	return err
}

// AppendEvent writes an audit event.
func (p *PostgresProvider) AppendEvent(ctx context.Context, event types.Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("marshal event details: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO events (kind, snapshot_id, as_of_ts, message, details, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(event.Kind), event.SnapshotID, event.AsOfTs, event.Message, details, event.Timestamp)
	return err
}

// ListEvents returns recent audit events for a snapshot, newest first.
func (p *PostgresProvider) ListEvents(ctx context.Context, snapshotID string, limit int) ([]types.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT kind, snapshot_id, as_of_ts, COALESCE(message, ''), details, timestamp
		FROM events
		WHERE snapshot_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2
	`, snapshotID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		var (
			ev      types.Event
			kind    string
			details []byte
		)
		if err := rows.Scan(&kind, &ev.SnapshotID, &ev.AsOfTs, &ev.Message, &details, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Kind = types.EventKind(kind)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &ev.Details); err != nil {
				return nil, fmt.Errorf("unmarshal event details: %w", err)
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
