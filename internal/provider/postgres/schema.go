// Package postgres implements the Provider interface on a Postgres database.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS package_lines (
    scope_package_id TEXT NOT NULL,
    floc_id          TEXT NOT NULL,
    upload_version   INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (scope_package_id, floc_id)
);

CREATE TABLE IF NOT EXISTS assignment_intervals (
    floc_id          TEXT NOT NULL,
    scope_package_id TEXT NOT NULL,
    effective_start  TIMESTAMPTZ NOT NULL,
    effective_end    TIMESTAMPTZ,
    PRIMARY KEY (floc_id, effective_start)
);
CREATE INDEX IF NOT EXISTS idx_assignments_floc ON assignment_intervals (floc_id);

CREATE TABLE IF NOT EXISTS evidence_aggregates (
    scope_package_id TEXT NOT NULL,
    floc_id          TEXT NOT NULL,
    evidence_type    TEXT NOT NULL,
    received         BOOLEAN NOT NULL,
    evidence_ts      TIMESTAMPTZ NOT NULL,
    item_count       INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (scope_package_id, floc_id, evidence_type)
);

CREATE TABLE IF NOT EXISTS invoice_lines (
    invoice_id       TEXT NOT NULL,
    scope_package_id TEXT NOT NULL,
    floc_id          TEXT NOT NULL,
    invoiced_ts      TIMESTAMPTZ NOT NULL,
    paid_ts          TIMESTAMPTZ,
    PRIMARY KEY (invoice_id, scope_package_id, floc_id)
);

CREATE TABLE IF NOT EXISTS invoice_reversals (
    invoice_id       TEXT NOT NULL,
    scope_package_id TEXT NOT NULL,
    floc_id          TEXT NOT NULL,
    reversed_ts      TIMESTAMPTZ NOT NULL,
    reason           TEXT,
    PRIMARY KEY (invoice_id, scope_package_id, floc_id, reversed_ts)
);

CREATE TABLE IF NOT EXISTS snapshots (
    snapshot_id    TEXT PRIMARY KEY,
    as_of_ts       TIMESTAMPTZ NOT NULL,
    rule_version   TEXT NOT NULL,
    status         TEXT NOT NULL,
    summary_status TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL,
    published_at   TIMESTAMPTZ,
    line_count     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_snapshots_created_at ON snapshots (created_at DESC);

CREATE TABLE IF NOT EXISTS snapshot_lines (
    snapshot_id      TEXT NOT NULL,
    scope_package_id TEXT NOT NULL,
    floc_id          TEXT NOT NULL,
    ready_to_invoice BOOLEAN NOT NULL,
    invoiced         BOOLEAN NOT NULL,
    paid             BOOLEAN NOT NULL,
    blocker_codes    JSONB,
    as_of_ts         TIMESTAMPTZ NOT NULL,
    rule_version     TEXT NOT NULL,
    PRIMARY KEY (snapshot_id, scope_package_id, floc_id)
);

CREATE TABLE IF NOT EXISTS snapshot_summaries (
    snapshot_id      TEXT NOT NULL,
    scope_package_id TEXT NOT NULL,
    ready_count      INTEGER NOT NULL,
    blocked_count    INTEGER NOT NULL,
    invoiced_count   INTEGER NOT NULL,
    paid_count       INTEGER NOT NULL,
    line_count       INTEGER NOT NULL,
    ready_rate       DOUBLE PRECISION NOT NULL,
    PRIMARY KEY (snapshot_id, scope_package_id)
);

CREATE TABLE IF NOT EXISTS current_pointer (
    id          SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    snapshot_id TEXT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS publish_leases (
    lease_key  TEXT PRIMARY KEY,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS events (
    id          BIGSERIAL PRIMARY KEY,
    kind        TEXT NOT NULL,
    snapshot_id TEXT NOT NULL DEFAULT '',
    as_of_ts    TIMESTAMPTZ,
    message     TEXT,
    details     JSONB,
    timestamp   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_snapshot ON events (snapshot_id, timestamp DESC);
`
