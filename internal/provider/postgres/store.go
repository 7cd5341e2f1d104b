package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/snapline-io/snapline/internal/provider"
)

// Compile-time interface satisfaction check.
var _ provider.Provider = (*PostgresProvider)(nil)

// Config holds Postgres connection settings. DSN may be given inline or
// resolved out of AWS Secrets Manager by the config layer before New is
// called.
type Config struct {
	DSN          string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	DSNSecretARN string `yaml:"dsnSecretArn,omitempty" json:"dsnSecretArn,omitempty"`
	Migrate      bool   `yaml:"migrate,omitempty" json:"migrate,omitempty"`
}

// PostgresProvider implements the Provider interface on a pgx connection pool.
type PostgresProvider struct {
	pool    *pgxpool.Pool
	migrate bool
}

// New creates a new PostgresProvider and verifies the connection.
func New(ctx context.Context, cfg *Config) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &PostgresProvider{pool: pool, migrate: cfg.Migrate}, nil
}

// Start runs the schema DDL when migration is enabled.
func (p *PostgresProvider) Start(ctx context.Context) error {
	if !p.migrate {
		return nil
	}
	if _, err := p.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}

// Stop closes the connection pool.
func (p *PostgresProvider) Stop(_ context.Context) error {
	p.pool.Close()
	return nil
}

// Ping checks database connectivity.
func (p *PostgresProvider) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
