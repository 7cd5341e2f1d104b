// Package commands implements the CLI subcommands for the snapline binary.
package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/snapline-io/snapline/internal/config"
	"github.com/snapline-io/snapline/internal/notify"
	"github.com/snapline-io/snapline/internal/provider"
	ddbprov "github.com/snapline-io/snapline/internal/provider/dynamodb"
	"github.com/snapline-io/snapline/internal/provider/memory"
	pgprov "github.com/snapline-io/snapline/internal/provider/postgres"
	"github.com/snapline-io/snapline/internal/publisher"
	"github.com/snapline-io/snapline/internal/rules"
	"github.com/snapline-io/snapline/pkg/types"
)

// newProvider creates the configured storage provider. Secret references in
// the config must already be resolved.
func newProvider(ctx context.Context, cfg *types.ProjectConfig) (provider.Provider, error) {
	switch cfg.Provider {
	case "memory":
		return memory.New(), nil
	case "dynamodb":
		dc, ok := cfg.DynamoDB.(*ddbprov.Config)
		if !ok || dc == nil {
			return nil, fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		return ddbprov.New(dc)
	case "postgres":
		pc, ok := cfg.Postgres.(*pgprov.Config)
		if !ok || pc == nil {
			return nil, fmt.Errorf("postgres config is required when provider is postgres")
		}
		return pgprov.New(ctx, pc)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}

// buildPublisher wires the provider, rule registry, and alert dispatcher into
// a publisher. The returned cleanup stops the provider.
func buildPublisher(ctx context.Context, cfg *types.ProjectConfig) (*publisher.Publisher, provider.Provider, func(), error) {
	if err := config.ResolveSecrets(ctx, cfg, nil); err != nil {
		return nil, nil, nil, err
	}

	prov, err := newProvider(ctx, cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("creating provider: %w", err)
	}
	if err := prov.Start(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to provider: %w", err)
	}

	dispatcher, err := notify.NewDispatcher(cfg.Alerts, nil)
	if err != nil {
		_ = prov.Stop(ctx)
		return nil, nil, nil, fmt.Errorf("creating alert dispatcher: %w", err)
	}

	opts := []publisher.Option{publisher.WithAlertFunc(dispatcher.AlertFunc())}
	if cfg.Publisher != nil {
		if cfg.Publisher.MinImages > 0 {
			opts = append(opts, publisher.WithMinImages(cfg.Publisher.MinImages))
		}
		if cfg.Publisher.LeaseTTL != "" {
			if ttl, err := time.ParseDuration(cfg.Publisher.LeaseTTL); err == nil {
				opts = append(opts, publisher.WithLeaseTTL(ttl))
			}
		}
	}

	pub := publisher.New(prov, rules.NewRegistry(), opts...)

	cleanup := func() {
		_ = prov.Stop(context.Background())
	}
	return pub, prov, cleanup, nil
}

// defaultRuleVersion returns the configured default, falling back to v1.
func defaultRuleVersion(cfg *types.ProjectConfig) types.RuleVersion {
	if cfg.Publisher != nil && cfg.Publisher.DefaultRuleVersion != "" {
		return types.RuleVersion(cfg.Publisher.DefaultRuleVersion)
	}
	return rules.V1
}
