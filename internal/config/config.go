// Package config handles loading and validation of snapline.yaml project configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ddbprov "github.com/snapline-io/snapline/internal/provider/dynamodb"
	pgprov "github.com/snapline-io/snapline/internal/provider/postgres"
	"github.com/snapline-io/snapline/pkg/types"
)

// providerConfigs is a helper struct used for a second YAML unmarshal pass
// to decode provider-specific config sections into their concrete types.
type providerConfigs struct {
	DynamoDB *ddbprov.Config `yaml:"dynamodb,omitempty"`
	Postgres *pgprov.Config  `yaml:"postgres,omitempty"`
}

// Load reads and parses snapline.yaml from the given directory.
func Load(dir string) (*types.ProjectConfig, error) {
	path := filepath.Join(dir, "snapline.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg types.ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Second pass: decode provider-specific sections into concrete types.
	var raw providerConfigs
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing provider config: %w", err)
	}
	if raw.DynamoDB != nil {
		cfg.DynamoDB = raw.DynamoDB
	}
	if raw.Postgres != nil {
		cfg.Postgres = raw.Postgres
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *types.ProjectConfig) error {
	if cfg.Provider == "" {
		return fmt.Errorf("provider is required")
	}
	switch cfg.Provider {
	case "memory":
	case "dynamodb":
		dc, _ := cfg.DynamoDB.(*ddbprov.Config)
		if dc == nil {
			return fmt.Errorf("dynamodb config is required when provider is dynamodb")
		}
		if dc.TableName == "" {
			return fmt.Errorf("dynamodb.tableName is required")
		}
	case "postgres":
		pc, _ := cfg.Postgres.(*pgprov.Config)
		if pc == nil {
			return fmt.Errorf("postgres config is required when provider is postgres")
		}
		if pc.DSN == "" && pc.DSNSecretARN == "" {
			return fmt.Errorf("postgres.dsn or postgres.dsnSecretArn is required")
		}
	default:
		return fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	if cfg.Publisher != nil && cfg.Publisher.LeaseTTL != "" {
		if _, err := time.ParseDuration(cfg.Publisher.LeaseTTL); err != nil {
			return fmt.Errorf("publisher.leaseTtl: %w", err)
		}
	}

	for _, alert := range cfg.Alerts {
		switch alert.Type {
		case types.AlertConsole, types.AlertFile, types.AlertWebhook, types.AlertSQS, types.AlertEventBridge:
		default:
			return fmt.Errorf("unknown alert type %q", alert.Type)
		}
	}
	return nil
}
