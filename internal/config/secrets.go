package config

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	pgprov "github.com/snapline-io/snapline/internal/provider/postgres"
	"github.com/snapline-io/snapline/pkg/types"
)

// SecretsAPI is the subset of the Secrets Manager client used for DSN
// resolution.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, input *secretsmanager.GetSecretValueInput, opts ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// ResolveSecrets fills in config values that reference AWS Secrets Manager.
// Currently that is the Postgres DSN: when dsnSecretArn is set and no inline
// DSN is given, the secret's string value becomes the DSN. A nil client loads
// the default AWS credential chain.
func ResolveSecrets(ctx context.Context, cfg *types.ProjectConfig, client SecretsAPI) error {
	pc, _ := cfg.Postgres.(*pgprov.Config)
	if pc == nil || pc.DSN != "" || pc.DSNSecretARN == "" {
		return nil
	}

	if client == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("loading AWS config: %w", err)
		}
		client = secretsmanager.NewFromConfig(awsCfg)
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &pc.DSNSecretARN,
	})
	if err != nil {
		return fmt.Errorf("fetching DSN secret %q: %w", pc.DSNSecretARN, err)
	}
	if out.SecretString == nil || *out.SecretString == "" {
		return fmt.Errorf("DSN secret %q has no string value", pc.DSNSecretARN)
	}

	pc.DSN = *out.SecretString
	return nil
}
