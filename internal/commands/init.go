package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [project-name]",
		Short: "Initialize a new Snapline project",
		Long:  "Creates project scaffolding with a starter snapline.yaml.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(args[0])
		},
	}
}

func runInit(projectName string) error {
	bold := color.New(color.Bold)

	_, _ = bold.Printf("Initializing Snapline project: %s\n", projectName)

	if err := os.MkdirAll(projectName, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", projectName, err)
	}

	configPath := filepath.Join(projectName, "snapline.yaml")
	configContent := `provider: memory
# provider: dynamodb
# dynamodb:
#   tableName: snapline
#   region: us-east-1
#   createTable: true
# provider: postgres
# postgres:
#   dsnSecretArn: arn:aws:secretsmanager:us-east-1:123456789012:secret:snapline-dsn
#   migrate: true
publisher:
  defaultRuleVersion: v1
  minImages: 8
  leaseTtl: 5m
alerts:
  - type: console
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("Created %s", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  snapline validate")
	fmt.Println("  snapline publish --dry-run")
	return nil
}
