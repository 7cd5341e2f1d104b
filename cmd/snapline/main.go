package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/snapline-io/snapline/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "snapline",
		Short: "Eligibility snapshot publisher for vendor invoicing",
		Long: `Snapline reconciles awarded work lines against field evidence and vendor
invoicing facts, evaluates versioned readiness rules, and publishes immutable
eligibility snapshots. Every publish is atomic: vendors see the previous
snapshot until the new one is fully committed.`,
		Version: version,
	}

	root.AddCommand(
		commands.NewInitCmd(),
		commands.NewPublishCmd(version),
		commands.NewStatusCmd(),
		commands.NewValidateCmd(),
		commands.NewRegenSummaryCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
