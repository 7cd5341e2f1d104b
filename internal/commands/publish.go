package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/snapline-io/snapline/internal/config"
	"github.com/snapline-io/snapline/internal/observability"
	"github.com/snapline-io/snapline/internal/publisher"
	"github.com/snapline-io/snapline/pkg/types"
)

const publishTimeout = 5 * time.Minute

// NewPublishCmd creates the publish command.
func NewPublishCmd(version string) *cobra.Command {
	var (
		asOf        string
		ruleVersion string
		dryRun      bool
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Run an eligibility publish cycle",
		Long: `Computes eligibility for every awarded line as of a timestamp, evaluates
the versioned readiness rules, and publishes an immutable snapshot. With
--dry-run everything is computed and validated but nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(asOf, ruleVersion, dryRun, version)
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "As-of timestamp, RFC3339 (default: now)")
	cmd.Flags().StringVar(&ruleVersion, "rule-version", "", "Rule version to evaluate (default: from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Compute without writing")
	return cmd
}

func runPublish(asOf, ruleVersion string, dryRun bool, version string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	asOfTs := time.Now().UTC()
	if asOf != "" {
		asOfTs, err = time.Parse(time.RFC3339, asOf)
		if err != nil {
			return fmt.Errorf("parsing --as-of: %w", err)
		}
	}

	rv := defaultRuleVersion(cfg)
	if ruleVersion != "" {
		rv = types.RuleVersion(ruleVersion)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	shutdown, err := observability.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	pub, _, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := pub.Publish(ctx, publisher.PublishRequest{
		AsOfTs:      asOfTs,
		RuleVersion: rv,
		DryRun:      dryRun,
	})
	if err != nil {
		return fmt.Errorf("publish cycle failed: %w", err)
	}

	printPublishResult(result, asOfTs, rv)
	return nil
}

func printPublishResult(result *publisher.PublishResult, asOfTs time.Time, rv types.RuleVersion) {
	bold := color.New(color.Bold)

	if result.DryRun {
		_, _ = bold.Printf("\nDry run (as of %s, rules %s)\n", asOfTs.Format(time.RFC3339), rv)
	} else {
		_, _ = bold.Printf("\nSnapshot %s (as of %s, rules %s)\n", result.SnapshotID, asOfTs.Format(time.RFC3339), rv)
		color.Green("Status: %s", result.Status)
	}

	ready := 0
	for _, line := range result.Lines {
		if line.ReadyToInvoice {
			ready++
		}
	}
	fmt.Printf("Lines: %d total, %d ready, %d blocked\n", len(result.Lines), ready, len(result.Lines)-ready)

	if len(result.Summaries) > 0 {
		fmt.Println()
		_, _ = bold.Println("Per-package summary:")
		for _, sum := range result.Summaries {
			fmt.Printf("  %-24s ready=%-5d blocked=%-5d invoiced=%-5d paid=%-5d (%.0f%% ready)\n",
				sum.ScopePackageID, sum.ReadyCount, sum.BlockedCount,
				sum.InvoicedCount, sum.PaidCount, sum.ReadyRate*100)
		}
	}

	if len(result.Signals) > 0 {
		fmt.Println()
		color.Yellow("Data-quality signals: %d", len(result.Signals))
		for _, sig := range result.Signals {
			fmt.Printf("  [%s] %s\n", sig.Kind, sig.Message)
		}
	}
	fmt.Println()
}
