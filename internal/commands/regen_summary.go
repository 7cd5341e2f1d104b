package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/snapline-io/snapline/internal/config"
)

const regenTimeout = time.Minute

// NewRegenSummaryCmd creates the regen-summary command.
func NewRegenSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "regen-summary [snapshot-id]",
		Short: "Regenerate deferred summaries for a published snapshot",
		Long: `A publish commit that fails only on the summary write still publishes the
snapshot and marks its summaries PENDING_REGEN. This recomputes them from the
stored lines and clears the flag.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenSummary(args[0])
		},
	}
}

func runRegenSummary(snapshotID string) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), regenTimeout)
	defer cancel()

	pub, _, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	sums, err := pub.RegenerateSummaries(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("regenerating summaries: %w", err)
	}

	color.Green("Regenerated %d package summaries for %s", len(sums), snapshotID)
	for _, sum := range sums {
		fmt.Printf("  %-24s ready=%-5d blocked=%-5d invoiced=%-5d paid=%-5d\n",
			sum.ScopePackageID, sum.ReadyCount, sum.BlockedCount, sum.InvoicedCount, sum.PaidCount)
	}
	return nil
}
