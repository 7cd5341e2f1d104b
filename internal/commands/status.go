package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/snapline-io/snapline/internal/config"
	"github.com/snapline-io/snapline/internal/provider"
	"github.com/snapline-io/snapline/pkg/types"
)

const statusTimeout = 30 * time.Second

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status [snapshot-id]",
		Short: "Show the current snapshot and recent publish history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshotID string
			if len(args) > 0 {
				snapshotID = args[0]
			}
			return runStatus(snapshotID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "How many snapshots or events to show")
	return cmd
}

func runStatus(snapshotID string, limit int) error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), statusTimeout)
	defer cancel()

	_, prov, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if snapshotID != "" {
		return showSnapshot(ctx, prov, snapshotID, limit)
	}
	return showOverview(ctx, prov, limit)
}

func showOverview(ctx context.Context, prov provider.Provider, limit int) error {
	bold := color.New(color.Bold)

	ptr, err := prov.GetCurrentPointer(ctx)
	if err != nil {
		return fmt.Errorf("reading current pointer: %w", err)
	}
	if ptr == nil {
		fmt.Println("No snapshot published yet.")
	} else {
		snap, err := prov.GetSnapshot(ctx, ptr.SnapshotID)
		if err != nil {
			return fmt.Errorf("reading current snapshot: %w", err)
		}
		_, _ = bold.Printf("\nCurrent snapshot: %s\n", snap.SnapshotID)
		fmt.Printf("  As of:        %s\n", snap.AsOfTs.Format(time.RFC3339))
		fmt.Printf("  Rules:        %s\n", snap.RuleVersion)
		fmt.Printf("  Lines:        %d\n", snap.LineCount)
		if snap.SummaryStatus == types.SummaryPendingRegen {
			color.Yellow("  Summaries:    PENDING_REGEN (run: snapline regen-summary %s)", snap.SnapshotID)
		}
	}

	snaps, err := prov.ListSnapshots(ctx, limit)
	if err != nil {
		return fmt.Errorf("listing snapshots: %w", err)
	}
	if len(snaps) == 0 {
		return nil
	}

	fmt.Println()
	_, _ = bold.Println("Recent snapshots:")
	for _, snap := range snaps {
		statusStr := color.YellowString(string(snap.Status))
		switch snap.Status {
		case types.SnapshotPublished:
			statusStr = color.GreenString(string(snap.Status))
		case types.SnapshotFailed:
			statusStr = color.RedString(string(snap.Status))
		}
		fmt.Printf("  %-30s %-12s as-of=%s lines=%d\n",
			snap.SnapshotID, statusStr, snap.AsOfTs.Format("2006-01-02T15:04Z"), snap.LineCount)
	}
	fmt.Println()
	return nil
}

func showSnapshot(ctx context.Context, prov provider.Provider, snapshotID string, limit int) error {
	bold := color.New(color.Bold)

	snap, err := prov.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return err
	}

	_, _ = bold.Printf("\nSnapshot %s\n", snap.SnapshotID)
	fmt.Printf("  Status:       %s\n", snap.Status)
	fmt.Printf("  As of:        %s\n", snap.AsOfTs.Format(time.RFC3339))
	fmt.Printf("  Rules:        %s\n", snap.RuleVersion)
	fmt.Printf("  Created:      %s\n", snap.CreatedAt.Format(time.RFC3339))
	if snap.PublishedAt != nil {
		fmt.Printf("  Published:    %s\n", snap.PublishedAt.Format(time.RFC3339))
	}

	sums, err := prov.ListSnapshotSummaries(ctx, snapshotID)
	if err != nil {
		return fmt.Errorf("listing summaries: %w", err)
	}
	if len(sums) > 0 {
		fmt.Println()
		_, _ = bold.Println("Per-package summary:")
		for _, sum := range sums {
			fmt.Printf("  %-24s ready=%-5d blocked=%-5d invoiced=%-5d paid=%-5d\n",
				sum.ScopePackageID, sum.ReadyCount, sum.BlockedCount, sum.InvoicedCount, sum.PaidCount)
		}
	}

	events, err := prov.ListEvents(ctx, snapshotID, limit)
	if err != nil {
		return fmt.Errorf("listing events: %w", err)
	}
	if len(events) > 0 {
		fmt.Println()
		_, _ = bold.Println("Audit events:")
		for _, ev := range events {
			fmt.Printf("  %s  %-22s %s\n", ev.Timestamp.Format(time.RFC3339), ev.Kind, ev.Message)
		}
	}
	fmt.Println()
	return nil
}
