package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/snapline-io/snapline/internal/config"
	"github.com/snapline-io/snapline/internal/grain"
	"github.com/snapline-io/snapline/pkg/types"
)

const validateTimeout = 2 * time.Minute

// NewValidateCmd creates the validate command.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and conformed input data",
		Long: `Checks that snapline.yaml parses, the provider is reachable, and the
conformed inputs satisfy the grain contract: unique award lines and
non-overlapping assignment intervals. Nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func runValidate() error {
	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	fmt.Println("Config: OK")

	ctx, cancel := context.WithTimeout(context.Background(), validateTimeout)
	defer cancel()

	_, prov, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := prov.Ping(ctx); err != nil {
		return fmt.Errorf("provider ping: %w", err)
	}
	fmt.Printf("Provider (%s): OK\n", cfg.Provider)

	lines, err := prov.ListPackageLines(ctx)
	if err != nil {
		return fmt.Errorf("listing package lines: %w", err)
	}
	intervals, err := prov.ListAssignmentIntervals(ctx)
	if err != nil {
		return fmt.Errorf("listing assignment intervals: %w", err)
	}

	var violations []string
	if _, err := grain.BuildSpine(lines, intervals, time.Now().UTC()); err != nil {
		var gv *types.GrainViolation
		if !errors.As(err, &gv) {
			return fmt.Errorf("building spine: %w", err)
		}
		violations = append(violations, gv.Error())
	}
	if err := grain.ValidateIntervals(intervals); err != nil {
		violations = append(violations, err.Error())
	}

	if len(violations) > 0 {
		color.Red("Grain violations: %d", len(violations))
		for _, v := range violations {
			fmt.Printf("  %s\n", v)
		}
		return fmt.Errorf("input data failed grain validation")
	}

	color.Green("Inputs: OK (%d lines, %d assignment intervals)", len(lines), len(intervals))
	return nil
}
