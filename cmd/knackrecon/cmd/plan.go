package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/match"
	"github.com/edukit/knackrecon/internal/plan"
	"github.com/edukit/knackrecon/internal/report"
)

var planPair string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the staged corrective actions for a pair",
	Long: `Plan runs the same classification as reconcile and prints only the
staged corrective actions, one row per action. Nothing is ever written,
regardless of --apply.

Example:
  knackrecon plan --pair results_responses --establishment "Example School"`,
	RunE: runPlanCmd,
}

func init() {
	planCmd.Flags().StringVar(&planPair, "pair", "results_responses",
		"Pair relationship name from configuration")

	rootCmd.AddCommand(planCmd)
}

func runPlanCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	pairSpec, ok := rt.cfg.Pair(planPair)
	if !ok {
		return fmt.Errorf("pair %q not found in configuration", planPair)
	}
	sourceSpec, _ := rt.cfg.Collection(pairSpec.Source)
	targetSpec, _ := rt.cfg.Collection(pairSpec.Target)

	source, err := rt.fetchIndex(ctx, pairSpec.Source, "")
	if err != nil {
		return err
	}
	target, err := rt.fetchIndex(ctx, pairSpec.Target, pairSpec.ConnectionField)
	if err != nil {
		return err
	}

	result, err := match.MatchPair(pairSpec, source, target)
	if err != nil {
		return fmt.Errorf("matching failed: %w", err)
	}

	staged := plan.BuildPairPlan(pairSpec, sourceSpec, targetSpec, result)

	fmt.Fprintf(outputWriter, "\n=== Plan: %s ===\n", planPair)
	report.WritePlanSummary(outputWriter, staged)
	fmt.Fprintln(outputWriter)
	report.RenderTable(outputWriter, report.PlanRows(staged))

	return nil
}
