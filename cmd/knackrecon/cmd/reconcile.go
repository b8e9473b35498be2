package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/match"
	"github.com/edukit/knackrecon/internal/plan"
	"github.com/edukit/knackrecon/internal/report"
)

var reconcilePair string

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a connected pair of collections",
	Long: `Reconcile fetches both collections of a configured pair relationship,
classifies every record, and stages corrective actions.

Classification:
  - matched (by connection, or by identifier fallback)
  - connected but missing its own email copy (fix: populate)
  - only in the source collection (fix: create counterpart)
  - truly orphaned (fix: delete)
  - duplicate identifier groups on either side (reported)

Without --apply nothing is written. With --apply, each batch kind still
requires its typed confirmation phrase.

Example:
  knackrecon reconcile --pair results_responses --establishment "Example School"`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcilePair, "pair", "results_responses",
		"Pair relationship name from configuration")

	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	pairSpec, ok := rt.cfg.Pair(reconcilePair)
	if !ok {
		return fmt.Errorf("pair %q not found in configuration", reconcilePair)
	}
	sourceSpec, _ := rt.cfg.Collection(pairSpec.Source)
	targetSpec, _ := rt.cfg.Collection(pairSpec.Target)

	rt.log.Infow("Starting reconcile", "pair", reconcilePair, "apply", applyChanges)

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

	fmt.Fprintf(outputWriter, "\n=== Reconcile: %s ===\n", reconcilePair)
	report.WritePairSummary(outputWriter, result)

	rows := report.PairRows(result)
	fmt.Fprintln(outputWriter)
	report.RenderTable(outputWriter, rows)

	if path, err := rt.exportReport("reconcile_"+reconcilePair, rows); err != nil {
		return err
	} else if path != "" {
		fmt.Fprintf(outputWriter, "\nReport written to %s\n", path)
	}

	staged := plan.BuildPairPlan(pairSpec, sourceSpec, targetSpec, result)
	fmt.Fprintln(outputWriter)
	report.WritePlanSummary(outputWriter, staged)

	if !applyChanges {
		fmt.Fprintln(outputWriter, "\nDry-run: no changes made. Re-run with --apply to execute.")
		return nil
	}

	return applyByKind(ctx, rt, staged)
}

// applyByKind executes a staged plan one action kind at a time, each kind
// gated behind its own typed confirmation. Declining a kind skips it and
// moves on.
func applyByKind(ctx context.Context, rt *session, staged *plan.Plan) error {
	applier, err := plan.NewApplier(rt.client, rt.log)
	if err != nil {
		return err
	}

	for _, kind := range []plan.ActionKind{plan.CreateRecord, plan.PopulateField, plan.UpdateField, plan.DeleteRecord} {
		var batch []plan.Action
		for _, a := range staged.Actions {
			if a.Kind == kind {
				batch = append(batch, a)
			}
		}
		if len(batch) == 0 {
			continue
		}

		phrase := plan.ConfirmPhrase(kind)
		prompt := fmt.Sprintf("\nAbout to %s %d record(s).", string(kind), len(batch))
		if !confirm(phrase, prompt) {
			fmt.Fprintf(outputWriter, "Skipped %s batch.\n", string(kind))
			continue
		}

		stats, err := applier.Apply(ctx, batch)
		fmt.Fprintf(outputWriter, "%s: %d applied, %d failed (%s)\n",
			string(kind), stats.Applied, stats.Failed, stats.Duration.Round(time.Millisecond))
		if err != nil {
			return fmt.Errorf("%s batch interrupted: %w", string(kind), err)
		}
	}

	return nil
}
