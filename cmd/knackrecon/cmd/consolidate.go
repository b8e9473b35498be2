package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/match"
	"github.com/edukit/knackrecon/internal/plan"
	"github.com/edukit/knackrecon/internal/report"
)

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Validate the full student data chain and stage fixes",
	Long: `Consolidate walks every student account through the configured chain of
collections, reports where each chain breaks, and stages corrective
actions.

The report shows:
  - Complete chains
  - Broken chains, bucketed by the first hop that failed
  - Email mismatches along resolved hops
  - Name discrepancies between the authoritative and terminal collections
  - Downstream records not reached by any chain (orphans)
  - Duplicate identifier groups per collection, the root included

Staged fixes: create the missing next-hop record where the hop declares a
field correspondence, rewrite terminal names from the source of truth,
and delete orphans. Without --apply nothing is written; with --apply each
batch kind still requires its typed confirmation phrase.

Example:
  knackrecon consolidate --establishment "Example School" --report reports/`,
	RunE: runConsolidate,
}

func init() {
	rootCmd.AddCommand(consolidateCmd)
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	chain := rt.cfg.Chain
	rt.log.Infow("Starting consolidate", "root", chain.Root, "hops", len(chain.Hops), "apply", applyChanges)

	// Reverse hops need the target indexed by its connection field.
	connectionField := make(map[string]string, len(chain.Hops))
	for _, hop := range chain.Hops {
		if hop.Reverse {
			connectionField[hop.To] = hop.ConnectionField
		}
	}

	indexes := make(map[string]*index.Index, len(chain.Hops)+1)
	rootIx, err := rt.fetchIndex(ctx, chain.Root, connectionField[chain.Root])
	if err != nil {
		return err
	}
	indexes[chain.Root] = rootIx

	for _, hop := range chain.Hops {
		if _, done := indexes[hop.To]; done {
			continue
		}
		ix, err := rt.fetchIndex(ctx, hop.To, connectionField[hop.To])
		if err != nil {
			return err
		}
		indexes[hop.To] = ix
	}

	validator, err := match.NewChain(chain, indexes)
	if err != nil {
		return fmt.Errorf("invalid chain configuration: %w", err)
	}
	result := validator.Validate()

	// Per-collection buckets (orphans, duplicates) list in chain order
	// with the root first, so root-collection duplicates surface too.
	bucketOrder := validator.Collections()

	fmt.Fprintf(outputWriter, "\n=== Consolidate: %s chain ===\n", chain.Root)
	report.WriteChainSummary(outputWriter, result, bucketOrder)

	rows := report.ChainRows(result, bucketOrder)
	fmt.Fprintln(outputWriter)
	report.RenderTable(outputWriter, rows)

	if path, err := rt.exportReport("consolidate", rows); err != nil {
		return err
	} else if path != "" {
		fmt.Fprintf(outputWriter, "\nReport written to %s\n", path)
	}

	staged := plan.BuildChainPlan(chain, rt.cfg.Collections, result, indexes)
	fmt.Fprintln(outputWriter)
	report.WritePlanSummary(outputWriter, staged)

	if !applyChanges {
		fmt.Fprintln(outputWriter, "\nDry-run: no changes made. Re-run with --apply to execute.")
		return nil
	}

	return applyByKind(ctx, rt, staged)
}
