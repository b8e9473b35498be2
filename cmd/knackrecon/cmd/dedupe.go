package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/plan"
	"github.com/edukit/knackrecon/internal/report"
)

var dedupeCollection string

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Find and remove duplicate records in one collection",
	Long: `Dedupe groups a collection's records by normalized identifier (email
preferred, name fallback) and stages deletion of every record except the
keeper, chosen by the keep policy (oldest by default; records without a
parseable creation date count as oldest).

Before any deletion a backup CSV of every affected record is written, so
a botched run can be reconstructed.

Example:
  knackrecon dedupe --collection responses --keep oldest --apply`,
	RunE: runDedupe,
}

func init() {
	dedupeCmd.Flags().StringVar(&dedupeCollection, "collection", "",
		"Collection name from configuration (required)")
	dedupeCmd.MarkFlagRequired("collection")

	rootCmd.AddCommand(dedupeCmd)
}

func runDedupe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	spec, ok := rt.cfg.Collection(dedupeCollection)
	if !ok {
		return fmt.Errorf("collection %q not found in configuration", dedupeCollection)
	}

	rt.log.Infow("Starting dedupe",
		"collection", dedupeCollection, "keep", string(rt.keep()), "apply", applyChanges)

	ix, err := rt.fetchIndex(ctx, dedupeCollection, "")
	if err != nil {
		return err
	}

	groups := ix.DuplicateGroups()
	fmt.Fprintf(outputWriter, "\n=== Dedupe: %s ===\n", dedupeCollection)
	fmt.Fprintf(outputWriter, "%d records, %d duplicate group(s)\n", ix.Len(), len(groups))
	if len(groups) == 0 {
		return nil
	}

	staged := plan.BuildDedupePlan(dedupeCollection, spec, groups, rt.keep())

	rows := report.PlanRows(staged)
	fmt.Fprintln(outputWriter)
	report.RenderTable(outputWriter, rows)
	fmt.Fprintln(outputWriter)
	report.WritePlanSummary(outputWriter, staged)

	if _, err := rt.exportReport("dedupe_"+dedupeCollection, rows); err != nil {
		return err
	}

	if !applyChanges {
		fmt.Fprintln(outputWriter, "\nDry-run: no changes made. Re-run with --apply to execute.")
		return nil
	}

	// Backup first, unconditionally. No backup, no deletions.
	backupPath, err := rt.writeDedupeBackup(dedupeCollection, ix)
	if err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	fmt.Fprintf(outputWriter, "\nBackup written to %s\n", backupPath)

	deletions := staged.Mutations()
	prompt := fmt.Sprintf("\nAbout to delete %d duplicate record(s) from %s.",
		len(deletions), dedupeCollection)
	if !confirm(plan.ConfirmPhrase(plan.DeleteRecord), prompt) {
		fmt.Fprintln(outputWriter, "Aborted: confirmation phrase not entered.")
		return nil
	}

	applier, err := plan.NewApplier(rt.client, rt.log)
	if err != nil {
		return err
	}
	stats, err := applier.Apply(ctx, deletions)
	fmt.Fprintf(outputWriter, "deleted %d, failed %d (%s)\n",
		stats.Applied, stats.Failed, stats.Duration.Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("dedupe interrupted: %w", err)
	}
	return nil
}

// writeDedupeBackup writes the pre-deletion backup CSV next to the
// reports, or into the working directory when reporting is disabled.
func (rt *session) writeDedupeBackup(collection string, ix *index.Index) (string, error) {
	dir := reportDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("dedupe_backup_%s_%s.csv", collection, rt.runID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := report.ExportDedupeBackup(f, collection, ix.DuplicateGroups(), rt.keep()); err != nil {
		return "", err
	}
	return path, nil
}
