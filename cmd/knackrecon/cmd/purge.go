package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/plan"
	"github.com/edukit/knackrecon/internal/purge"
	"github.com/edukit/knackrecon/internal/report"
)

var (
	purgeMode       string
	purgeYearGroup  string
	purgeTutorGroup string
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete student records in bulk",
	Long: `Purge deletes a school's student records, typically at the end of an
academic year.

Modes:
  all-student-data  Accounts holding ONLY the student role, plus every
                    results and responses record carrying one of their
                    emails. Accounts with additional roles are never
                    touched.
  assessment-data   Only the results and responses collections, selected
                    by the establishment/year/tutor filters.

Deletion runs downstream collections first. Before anything is deleted a
backup CSV of every selected record is written. Without --apply nothing
is deleted; with --apply the DELETE confirmation phrase is still required.

Examples:
  knackrecon purge --mode all-student-data --establishment "Example School"
  knackrecon purge --mode assessment-data --establishment "Example School" --year-group "Year 11" --apply`,
	RunE: runPurge,
}

func init() {
	purgeCmd.Flags().StringVar(&purgeMode, "mode", "",
		"Purge mode: all-student-data or assessment-data (required)")
	purgeCmd.MarkFlagRequired("mode")
	purgeCmd.Flags().StringVar(&purgeYearGroup, "year-group", "",
		"Limit the purge to one year group")
	purgeCmd.Flags().StringVar(&purgeTutorGroup, "tutor-group", "",
		"Limit the purge to one tutor group")

	rootCmd.AddCommand(purgeCmd)
}

func runPurge(cmd *cobra.Command, args []string) error {
	mode, err := purge.ParseMode(purgeMode)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	rt.log.Infow("Starting purge",
		"mode", string(mode), "scope", rt.scopeID,
		"year_group", purgeYearGroup, "tutor_group", purgeTutorGroup,
		"apply", applyChanges)

	selector, err := purge.NewSelector(rt.client, rt.cfg, rt.log)
	if err != nil {
		return err
	}

	sel, err := selector.Select(ctx, mode, purge.Filters{
		ScopeID:    rt.scopeID,
		YearGroup:  purgeYearGroup,
		TutorGroup: purgeTutorGroup,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(outputWriter, "\n=== Purge: %s ===\n", string(mode))
	if rt.scopeName != "" {
		fmt.Fprintf(outputWriter, "Establishment: %s\n", rt.scopeName)
	}
	for _, name := range sel.Order {
		fmt.Fprintf(outputWriter, "  %-12s %d record(s)\n", name+":", len(sel.Found[name]))
	}
	if len(sel.Emails) > 0 {
		fmt.Fprintf(outputWriter, "  unique student emails: %d\n", len(sel.Emails))
	}

	if sel.Total() == 0 {
		fmt.Fprintln(outputWriter, "\nNothing matches the filters.")
		return nil
	}

	if !applyChanges {
		fmt.Fprintf(outputWriter, "\nDry-run: %d record(s) would be deleted. Re-run with --apply to execute.\n", sel.Total())
		return nil
	}

	// Backup first, unconditionally. No backup, no deletions.
	backupPath, err := rt.writePurgeBackup(sel)
	if err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	fmt.Fprintf(outputWriter, "\nBackup written to %s\n", backupPath)

	prompt := fmt.Sprintf("\nAbout to permanently delete %d record(s).", sel.Total())
	if !confirm(plan.ConfirmPhrase(plan.DeleteRecord), prompt) {
		fmt.Fprintln(outputWriter, "Aborted: confirmation phrase not entered.")
		return nil
	}

	applier, err := plan.NewApplier(rt.client, rt.log)
	if err != nil {
		return err
	}
	stats, err := applier.Apply(ctx, sel.Plan(rt.cfg).Mutations())
	fmt.Fprintf(outputWriter, "deleted %d, failed %d (%s)\n",
		stats.Applied, stats.Failed, stats.Duration.Round(time.Millisecond))
	if err != nil {
		return fmt.Errorf("purge interrupted: %w", err)
	}
	return nil
}

// writePurgeBackup writes the pre-deletion backup CSV next to the
// reports, or into the working directory when reporting is disabled.
func (rt *session) writePurgeBackup(sel *purge.Selection) (string, error) {
	dir := reportDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	path := filepath.Join(dir, fmt.Sprintf("purge_backup_%s_%s.csv", string(sel.Mode), rt.runID))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := report.ExportPurgeBackup(f, sel); err != nil {
		return "", err
	}
	return path, nil
}
