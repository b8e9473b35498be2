package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edukit/knackrecon/internal/archive"
	"github.com/edukit/knackrecon/internal/knack"
)

var (
	archiveCollections []string
	archiveNoClear     bool
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Archive a school's records and clear stale fields",
	Long: `Archive snapshots each named collection to CSV, both as a local file
and as a record in the archive collection, then blanks every
non-preserved field on the originals.

The snapshot is written before anything is cleared, and clearing requires
its own typed confirmation. --no-clear archives only.

Example:
  knackrecon archive --establishment "Example School" --apply`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringSliceVar(&archiveCollections, "collection",
		[]string{"results", "responses"}, "Collections to archive")
	archiveCmd.Flags().BoolVar(&archiveNoClear, "no-clear", false,
		"Only archive, don't clear the original records")

	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, args []string) error {
	if establishment == "" {
		return fmt.Errorf("--establishment is required for archive runs")
	}

	ctx, cancel := signalContext()
	defer cancel()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}
	defer rt.log.Sync()

	archiver, err := archive.New(rt.client, rt.log, rt.cfg.Archive)
	if err != nil {
		return err
	}

	fmt.Fprintf(outputWriter, "\n=== Archive: %s ===\n", rt.scopeName)
	fmt.Fprintf(outputWriter, "Collections: %v\n", archiveCollections)
	fmt.Fprintf(outputWriter, "Clear after snapshot: %v\n", !archiveNoClear)

	if !applyChanges {
		return dryRunArchive(ctx, rt)
	}

	if !confirm("ARCHIVE", fmt.Sprintf("\nAbout to archive %v for %s.", archiveCollections, rt.scopeName)) {
		fmt.Fprintln(outputWriter, "Aborted: confirmation phrase not entered.")
		return nil
	}

	for _, name := range archiveCollections {
		spec, ok := rt.cfg.Collection(name)
		if !ok {
			return fmt.Errorf("collection %q not found in configuration", name)
		}
		log := rt.log.WithCollection(name)

		records, err := rt.fetchRecords(ctx, name)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintf(outputWriter, "%s: no records in scope, skipping\n", name)
			continue
		}

		snap, err := archiver.Snapshot(ctx, spec, records, rt.scopeID, rt.scopeName)
		if err != nil {
			return fmt.Errorf("snapshot %s failed: %w", name, err)
		}
		fmt.Fprintf(outputWriter, "%s: archived %d record(s), %d column(s) -> %s (archive record %s)\n",
			name, snap.Records, snap.Columns, snap.LocalPath, snap.ArchiveRecordID)

		if archiveNoClear {
			continue
		}

		cleared, err := archiver.Clear(ctx, spec, records)
		if err != nil {
			return fmt.Errorf("clear %s failed: %w", name, err)
		}
		log.Infow("Cleared collection",
			"cleared", cleared.Cleared, "skipped", cleared.Skipped, "failed", cleared.Failed)
		fmt.Fprintf(outputWriter, "%s: cleared %d, skipped %d, failed %d (%s)\n",
			name, cleared.Cleared, cleared.Skipped, cleared.Failed,
			cleared.Duration.Round(time.Millisecond))
	}

	return nil
}

// dryRunArchive reports scope sizes without snapshotting or clearing.
func dryRunArchive(ctx context.Context, rt *session) error {
	for _, name := range archiveCollections {
		if _, ok := rt.cfg.Collection(name); !ok {
			return fmt.Errorf("collection %q not found in configuration", name)
		}
		records, err := rt.fetchRecords(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(outputWriter, "%s: %d record(s) would be archived\n", name, len(records))
	}
	fmt.Fprintln(outputWriter, "\nDry-run: no changes made. Re-run with --apply to execute.")
	return nil
}

// fetchRecords fetches one collection scoped to the establishment,
// without indexing.
func (rt *session) fetchRecords(ctx context.Context, name string) ([]knack.Record, error) {
	spec, ok := rt.cfg.Collection(name)
	if !ok {
		return nil, fmt.Errorf("collection %q not found in configuration", name)
	}

	var filters []knack.Filter
	if rt.scopeID != "" && spec.EstablishmentField != "" {
		filters = append(filters, knack.Filter{
			Field:    spec.EstablishmentField,
			Operator: "is",
			Value:    rt.scopeID,
		})
	}

	records, err := rt.client.FetchAll(ctx, spec.Object, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	return records, nil
}
