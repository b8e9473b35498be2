package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/purge"
)

// ExportCSV writes findings as CSV with the same columns as the terminal
// table, plus a severity column.
func ExportCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"severity", "category", "identifier", "source_id", "target_id", "reason"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		record := append([]string{severityLabel(r.Severity)}, r.cells()...)
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func severityLabel(s Severity) string {
	switch s {
	case Critical:
		return "critical"
	case Warn:
		return "warn"
	default:
		return "info"
	}
}

// ExportPurgeBackup writes every record a purge run selected before any
// deletion, in deletion order, with the full raw record per row.
func ExportPurgeBackup(w io.Writer, sel *purge.Selection) error {
	cw := csv.NewWriter(w)
	header := []string{"collection", "record_id", "email", "created_at", "detail", "record_json"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, name := range sel.Order {
		for _, e := range sel.Found[name] {
			created := ""
			if t := extract.CreatedAt(e.Record); !t.IsZero() {
				created = t.Format(time.RFC3339)
			}

			raw, err := json.Marshal(e.Record)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", e.Record.ID(), err)
			}

			row := []string{name, e.Record.ID(), e.Email, created, e.Detail, string(raw)}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportDedupeBackup writes every record of every duplicate group before
// any deletion, with the chosen disposition and the full raw record, so a
// botched dedupe can be reconstructed by hand.
func ExportDedupeBackup(w io.Writer, collection string, groups []index.DuplicateGroup, policy index.KeepPolicy) error {
	cw := csv.NewWriter(w)
	header := []string{"collection", "identifier", "record_id", "created_at", "disposition", "record_json"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, group := range groups {
		keeper := index.Keeper(group.Records, policy)
		for _, rec := range group.Records {
			disposition := "delete"
			if keeper != nil && rec.ID() == keeper.ID() {
				disposition = "keep"
			}

			created := ""
			if t := extract.CreatedAt(rec); !t.IsZero() {
				created = t.Format(time.RFC3339)
			}

			raw, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal record %s: %w", rec.ID(), err)
			}

			row := []string{collection, group.Identifier, rec.ID(), created, disposition, string(raw)}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("write row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
