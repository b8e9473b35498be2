// Package report renders match results and staged plans for humans:
// colored terminal tables and CSV exports. Pure formatting, no store
// access.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/match"
	"github.com/edukit/knackrecon/internal/plan"
)

// Severity drives row coloring.
type Severity int

const (
	// Info rows are healthy or purely informational.
	Info Severity = iota
	// Warn rows are fixable findings.
	Warn
	// Critical rows need operator review or a destructive fix.
	Critical
)

// Row is one finding in a rendered table.
type Row struct {
	Severity   Severity
	Category   string
	Identifier string
	SourceID   string
	TargetID   string
	Reason     string
}

var tableHeader = []string{"CATEGORY", "IDENTIFIER", "SOURCE ID", "TARGET ID", "REASON"}

// RenderTable writes rows as an aligned table. Widths are computed with
// runewidth so non-ASCII identifiers keep columns straight.
func RenderTable(w io.Writer, rows []Row) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "nothing to report")
		return
	}

	widths := make([]int, len(tableHeader))
	for i, h := range tableHeader {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, r := range rows {
		for i, cell := range r.cells() {
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	printRow(w, tableHeader, widths, nil)
	sep := make([]string, len(widths))
	for i, n := range widths {
		sep[i] = strings.Repeat("-", n)
	}
	printRow(w, sep, widths, nil)

	for _, r := range rows {
		printRow(w, r.cells(), widths, severityStyle(r.Severity))
	}
}

func (r Row) cells() []string {
	return []string{r.Category, r.Identifier, r.SourceID, r.TargetID, r.Reason}
}

func severityStyle(s Severity) *color.Style {
	switch s {
	case Critical:
		st := color.New(color.FgRed)
		return &st
	case Warn:
		st := color.New(color.FgYellow)
		return &st
	default:
		return nil
	}
}

func printRow(w io.Writer, cells []string, widths []int, style *color.Style) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = runewidth.FillRight(cell, widths[i])
	}
	line := strings.TrimRight(strings.Join(parts, "  "), " ")
	if style != nil {
		line = style.Sprint(line)
	}
	fmt.Fprintln(w, line)
}

// PairRows flattens a pair match result into findings. Healthy matches are
// summarized, not listed; mismatched email copies on matched pairs are
// listed as informational rows.
func PairRows(result *match.PairResult) []Row {
	var rows []Row

	for _, m := range result.Matched {
		if !m.EmailMismatch {
			continue
		}
		rows = append(rows, Row{
			Severity:   Info,
			Category:   "email-mismatch",
			Identifier: m.Identifier,
			SourceID:   m.SourceID,
			TargetID:   m.TargetID,
			Reason:     fmt.Sprintf("%s vs %s", m.SourceEmail, m.TargetEmail),
		})
	}

	for _, m := range result.ConnectedMissingField {
		rows = append(rows, Row{
			Severity:   Warn,
			Category:   "missing-email",
			Identifier: m.Name,
			SourceID:   m.SourceID,
			TargetID:   m.TargetID,
			Reason:     "connected record has a blank email field",
		})
	}

	for _, u := range result.OnlyInSource {
		rows = append(rows, Row{
			Severity:   Warn,
			Category:   "only-in-" + result.SourceName,
			Identifier: u.Identifier,
			SourceID:   u.ID,
			Reason:     "no counterpart in " + result.TargetName,
		})
	}

	for _, u := range result.TrulyOrphaned {
		rows = append(rows, Row{
			Severity:   Critical,
			Category:   "orphaned",
			Identifier: u.Identifier,
			TargetID:   u.ID,
			Reason:     "no connection and no identifier match",
		})
	}

	rows = append(rows, duplicateRows(result.SourceName, result.SourceDuplicates)...)
	rows = append(rows, duplicateRows(result.TargetName, result.TargetDuplicates)...)

	return rows
}

func duplicateRows(collection string, groups []index.DuplicateGroup) []Row {
	var rows []Row
	for _, g := range groups {
		ids := make([]string, 0, len(g.Records))
		for _, rec := range g.Records {
			ids = append(ids, rec.ID())
		}
		rows = append(rows, Row{
			Severity:   Critical,
			Category:   "duplicate-" + collection,
			Identifier: g.Identifier,
			Reason:     fmt.Sprintf("%d records: %s", len(g.Records), strings.Join(ids, " ")),
		})
	}
	return rows
}

// ChainRows flattens a chain validation result into findings. bucketOrder
// fixes the per-collection listing order and must name every collection
// the chain touches, root included, or that collection's orphans and
// duplicate groups are dropped from the output.
func ChainRows(result *match.ChainResult, bucketOrder []string) []Row {
	var rows []Row

	for _, bucket := range bucketOrder {
		rows = append(rows, brokenRows(bucket, result.Broken[bucket])...)
	}

	for _, m := range result.EmailMismatches {
		rows = append(rows, Row{
			Severity:   Info,
			Category:   "email-mismatch",
			Identifier: m.Email,
			TargetID:   m.RecordID,
			Reason:     fmt.Sprintf("%s stores %s", m.Collection, m.Found),
		})
	}

	for _, d := range result.NameDiscrepancies {
		reason := fmt.Sprintf("%q vs %q", d.Truth.Display(), d.Terminal.Display())
		if d.NearMatch {
			reason += " (near match, likely typo)"
		}
		rows = append(rows, Row{
			Severity:   Warn,
			Category:   "name-discrepancy",
			Identifier: d.Email,
			SourceID:   d.TruthID,
			TargetID:   d.TerminalID,
			Reason:     reason,
		})
	}

	for _, bucket := range bucketOrder {
		for _, u := range result.Orphans[bucket] {
			rows = append(rows, Row{
				Severity:   Critical,
				Category:   "orphan-" + bucket,
				Identifier: u.Identifier,
				TargetID:   u.ID,
				Reason:     "not reached by any chain walk",
			})
		}
	}

	for _, bucket := range bucketOrder {
		rows = append(rows, duplicateRows(bucket, result.Duplicates[bucket])...)
	}

	return rows
}

func brokenRows(bucket string, statuses []match.ChainStatus) []Row {
	var rows []Row
	for _, s := range statuses {
		rows = append(rows, Row{
			Severity:   Warn,
			Category:   "broken-at-" + bucket,
			Identifier: s.Email,
			SourceID:   s.RootID,
			Reason:     fmt.Sprintf("%s: chain stops before %s", s.Name, bucket),
		})
	}
	return rows
}

// PlanRows flattens a staged plan into findings, one per action, plus a
// critical row per planning error.
func PlanRows(p *plan.Plan) []Row {
	var rows []Row

	for _, a := range p.Actions {
		sev := Warn
		if a.Kind == plan.DeleteRecord {
			sev = Critical
		}
		if a.Kind == plan.FlagDuplicate {
			sev = Info
		}
		rows = append(rows, Row{
			Severity:   sev,
			Category:   string(a.Kind),
			Identifier: a.Identifier,
			TargetID:   a.RecordID,
			Reason:     a.Reason,
		})
	}

	for _, e := range p.Errors {
		rows = append(rows, Row{
			Severity:   Critical,
			Category:   "plan-error",
			Identifier: e.Identifier,
			Reason:     e.Reason,
		})
	}

	return rows
}

// WritePairSummary prints the headline counts for a pair run.
func WritePairSummary(w io.Writer, result *match.PairResult) {
	fmt.Fprintf(w, "%s: %d records, %s: %d records\n",
		result.SourceName, result.SourceTotal, result.TargetName, result.TargetTotal)
	fmt.Fprint(w, color.Green.Sprintf("  matched:                  %d\n", len(result.Matched)))
	fmt.Fprint(w, color.Yellow.Sprintf("  connected, missing email: %d\n", len(result.ConnectedMissingField)))
	fmt.Fprint(w, color.Yellow.Sprintf("  only in %-17s %d\n", result.SourceName+":", len(result.OnlyInSource)))
	fmt.Fprint(w, color.Red.Sprintf("  truly orphaned:           %d\n", len(result.TrulyOrphaned)))
	fmt.Fprint(w, color.Magenta.Sprintf("  duplicate groups:         %d + %d\n",
		len(result.SourceDuplicates), len(result.TargetDuplicates)))
}

// WriteChainSummary prints the headline counts for a chain run.
// bucketOrder fixes the listing order of the per-collection broken
// buckets and must include the root so its duplicate groups are counted.
func WriteChainSummary(w io.Writer, result *match.ChainResult, bucketOrder []string) {
	fmt.Fprint(w, color.Green.Sprintf("  complete chains: %d\n", len(result.Complete)))
	for _, bucket := range bucketOrder {
		if n := len(result.Broken[bucket]); n > 0 {
			fmt.Fprint(w, color.Yellow.Sprintf("  broken at %-14s %d\n", bucket+":", n))
		}
	}
	if n := len(result.EmailMismatches); n > 0 {
		fmt.Fprintf(w, "  email mismatches: %d\n", n)
	}
	if n := len(result.NameDiscrepancies); n > 0 {
		fmt.Fprint(w, color.Yellow.Sprintf("  name discrepancies: %d\n", n))
	}
	orphans := 0
	for _, list := range result.Orphans {
		orphans += len(list)
	}
	if orphans > 0 {
		fmt.Fprint(w, color.Red.Sprintf("  orphans: %d\n", orphans))
	}
	duplicates := 0
	for _, bucket := range bucketOrder {
		duplicates += len(result.Duplicates[bucket])
	}
	if duplicates > 0 {
		fmt.Fprint(w, color.Magenta.Sprintf("  duplicate groups: %d\n", duplicates))
	}
}

// WritePlanSummary prints staged action counts by kind.
func WritePlanSummary(w io.Writer, p *plan.Plan) {
	fmt.Fprintf(w, "staged actions: %d\n", len(p.Actions))
	for _, kind := range []plan.ActionKind{plan.CreateRecord, plan.PopulateField, plan.UpdateField, plan.DeleteRecord, plan.FlagDuplicate} {
		if n := p.Count(kind); n > 0 {
			fmt.Fprintf(w, "  %-15s %d\n", string(kind)+":", n)
		}
	}
	if len(p.Errors) > 0 {
		fmt.Fprint(w, color.Red.Sprintf("  planning errors: %d\n", len(p.Errors)))
	}
}
