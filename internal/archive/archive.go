// Package archive implements the year-end archive-and-clear operation:
// snapshot a collection's records to CSV (a local file plus a record in
// the archive collection), then blank every non-preserved field on the
// originals.
package archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
)

// SnapshotStats summarizes one archive snapshot.
type SnapshotStats struct {
	Records         int
	Columns         int
	DroppedColumns  int
	LocalPath       string
	ArchiveRecordID string
	Duration        time.Duration
}

// ClearStats summarizes a clear pass over one collection.
type ClearStats struct {
	Cleared  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

// Archiver snapshots and clears collections.
type Archiver struct {
	client *knack.Client
	log    *logger.Logger
	cfg    config.ArchiveConfig
}

// New creates an archiver.
func New(client *knack.Client, log *logger.Logger, cfg config.ArchiveConfig) (*Archiver, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Object == "" {
		return nil, fmt.Errorf("archive object is required")
	}
	return &Archiver{client: client, log: log, cfg: cfg}, nil
}

// Snapshot writes the records as CSV to a local file under OutputDir and
// creates a record in the archive collection carrying the same content.
// The local file is written first so a failed upload still leaves a copy.
func (a *Archiver) Snapshot(ctx context.Context, spec config.CollectionSpec, records []knack.Record, scopeID, scopeName string) (*SnapshotStats, error) {
	stats := &SnapshotStats{Records: len(records)}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	if len(records) == 0 {
		return stats, fmt.Errorf("nothing to archive")
	}

	content, columns, dropped, err := csvContent(records)
	if err != nil {
		return stats, fmt.Errorf("build csv: %w", err)
	}
	stats.Columns = columns
	stats.DroppedColumns = dropped

	filename := fmt.Sprintf("%s_%s_%s.csv",
		sanitize(scopeName), spec.Object, time.Now().Format("2006-01-02"))

	if a.cfg.OutputDir != "" {
		if err := os.MkdirAll(a.cfg.OutputDir, 0755); err != nil {
			return stats, fmt.Errorf("create output dir: %w", err)
		}
		path := filepath.Join(a.cfg.OutputDir, filename)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return stats, fmt.Errorf("write local snapshot: %w", err)
		}
		stats.LocalPath = path
		a.log.Infow("wrote local snapshot", "path", path, "records", len(records))
	}

	fields := map[string]interface{}{
		a.cfg.NameField:    filename,
		a.cfg.ContentField: content,
		a.cfg.DateField:    time.Now().Format("2006-01-02"),
	}
	if a.cfg.EstablishmentField != "" && scopeID != "" {
		fields[a.cfg.EstablishmentField] = scopeID
	}
	if a.cfg.TypeField != "" && spec.Label != "" {
		fields[a.cfg.TypeField] = spec.Label
	}

	id, err := a.client.Create(ctx, a.cfg.Object, fields)
	if err != nil {
		return stats, fmt.Errorf("upload snapshot: %w", err)
	}
	stats.ArchiveRecordID = id
	a.log.Infow("uploaded snapshot", "archive_record", id, "records", len(records))

	return stats, nil
}

// Clear blanks every non-preserved field on each record, one at a time.
// Failures are counted and logged; the pass continues. A collection with
// no preserved-field list is refused, clearing everything is never right.
func (a *Archiver) Clear(ctx context.Context, spec config.CollectionSpec, records []knack.Record) (*ClearStats, error) {
	if len(spec.PreservedFields) == 0 {
		return nil, fmt.Errorf("collection %s has no preserved fields configured", spec.Object)
	}

	preserved := make(map[string]bool, len(spec.PreservedFields))
	for _, f := range spec.PreservedFields {
		preserved[f] = true
	}

	stats := &ClearStats{}
	start := time.Now()
	defer func() { stats.Duration = time.Since(start) }()

	for _, rec := range records {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		payload := clearPayload(rec, preserved)
		if len(payload) == 0 {
			stats.Skipped++
			continue
		}

		if err := a.client.Update(ctx, spec.Object, rec.ID(), payload); err != nil {
			stats.Failed++
			a.log.Warnw("clear failed", "id", rec.ID(), "error", err)
			continue
		}
		stats.Cleared++
	}

	return stats, nil
}

// clearPayload builds the update that blanks every clearable field the
// record actually carries. Raw/system keys and preserved fields stay.
func clearPayload(rec knack.Record, preserved map[string]bool) map[string]interface{} {
	payload := make(map[string]interface{})
	for key := range rec {
		if !strings.HasPrefix(key, "field_") || strings.HasSuffix(key, "_raw") {
			continue
		}
		if preserved[key] {
			continue
		}
		payload[key] = ""
	}
	return payload
}

// csvContent renders records as CSV: values flattened and HTML-stripped,
// columns with no value anywhere dropped, remaining columns sorted so the
// layout is stable across runs.
func csvContent(records []knack.Record) (content string, columns, dropped int, err error) {
	cleaned := make([]map[string]string, len(records))
	nonEmpty := make(map[string]bool)
	all := make(map[string]bool)

	for i, rec := range records {
		row := make(map[string]string, len(rec))
		for key, value := range rec {
			all[key] = true
			flat := flatten(value)
			row[key] = flat
			if strings.TrimSpace(flat) != "" {
				nonEmpty[key] = true
			}
		}
		cleaned[i] = row
	}

	fieldnames := make([]string, 0, len(nonEmpty))
	for key := range nonEmpty {
		fieldnames = append(fieldnames, key)
	}
	sort.Strings(fieldnames)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fieldnames); err != nil {
		return "", 0, 0, err
	}
	line := make([]string, len(fieldnames))
	for _, row := range cleaned {
		for i, key := range fieldnames {
			line[i] = row[key]
		}
		if err := w.Write(line); err != nil {
			return "", 0, 0, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", 0, 0, err
	}

	return buf.String(), len(fieldnames), len(all) - len(fieldnames), nil
}

// flatten renders one field value for CSV: structured names collapse to
// "first last", lists join with commas, everything else is stringified
// with HTML stripped.
func flatten(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return extract.StripTags(v)
	case map[string]interface{}:
		first, hasFirst := v["first"].(string)
		last, hasLast := v["last"].(string)
		if hasFirst || hasLast {
			return strings.TrimSpace(first + " " + last)
		}
		return extract.StripTags(fmt.Sprintf("%v", v))
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, flatten(item))
		}
		return strings.Join(parts, ", ")
	default:
		return extract.StripTags(fmt.Sprintf("%v", v))
	}
}

// sanitize makes a scope name safe for a filename.
func sanitize(name string) string {
	if name == "" {
		return "unknown"
	}
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-")
	return replacer.Replace(name)
}
