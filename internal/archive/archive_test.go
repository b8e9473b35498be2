package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
)

func testArchiver(t *testing.T, handler http.HandlerFunc, outputDir string) *Archiver {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := knack.NewClient("app", "key",
		knack.WithBaseURL(server.URL), knack.WithRate(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := config.DefaultConfig().Archive
	cfg.OutputDir = outputDir

	a, err := New(client, logger.NewDefault(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return a
}

func TestSnapshotWritesLocalFileAndUploads(t *testing.T) {
	var uploaded map[string]interface{}
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&uploaded)
		w.Write([]byte(`{"id":"eeeeeeeeeeeeeeeeeeeeeeee"}`))
	}

	dir := t.TempDir()
	a := testArchiver(t, handler, dir)

	spec := config.DefaultConfig().Collections["results"]
	records := []knack.Record{
		{"id": "1", "field_197": `<a href="mailto:jane@x.com">jane@x.com</a>`,
			"field_187": map[string]interface{}{"first": "Jane", "last": "Doe"}},
		{"id": "2", "field_197": "john@x.com", "field_999": ""},
	}

	stats, err := a.Snapshot(context.Background(), spec, records,
		"61116a30966757001e1e7ead", "Example School")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if stats.Records != 2 || stats.ArchiveRecordID != "eeeeeeeeeeeeeeeeeeeeeeee" {
		t.Errorf("unexpected stats %+v", stats)
	}
	if stats.LocalPath == "" {
		t.Fatal("expected a local snapshot file")
	}
	if !strings.Contains(filepath.Base(stats.LocalPath), "example_school") {
		t.Errorf("filename must carry the scope name, got %s", stats.LocalPath)
	}

	raw, err := os.ReadFile(stats.LocalPath)
	if err != nil {
		t.Fatalf("local snapshot unreadable: %v", err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(raw))).ReadAll()
	if err != nil {
		t.Fatalf("snapshot must be valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}

	header := strings.Join(rows[0], ",")
	if strings.Contains(header, "field_999") {
		t.Error("all-empty columns must be dropped")
	}
	content := string(raw)
	if strings.Contains(content, "<a href") {
		t.Error("HTML must be stripped from snapshot values")
	}
	if !strings.Contains(content, "Jane Doe") {
		t.Error("structured names must flatten to display form")
	}

	// Upload carries the same content and the archive field map.
	arcCfg := config.DefaultConfig().Archive
	if uploaded[arcCfg.ContentField] != content {
		t.Error("uploaded content must match the local snapshot")
	}
	if uploaded[arcCfg.EstablishmentField] != "61116a30966757001e1e7ead" {
		t.Errorf("upload must carry the establishment, got %v", uploaded[arcCfg.EstablishmentField])
	}
}

func TestSnapshotRefusesEmpty(t *testing.T) {
	a := testArchiver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, t.TempDir())

	spec := config.DefaultConfig().Collections["results"]
	if _, err := a.Snapshot(context.Background(), spec, nil, "", ""); err == nil {
		t.Error("expected error for empty snapshot")
	}
}

func TestClearBlanksOnlyNonPreservedFields(t *testing.T) {
	var payload map[string]interface{}
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&payload)
		w.Write([]byte(`{}`))
	}
	a := testArchiver(t, handler, t.TempDir())

	spec := config.DefaultConfig().Collections["results"]
	records := []knack.Record{{
		"id":          "bbbbbbbbbbbbbbbbbbbbbbbb",
		"field_197":   "jane@x.com", // preserved
		"field_999":   "stale score",
		"field_998":   "stale comment",
		"field_9_raw": "raw variant",
		"created_at":  "2020-01-01",
	}}

	stats, err := a.Clear(context.Background(), spec, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Cleared != 1 {
		t.Errorf("expected one cleared record, got %+v", stats)
	}

	if _, ok := payload["field_197"]; ok {
		t.Error("preserved fields must not be cleared")
	}
	if _, ok := payload["field_9_raw"]; ok {
		t.Error("raw variants must not be cleared")
	}
	if _, ok := payload["created_at"]; ok {
		t.Error("system keys must not be cleared")
	}
	if payload["field_999"] != "" || payload["field_998"] != "" {
		t.Errorf("stale fields must be blanked, got %v", payload)
	}
}

func TestClearSkipsFullyPreservedRecords(t *testing.T) {
	a := testArchiver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for a record with nothing to clear")
	}, t.TempDir())

	spec := config.DefaultConfig().Collections["results"]
	records := []knack.Record{{
		"id":        "bbbbbbbbbbbbbbbbbbbbbbbb",
		"field_197": "jane@x.com",
	}}

	stats, err := a.Clear(context.Background(), spec, records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Skipped != 1 || stats.Cleared != 0 {
		t.Errorf("expected the record skipped, got %+v", stats)
	}
}

func TestClearRefusesEmptyPreservedList(t *testing.T) {
	a := testArchiver(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	}, t.TempDir())

	spec := config.CollectionSpec{Object: "object_3", EmailField: "field_70"}
	if _, err := a.Clear(context.Background(), spec, []knack.Record{{"id": "x"}}); err == nil {
		t.Error("clearing a collection without a preserved-field list must be refused")
	}
}
