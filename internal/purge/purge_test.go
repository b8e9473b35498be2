package purge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
	"github.com/edukit/knackrecon/internal/plan"
)

// fetchStub serves canned record pages per object and remembers the
// filters each fetch carried.
type fetchStub struct {
	mu      sync.Mutex
	records map[string][]knack.Record
	filters map[string]string
	fetched []string
}

func (s *fetchStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		object := parts[1]

		s.mu.Lock()
		s.fetched = append(s.fetched, object)
		s.filters[object] = r.URL.Query().Get("filters")
		records := s.records[object]
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		page := map[string]interface{}{
			"records":     records,
			"total_pages": 1,
		}
		json.NewEncoder(w).Encode(page)
	})
}

func newTestSelector(t *testing.T, stub *fetchStub) *Selector {
	t.Helper()
	if stub.filters == nil {
		stub.filters = make(map[string]string)
	}
	server := httptest.NewServer(stub.handler())
	t.Cleanup(server.Close)

	client, err := knack.NewClient("app", "key",
		knack.WithBaseURL(server.URL), knack.WithRate(1000))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	selector, err := NewSelector(client, config.DefaultConfig(), logger.NewDefault())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return selector
}

func TestSelectAllStudentData(t *testing.T) {
	stub := &fetchStub{
		records: map[string][]knack.Record{
			"object_3": {
				{"id": "acc1", "field_70": "jane@school.org", "field_73": "Student"},
				{"id": "acc2", "field_70": "head@school.org",
					"field_73": []interface{}{"Student", "Teacher"}},
				{"id": "acc3", "field_70": "t@school.org", "field_73": "Teacher"},
			},
			"object_10": {
				{"id": "res1", "field_197": "jane@school.org"},
				{"id": "res2", "field_197": "other@school.org"},
			},
			"object_29": {
				{"id": "rsp1", "field_2732": `<a href="mailto:jane@school.org">jane@school.org</a>`},
			},
		},
	}
	selector := newTestSelector(t, stub)

	sel, err := selector.Select(context.Background(), AllStudentData, Filters{ScopeID: "est1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"responses", "results", "accounts"}
	if fmt.Sprint(sel.Order) != fmt.Sprint(wantOrder) {
		t.Errorf("deletion order must run downstream first, got %v", sel.Order)
	}

	if len(sel.Found["accounts"]) != 1 || sel.Found["accounts"][0].Record.ID() != "acc1" {
		t.Errorf("only the student-only account may be selected, got %+v", sel.Found["accounts"])
	}
	if !sel.Emails["jane@school.org"] || len(sel.Emails) != 1 {
		t.Errorf("expected one collected student email, got %v", sel.Emails)
	}

	if len(sel.Found["results"]) != 1 || sel.Found["results"][0].Record.ID() != "res1" {
		t.Errorf("downstream results must match by student email, got %+v", sel.Found["results"])
	}
	if len(sel.Found["responses"]) != 1 || sel.Found["responses"][0].Email != "jane@school.org" {
		t.Errorf("downstream responses must match the extracted email, got %+v", sel.Found["responses"])
	}
	if sel.Total() != 3 {
		t.Errorf("expected 3 selected records, got %d", sel.Total())
	}

	if !strings.Contains(stub.filters["object_3"], "field_122") {
		t.Errorf("accounts fetch must filter by establishment, got %q", stub.filters["object_3"])
	}
	// Downstream records can sit under stale establishment values, so the
	// sweep runs unfiltered and matches locally by email.
	if stub.filters["object_10"] != "" || stub.filters["object_29"] != "" {
		t.Errorf("downstream sweep must be unfiltered, got %q / %q",
			stub.filters["object_10"], stub.filters["object_29"])
	}
}

func TestSelectAllStudentDataNoStudents(t *testing.T) {
	stub := &fetchStub{
		records: map[string][]knack.Record{
			"object_3": {
				{"id": "acc1", "field_70": "t@school.org", "field_73": "Teacher"},
			},
		},
	}
	selector := newTestSelector(t, stub)

	sel, err := selector.Select(context.Background(), AllStudentData, Filters{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sel.Total() != 0 {
		t.Errorf("expected empty selection, got %d", sel.Total())
	}
	for _, object := range stub.fetched {
		if object != "object_3" {
			t.Errorf("no downstream fetch may run without student accounts, got %v", stub.fetched)
		}
	}
}

func TestSelectAssessmentData(t *testing.T) {
	stub := &fetchStub{
		records: map[string][]knack.Record{
			"object_10": {
				{"id": "res1", "field_197": "jane@school.org", "field_144": "Year 11"},
			},
			"object_29": {
				{"id": "rsp1", "field_2732": "jane@school.org"},
			},
		},
	}
	selector := newTestSelector(t, stub)

	sel, err := selector.Select(context.Background(), AssessmentData, Filters{
		ScopeID:   "est1",
		YearGroup: "Year 11",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantOrder := []string{"responses", "results"}
	if fmt.Sprint(sel.Order) != fmt.Sprint(wantOrder) {
		t.Errorf("assessment purge must not touch accounts, got %v", sel.Order)
	}
	if sel.Total() != 2 {
		t.Errorf("expected 2 selected records, got %d", sel.Total())
	}

	for object, fields := range map[string][]string{
		"object_10": {"field_133", "field_144"},
		"object_29": {"field_1821", "field_1826"},
	} {
		for _, field := range fields {
			if !strings.Contains(stub.filters[object], field) {
				t.Errorf("%s fetch must filter on %s, got %q", object, field, stub.filters[object])
			}
		}
	}
	for _, object := range stub.fetched {
		if object == "object_3" {
			t.Error("assessment purge must never fetch accounts")
		}
	}
}

func TestSelectionPlanStagesDeletesInOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	sel := &Selection{
		Mode:  AllStudentData,
		Order: []string{"responses", "results", "accounts"},
		Found: map[string][]Entry{
			"accounts":  {{Record: knack.Record{"id": "acc1"}, Email: "jane@school.org"}},
			"results":   {{Record: knack.Record{"id": "res1"}, Email: "jane@school.org"}},
			"responses": {{Record: knack.Record{"id": "rsp1"}}},
		},
	}

	p := sel.Plan(cfg)

	want := []struct{ object, recordID string }{
		{"object_29", "rsp1"},
		{"object_10", "res1"},
		{"object_3", "acc1"},
	}
	if len(p.Actions) != len(want) {
		t.Fatalf("expected %d actions, got %d", len(want), len(p.Actions))
	}
	for i, w := range want {
		a := p.Actions[i]
		if a.Kind != plan.DeleteRecord {
			t.Errorf("action %d: expected a delete, got %s", i, a.Kind)
		}
		if a.Object != w.object || a.RecordID != w.recordID {
			t.Errorf("action %d: expected %s/%s, got %s/%s", i, w.object, w.recordID, a.Object, a.RecordID)
		}
	}
	if p.Actions[2].Identifier != "jane@school.org" {
		t.Errorf("identifier must prefer the email, got %q", p.Actions[2].Identifier)
	}
	if p.Actions[0].Identifier != "rsp1" {
		t.Errorf("identifier must fall back to the record ID, got %q", p.Actions[0].Identifier)
	}
}

func TestParseMode(t *testing.T) {
	if mode, err := ParseMode("all-student-data"); err != nil || mode != AllStudentData {
		t.Errorf("expected AllStudentData, got %v / %v", mode, err)
	}
	if mode, err := ParseMode("assessment-data"); err != nil || mode != AssessmentData {
		t.Errorf("expected AssessmentData, got %v / %v", mode, err)
	}
	if _, err := ParseMode("everything"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestNewSelectorValidation(t *testing.T) {
	client, _ := knack.NewClient("app", "key")
	cfg := config.DefaultConfig()
	log := logger.NewDefault()

	if _, err := NewSelector(nil, cfg, log); err == nil {
		t.Error("expected error for nil client")
	}
	if _, err := NewSelector(client, nil, log); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewSelector(client, cfg, nil); err == nil {
		t.Error("expected error for nil logger")
	}
}
