package match

import (
	"testing"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/knack"
)

// chainFixture builds the four-collection chain from the default field
// maps: accounts resolve to profiles by identifier, profiles point at
// results via field_182, responses point back at results via field_792.
type chainFixture struct {
	accounts  []knack.Record
	profiles  []knack.Record
	results   []knack.Record
	responses []knack.Record
}

func (f chainFixture) validate(t *testing.T) *ChainResult {
	t.Helper()
	cfg := config.DefaultConfig()

	indexes := map[string]*index.Index{
		"accounts":  index.Build("accounts", cfg.Collections["accounts"], f.accounts, ""),
		"profiles":  index.Build("profiles", cfg.Collections["profiles"], f.profiles, ""),
		"results":   index.Build("results", cfg.Collections["results"], f.results, ""),
		"responses": index.Build("responses", cfg.Collections["responses"], f.responses, "field_792"),
	}

	chain, err := NewChain(cfg.Chain, indexes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return chain.Validate()
}

func account(id, email string) knack.Record {
	return knack.Record{"id": id, "field_70": email, "field_73": "Student"}
}

func profile(id, email, resultID string) knack.Record {
	r := knack.Record{"id": id, "field_91": email}
	if resultID != "" {
		r["field_182"] = map[string]interface{}{"id": resultID}
	}
	return r
}

func chainResult(id, email string) knack.Record {
	return knack.Record{"id": id, "field_197": email}
}

func response(id, email, resultID string) knack.Record {
	r := knack.Record{"id": id, "field_2732": email}
	if resultID != "" {
		r["field_792"] = map[string]interface{}{"id": resultID}
	}
	return r
}

func TestChainComplete(t *testing.T) {
	f := chainFixture{
		accounts:  []knack.Record{account("a00000000000000000000001", "jane@school.org")},
		profiles:  []knack.Record{profile("b00000000000000000000001", "jane@school.org", "c00000000000000000000001")},
		results:   []knack.Record{chainResult("c00000000000000000000001", "jane@school.org")},
		responses: []knack.Record{response("d00000000000000000000001", "jane@school.org", "c00000000000000000000001")},
	}

	result := f.validate(t)

	if len(result.Complete) != 1 {
		t.Fatalf("expected one complete chain, got %d complete, broken=%v", len(result.Complete), result.Broken)
	}
	links := result.Complete[0].Links
	for collection, want := range map[string]string{
		"accounts":  "a00000000000000000000001",
		"profiles":  "b00000000000000000000001",
		"results":   "c00000000000000000000001",
		"responses": "d00000000000000000000001",
	} {
		if links[collection] != want {
			t.Errorf("link %s: expected %s, got %s", collection, want, links[collection])
		}
	}
	if len(result.EmailMismatches) != 0 || len(result.NameDiscrepancies) != 0 {
		t.Errorf("clean chain must have no side-reports, got %+v / %+v",
			result.EmailMismatches, result.NameDiscrepancies)
	}
	for collection, orphans := range result.Orphans {
		if len(orphans) != 0 {
			t.Errorf("no orphans expected in %s, got %d", collection, len(orphans))
		}
	}
}

func TestChainBrokenBucketedByFirstFailedHop(t *testing.T) {
	// First hop resolves, second breaks: the chain lands in the second
	// hop's bucket, and the third hop is never attempted.
	f := chainFixture{
		accounts: []knack.Record{account("a00000000000000000000001", "jane@school.org")},
		profiles: []knack.Record{profile("b00000000000000000000001", "jane@school.org", "")},
	}

	result := f.validate(t)

	if len(result.Complete) != 0 {
		t.Errorf("expected no complete chains, got %d", len(result.Complete))
	}
	if got := len(result.Broken["results"]); got != 1 {
		t.Fatalf("expected the chain bucketed under the failed hop's collection, got %v", result.Broken)
	}
	if len(result.Broken["profiles"]) != 0 || len(result.Broken["responses"]) != 0 {
		t.Errorf("chain must appear only in its first failed bucket, got %v", result.Broken)
	}
	if got := result.Broken["results"][0].Links["profiles"]; got != "b00000000000000000000001" {
		t.Errorf("resolved links before the break must be recorded, got %v", result.Broken["results"][0].Links)
	}
}

func TestChainRoleFilter(t *testing.T) {
	staff := knack.Record{"id": "a00000000000000000000002", "field_70": "staff@school.org", "field_73": "Staff"}
	multi := knack.Record{"id": "a00000000000000000000003", "field_70": "both@school.org",
		"field_73": []interface{}{"Student", "Staff"}}

	f := chainFixture{accounts: []knack.Record{staff, multi}}
	result := f.validate(t)

	if result.Totals["accounts"] != 0 {
		t.Errorf("non-student and multi-role accounts must be excluded, got %d roots", result.Totals["accounts"])
	}
	if len(result.Broken) != 0 {
		t.Errorf("filtered accounts must not produce broken chains, got %v", result.Broken)
	}
}

func TestChainEmailMismatchIsInformational(t *testing.T) {
	// The result record stores a different address: the hop resolved by
	// connection, so the chain completes and the mismatch is reported.
	f := chainFixture{
		accounts:  []knack.Record{account("a00000000000000000000001", "jane@school.org")},
		profiles:  []knack.Record{profile("b00000000000000000000001", "jane@school.org", "c00000000000000000000001")},
		results:   []knack.Record{chainResult("c00000000000000000000001", "old@school.org")},
		responses: []knack.Record{response("d00000000000000000000001", "jane@school.org", "c00000000000000000000001")},
	}

	result := f.validate(t)

	if len(result.Complete) != 1 {
		t.Fatalf("mismatched email must not break the chain, got broken=%v", result.Broken)
	}
	if len(result.EmailMismatches) != 1 {
		t.Fatalf("expected one email mismatch, got %d", len(result.EmailMismatches))
	}
	m := result.EmailMismatches[0]
	if m.Collection != "results" || m.Found != "old@school.org" {
		t.Errorf("unexpected mismatch %+v", m)
	}
}

func TestChainNameDiscrepancy(t *testing.T) {
	prof := profile("b00000000000000000000001", "jane@school.org", "c00000000000000000000001")
	prof["field_90"] = map[string]interface{}{"first": "Jane", "last": "Doe"}

	resp := response("d00000000000000000000001", "jane@school.org", "c00000000000000000000001")
	resp["field_1823"] = map[string]interface{}{"first": "Jane", "last": "Does"}

	f := chainFixture{
		accounts:  []knack.Record{account("a00000000000000000000001", "jane@school.org")},
		profiles:  []knack.Record{prof},
		results:   []knack.Record{chainResult("c00000000000000000000001", "jane@school.org")},
		responses: []knack.Record{resp},
	}

	result := f.validate(t)

	if len(result.NameDiscrepancies) != 1 {
		t.Fatalf("expected one name discrepancy, got %d", len(result.NameDiscrepancies))
	}
	d := result.NameDiscrepancies[0]
	if d.Truth.Display() != "Jane Doe" || d.Terminal.Display() != "Jane Does" {
		t.Errorf("unexpected discrepancy %+v", d)
	}
	if !d.NearMatch {
		t.Error("one-letter drift should be flagged as a near match")
	}
}

func TestChainOrphanSweep(t *testing.T) {
	f := chainFixture{
		accounts: []knack.Record{account("a00000000000000000000001", "jane@school.org")},
		profiles: []knack.Record{profile("b00000000000000000000001", "jane@school.org", "c00000000000000000000001")},
		results:  []knack.Record{chainResult("c00000000000000000000001", "jane@school.org")},
		responses: []knack.Record{
			response("d00000000000000000000001", "jane@school.org", "c00000000000000000000001"),
			response("d00000000000000000000002", "ghost@school.org", ""),
		},
	}

	result := f.validate(t)

	if got := len(result.Orphans["responses"]); got != 1 {
		t.Fatalf("expected one orphaned response, got %d", got)
	}
	if result.Orphans["responses"][0].ID != "d00000000000000000000002" {
		t.Errorf("wrong orphan: %+v", result.Orphans["responses"][0])
	}
}

func TestChainCollectionsIncludesRoot(t *testing.T) {
	cfg := config.DefaultConfig()
	indexes := map[string]*index.Index{
		"accounts":  index.Build("accounts", cfg.Collections["accounts"], nil, ""),
		"profiles":  index.Build("profiles", cfg.Collections["profiles"], nil, ""),
		"results":   index.Build("results", cfg.Collections["results"], nil, ""),
		"responses": index.Build("responses", cfg.Collections["responses"], nil, "field_792"),
	}
	chain, err := NewChain(cfg.Chain, indexes)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := chain.Collections()
	want := []string{"accounts", "profiles", "results", "responses"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("collection %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestChainReportsRootDuplicates(t *testing.T) {
	f := chainFixture{
		accounts: []knack.Record{
			account("a00000000000000000000001", "jane@school.org"),
			account("a00000000000000000000002", "jane@school.org"),
		},
	}

	result := f.validate(t)

	if got := len(result.Duplicates["accounts"]); got != 1 {
		t.Fatalf("duplicate accounts must be reported, got %v", result.Duplicates)
	}
	if got := len(result.Duplicates["accounts"][0].Records); got != 2 {
		t.Errorf("expected both duplicates in the group, got %d", got)
	}
}

func TestNewChainRequiresIndexes(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := NewChain(cfg.Chain, map[string]*index.Index{}); err == nil {
		t.Error("expected error for missing root index")
	}
	if _, err := NewChain(config.ChainSpec{}, nil); err == nil {
		t.Error("expected error for empty chain")
	}
}
