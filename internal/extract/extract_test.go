package extract

import (
	"testing"
	"time"

	"github.com/edukit/knackrecon/internal/knack"
)

func TestEmailEncodingEquivalence(t *testing.T) {
	// Every encoding of the same underlying address must extract identically.
	encodings := map[string]interface{}{
		"plain string":    "Jane.Doe@School.org",
		"padded string":   "  jane.doe@school.org  ",
		"mailto anchor":   `<a href="mailto:Jane.Doe@School.org">Jane.Doe@School.org</a>`,
		"email object":    map[string]interface{}{"email": "Jane.Doe@School.org"},
		"value object":    map[string]interface{}{"value": "jane.doe@school.org"},
		"array of string": []interface{}{"Jane.Doe@School.org"},
		"array of object": []interface{}{map[string]interface{}{"email": "jane.doe@school.org"}},
	}

	for label, raw := range encodings {
		rec := knack.Record{"field_70": raw}
		if got := Email(rec, "field_70"); got != "jane.doe@school.org" {
			t.Errorf("%s: expected jane.doe@school.org, got %q", label, got)
		}
	}
}

func TestEmailAnchorWithoutMailtoMatch(t *testing.T) {
	// Anchor text fallback when the mailto attribute is mangled.
	rec := knack.Record{"field_70": `<a href="mailto:">jane@school.org</a>`}
	if got := Email(rec, "field_70"); got != "jane@school.org" {
		t.Errorf("expected jane@school.org, got %q", got)
	}
}

func TestEmailMissingOrUnrecognized(t *testing.T) {
	rec := knack.Record{"field_70": 42}
	if got := Email(rec, "field_70"); got != "" {
		t.Errorf("expected empty for numeric value, got %q", got)
	}
	if got := Email(knack.Record{}, "field_70"); got != "" {
		t.Errorf("expected empty for missing field, got %q", got)
	}
	if got := Email(knack.Record{"field_70": []interface{}{}}, "field_70"); got != "" {
		t.Errorf("expected empty for empty array, got %q", got)
	}
}

func TestNormalizeEmail(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jane.Doe@School.org ", "jane.doe@school.org"},
		{"jane+archive@school.org", "jane@school.org"},
		{"jane.doe@gmail.com", "janedoe@gmail.com"},
		{"j.a.n.e@googlemail.com", "jane@gmail.com"},
		{"jane.doe+tag@gmail.com", "janedoe@gmail.com"},
		{"not-an-email", "not-an-email"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeEmail(tc.in); got != tc.want {
			t.Errorf("NormalizeEmail(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestConnectionIDEncodingEquivalence(t *testing.T) {
	const id = "61116a30966757001e1e7ead"
	encodings := map[string]interface{}{
		"bare string":     id,
		"html span":       `<span class="` + id + `">Jane Doe</span>`,
		"id object":       map[string]interface{}{"id": id},
		"array of string": []interface{}{id},
		"array of object": []interface{}{map[string]interface{}{"id": id, "identifier": "Jane Doe"}},
	}

	for label, raw := range encodings {
		rec := knack.Record{"field_792": raw}
		if got := ConnectionID(rec, "field_792"); got != id {
			t.Errorf("%s: expected %s, got %q", label, id, got)
		}
	}
}

func TestConnectionIDs(t *testing.T) {
	rec := knack.Record{"field_145": []interface{}{
		map[string]interface{}{"id": "aaaaaaaaaaaaaaaaaaaaaaaa"},
		map[string]interface{}{"id": "bbbbbbbbbbbbbbbbbbbbbbbb"},
	}}
	ids := ConnectionIDs(rec, "field_145")
	if len(ids) != 2 || ids[0] != "aaaaaaaaaaaaaaaaaaaaaaaa" || ids[1] != "bbbbbbbbbbbbbbbbbbbbbbbb" {
		t.Errorf("expected both IDs in order, got %v", ids)
	}
}

func TestNameExtraction(t *testing.T) {
	structured := knack.Record{"field_69": map[string]interface{}{"first": " Jane ", "last": "Doe"}}
	if got := Name(structured, "field_69"); got != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got %q", got)
	}

	plain := knack.Record{"field_69": " Jane Doe "}
	if got := Name(plain, "field_69"); got != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got %q", got)
	}

	valueOnly := knack.Record{"field_69": map[string]interface{}{"value": "Jane Doe"}}
	if got := Name(valueOnly, "field_69"); got != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got %q", got)
	}
}

func TestStructuredName(t *testing.T) {
	rec := knack.Record{"field_90": map[string]interface{}{"first": "Jane", "last": "Doe"}}
	parts, ok := StructuredName(rec, "field_90")
	if !ok {
		t.Fatal("expected structured name")
	}
	if parts.First != "Jane" || parts.Last != "Doe" {
		t.Errorf("expected Jane/Doe, got %+v", parts)
	}
	if parts.Empty() || parts.Partial() {
		t.Error("full name must be neither empty nor partial")
	}

	if !parts.EqualFold(NameParts{First: "JANE", Last: "doe"}) {
		t.Error("comparison must be case-insensitive")
	}

	if _, ok := StructuredName(knack.Record{"field_90": "Jane Doe"}, "field_90"); ok {
		t.Error("plain string must not count as structured")
	}

	partial, ok := StructuredName(knack.Record{"field_90": map[string]interface{}{"first": "Jane", "last": ""}}, "field_90")
	if !ok || !partial.Partial() {
		t.Errorf("expected partial name, got ok=%v parts=%+v", ok, partial)
	}
}

func TestHasOnlyRole(t *testing.T) {
	cases := []struct {
		label string
		value interface{}
		want  bool
	}{
		{"plain string", "Student", true},
		{"case-insensitive", "student", true},
		{"html wrapped", "<span>Student</span>", true},
		{"different role", "Staff", false},
		{"single-element list", []interface{}{"Student"}, true},
		{"multi-role list", []interface{}{"Student", "Staff"}, false},
		{"object value", map[string]interface{}{"value": "Student"}, true},
		{"object identifier", map[string]interface{}{"identifier": "Student"}, true},
		{"nil", nil, false},
	}

	for _, tc := range cases {
		rec := knack.Record{"field_73": tc.value}
		if got := HasOnlyRole(rec, "field_73", "Student"); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.label, tc.want, got)
		}
	}
}

func TestCreatedAt(t *testing.T) {
	rec := knack.Record{"created_at": "2020-01-01T10:00:00Z"}
	want := time.Date(2020, 1, 1, 10, 0, 0, 0, time.UTC)
	if got := CreatedAt(rec); !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}

	us := knack.Record{"created_at": "03/15/2021 2:30pm"}
	if got := CreatedAt(us); got.IsZero() {
		t.Error("expected US-style timestamp to parse")
	}

	if got := CreatedAt(knack.Record{"created_at": "yesterday"}); !got.IsZero() {
		t.Errorf("unparseable timestamp must be zero time, got %v", got)
	}
	if got := CreatedAt(knack.Record{}); !got.IsZero() {
		t.Errorf("missing timestamp must be zero time, got %v", got)
	}
}

func TestIdentifier(t *testing.T) {
	if got := Identifier("Jane.Doe@school.org", "Jane Doe"); got != "email:jane.doe@school.org" {
		t.Errorf("email must win over name, got %q", got)
	}
	if got := Identifier("", "Jane Doe"); got != "name:jane doe" {
		t.Errorf("expected name fallback, got %q", got)
	}
	if got := Identifier("", ""); got != "" {
		t.Errorf("expected empty identifier, got %q", got)
	}
}

func TestStripTags(t *testing.T) {
	if got := StripTags(`<span class="abc">Jane Doe</span>`); got != "Jane Doe" {
		t.Errorf("expected 'Jane Doe', got %q", got)
	}
	if got := StripTags(nil); got != "" {
		t.Errorf("expected empty for nil, got %q", got)
	}
	if got := StripTags(42); got != "42" {
		t.Errorf("expected '42', got %q", got)
	}
}
