// Package extract normalizes the heterogeneous field encodings the store
// returns (plain strings, {first,last} objects, arrays, HTML-wrapped
// values) into canonical scalars. Every function is pure and total:
// a shape it does not recognize yields an empty value, never an error.
package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/edukit/knackrecon/internal/knack"
)

var (
	mailtoPattern  = regexp.MustCompile(`mailto:([^"]+)"`)
	embeddedAddr   = regexp.MustCompile(`>([^<]+@[^<]+)<`)
	spanIDPattern  = regexp.MustCompile(`<span class="([a-f0-9]{24})"`)
	htmlTagPattern = regexp.MustCompile(`<.*?>`)
)

// Email extracts the email address stored under field, lowercased and
// trimmed. HTML anchors ("mailto:addr"), embedded ">addr<" fragments,
// {email: …} and {value: …} objects, and single-element arrays of any of
// these all resolve to the same address.
func Email(rec knack.Record, field string) string {
	return emailFromValue(rec.Field(field))
}

func emailFromValue(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		if strings.Contains(v, `<a href="mailto:`) {
			if m := mailtoPattern.FindStringSubmatch(v); m != nil {
				return strings.ToLower(strings.TrimSpace(m[1]))
			}
			if m := embeddedAddr.FindStringSubmatch(v); m != nil {
				return strings.ToLower(strings.TrimSpace(m[1]))
			}
		}
		return strings.ToLower(strings.TrimSpace(v))
	case map[string]interface{}:
		if s, ok := v["email"].(string); ok && s != "" {
			return strings.ToLower(strings.TrimSpace(s))
		}
		if s, ok := v["value"].(string); ok {
			return strings.ToLower(strings.TrimSpace(s))
		}
		return ""
	case []interface{}:
		if len(v) > 0 {
			return emailFromValue(v[0])
		}
		return ""
	default:
		return ""
	}
}

// NormalizeEmail canonicalizes an address for identity comparison: trim,
// lowercase, strip the +tag from the local part, and fold dots for
// gmail/googlemail domains. Two raw addresses that normalize identically
// are the same identity.
func NormalizeEmail(email string) string {
	e := strings.ToLower(strings.TrimSpace(email))
	if e == "" || !strings.Contains(e, "@") {
		return e
	}
	local, domain, _ := strings.Cut(e, "@")
	local = strings.TrimSpace(local)
	domain = strings.TrimSpace(domain)
	if tag := strings.Index(local, "+"); tag >= 0 {
		local = local[:tag]
	}
	if domain == "gmail.com" || domain == "googlemail.com" {
		local = strings.ReplaceAll(local, ".", "")
		domain = "gmail.com"
	}
	return local + "@" + domain
}

// NameParts is a structured person name as stored by the platform.
type NameParts struct {
	First string
	Last  string
}

// Empty reports whether both parts are blank.
func (n NameParts) Empty() bool {
	return n.First == "" && n.Last == ""
}

// Partial reports whether exactly one part is blank.
func (n NameParts) Partial() bool {
	return !n.Empty() && (n.First == "" || n.Last == "")
}

// Display joins the parts with a single space, dropping blanks.
func (n NameParts) Display() string {
	return strings.TrimSpace(n.First + " " + n.Last)
}

// EqualFold compares two names part by part, case-insensitively.
func (n NameParts) EqualFold(other NameParts) bool {
	return strings.EqualFold(strings.TrimSpace(n.First), strings.TrimSpace(other.First)) &&
		strings.EqualFold(strings.TrimSpace(n.Last), strings.TrimSpace(other.Last))
}

// Name extracts a display name: {first,last} objects are joined with a
// space, {value: …} objects use the value, plain strings are trimmed.
func Name(rec knack.Record, field string) string {
	switch v := rec.Field(field).(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]interface{}:
		parts := partsFromMap(v)
		if !parts.Empty() {
			return parts.Display()
		}
		if s, ok := v["value"].(string); ok {
			return strings.TrimSpace(s)
		}
		return ""
	default:
		return ""
	}
}

// StructuredName extracts the {first,last} form when the field carries
// one; ok is false for scalar or missing values. Used for field-by-field
// discrepancy checks where the display string would hide which part drifted.
func StructuredName(rec knack.Record, field string) (NameParts, bool) {
	m, isMap := rec.Field(field).(map[string]interface{})
	if !isMap {
		return NameParts{}, false
	}
	parts := partsFromMap(m)
	if parts.Empty() {
		_, hasFirst := m["first"]
		_, hasLast := m["last"]
		if !hasFirst && !hasLast {
			return NameParts{}, false
		}
	}
	return parts, true
}

func partsFromMap(m map[string]interface{}) NameParts {
	var parts NameParts
	if s, ok := m["first"].(string); ok {
		parts.First = strings.TrimSpace(s)
	}
	if s, ok := m["last"].(string); ok {
		parts.Last = strings.TrimSpace(s)
	}
	return parts
}

// ConnectionID extracts the ID of the record a connection field points at,
// regardless of whether the value is a bare ID string, an HTML span whose
// class attribute embeds the ID, an {id: …} object, or a single-element
// array of either.
func ConnectionID(rec knack.Record, field string) string {
	return connectionFromValue(rec.Field(field))
}

func connectionFromValue(raw interface{}) string {
	switch v := raw.(type) {
	case string:
		if m := spanIDPattern.FindStringSubmatch(v); m != nil {
			return m[1]
		}
		return v
	case map[string]interface{}:
		if id, ok := v["id"].(string); ok {
			return id
		}
		return ""
	case []interface{}:
		if len(v) > 0 {
			return connectionFromValue(v[0])
		}
		return ""
	default:
		return ""
	}
}

// ConnectionIDs extracts every target ID from a multi-connection field.
func ConnectionIDs(rec knack.Record, field string) []string {
	raw := rec.Field(field)
	list, ok := raw.([]interface{})
	if !ok {
		if id := connectionFromValue(raw); id != "" {
			return []string{id}
		}
		return nil
	}
	var ids []string
	for _, item := range list {
		if id := connectionFromValue(item); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// HasOnlyRole reports whether the record's role field equals the given
// role name case-insensitively AND carries no other role. Multi-role
// values never match, whatever their encoding.
func HasOnlyRole(rec knack.Record, field, role string) bool {
	raw := rec.Field(field)
	if raw == nil {
		return false
	}

	switch v := raw.(type) {
	case string:
		clean := strings.TrimSpace(htmlTagPattern.ReplaceAllString(v, ""))
		return strings.EqualFold(clean, role)
	case []interface{}:
		if len(v) != 1 {
			return false
		}
		return roleItemMatches(v[0], role)
	case map[string]interface{}:
		return roleItemMatches(v, role)
	default:
		return false
	}
}

func roleItemMatches(item interface{}, role string) bool {
	switch v := item.(type) {
	case string:
		return strings.EqualFold(strings.TrimSpace(v), role)
	case map[string]interface{}:
		val, _ := v["value"].(string)
		if val == "" {
			val, _ = v["identifier"].(string)
		}
		return strings.EqualFold(strings.TrimSpace(val), role)
	default:
		return false
	}
}

// createdAtLayouts covers the timestamp formats the platform emits.
var createdAtLayouts = []string{
	time.RFC3339,
	"01/02/2006 3:04pm",
	"01/02/2006 15:04",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CreatedAt parses the record's creation timestamp. Unparseable or
// missing timestamps return the zero time, which sorts before every real
// one, so such records are always "oldest" under keeper selection.
func CreatedAt(rec knack.Record) time.Time {
	s, _ := rec.Field("created_at").(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Identifier builds the normalized join key for a record: the email when
// present, else the lowercased display name, else "".
func Identifier(email, name string) string {
	if email != "" {
		return "email:" + NormalizeEmail(email)
	}
	if name != "" {
		return "name:" + strings.ToLower(strings.TrimSpace(name))
	}
	return ""
}

// StripTags removes HTML tags from a display value, for CSV/report output.
func StripTags(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		if v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	}
	return strings.TrimSpace(htmlTagPattern.ReplaceAllString(s, ""))
}
