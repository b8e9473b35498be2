package knack

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// recordIDPattern matches a bare 24-character hexadecimal record ID.
var recordIDPattern = regexp.MustCompile(`^[a-f0-9]{24}$`)

// IsRecordID reports whether s looks like a raw record ID rather than a
// human-readable name.
func IsRecordID(s string) bool {
	return recordIDPattern.MatchString(strings.ToLower(s))
}

// ResolveScope turns an establishment name or ID into a record ID by
// searching the establishments object. An exact (case-insensitive) name
// match wins; a single substring match is accepted; anything else is an
// error listing the candidates so the operator can disambiguate.
func (c *Client) ResolveScope(ctx context.Context, establishmentObject, nameField, identifier string) (string, error) {
	if IsRecordID(identifier) {
		return strings.ToLower(identifier), nil
	}

	records, err := c.FetchAll(ctx, establishmentObject, nil)
	if err != nil {
		return "", fmt.Errorf("fetch establishments: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(identifier))
	var partial []string
	var partialIDs []string

	for _, rec := range records {
		name, _ := rec.Field(nameField).(string)
		lower := strings.ToLower(strings.TrimSpace(name))
		if lower == needle {
			return rec.ID(), nil
		}
		if strings.Contains(lower, needle) {
			partial = append(partial, name)
			partialIDs = append(partialIDs, rec.ID())
		}
	}

	switch len(partialIDs) {
	case 0:
		return "", fmt.Errorf("no establishment matches %q", identifier)
	case 1:
		return partialIDs[0], nil
	default:
		return "", fmt.Errorf("establishment %q is ambiguous, matches: %s",
			identifier, strings.Join(partial, ", "))
	}
}

// ScopeName fetches the display name for an establishment ID, for the
// confirmation prompt before destructive runs. Returns "" when the record
// cannot be read; the caller falls back to showing the raw ID.
func (c *Client) ScopeName(ctx context.Context, establishmentObject, nameField, establishmentID string) string {
	var rec Record
	endpoint := fmt.Sprintf("/objects/%s/records/%s", establishmentObject, establishmentID)
	if err := c.doJSON(ctx, "GET", endpoint, nil, nil, &rec); err != nil {
		return ""
	}
	name, _ := rec.Field(nameField).(string)
	return strings.TrimSpace(name)
}
