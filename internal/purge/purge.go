// Package purge selects student records for bulk deletion: either a
// school's entire student footprint (student-only accounts plus their
// downstream records, matched by email) or just the assessment data.
// Selection is read-only; deletion goes through a staged plan so the
// backup-then-confirm flow applies.
package purge

import (
	"context"
	"fmt"
	"strings"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/logger"
	"github.com/edukit/knackrecon/internal/plan"
)

// Mode picks what the purge covers.
type Mode string

const (
	// AllStudentData removes student-only accounts and every downstream
	// record carrying one of their emails.
	AllStudentData Mode = "all-student-data"
	// AssessmentData removes only the results and responses collections,
	// selected by the establishment/year/tutor filters directly.
	AssessmentData Mode = "assessment-data"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case AllStudentData, AssessmentData:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown purge mode %q (use %s or %s)", s, AllStudentData, AssessmentData)
	}
}

// Filters narrows the selection. ScopeID is an establishment record ID;
// YearGroup and TutorGroup match the collections' group fields. All are
// optional.
type Filters struct {
	ScopeID    string
	YearGroup  string
	TutorGroup string
}

// Entry is one record selected for deletion, with the extracted values
// the backup CSV needs.
type Entry struct {
	Record knack.Record
	Email  string
	Detail string
}

// Selection is everything a purge run found, keyed by collection name.
// Order is the deletion order: downstream collections first, so a partial
// failure never leaves a child without its parent account.
type Selection struct {
	Mode   Mode
	Order  []string
	Found  map[string][]Entry
	Emails map[string]bool
}

// Total returns the number of selected records across all collections.
func (s *Selection) Total() int {
	n := 0
	for _, entries := range s.Found {
		n += len(entries)
	}
	return n
}

// Plan stages one DeleteRecord per selected record, in deletion order.
func (s *Selection) Plan(cfg *config.Config) *plan.Plan {
	p := &plan.Plan{}
	for _, name := range s.Order {
		spec, ok := cfg.Collection(name)
		if !ok {
			continue
		}
		for _, e := range s.Found[name] {
			identifier := e.Email
			if identifier == "" {
				identifier = e.Record.ID()
			}
			p.Actions = append(p.Actions, plan.Action{
				Kind:       plan.DeleteRecord,
				Collection: name,
				Object:     spec.Object,
				RecordID:   e.Record.ID(),
				Identifier: identifier,
				Reason:     string(s.Mode) + " purge",
			})
		}
	}
	return p
}

// Selector finds the records a purge run would delete.
type Selector struct {
	client *knack.Client
	cfg    *config.Config
	log    *logger.Logger
}

// NewSelector creates a selector.
func NewSelector(client *knack.Client, cfg *config.Config, log *logger.Logger) (*Selector, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Selector{client: client, cfg: cfg, log: log}, nil
}

// Select fetches and classifies the records the mode covers. Nothing is
// deleted here.
func (s *Selector) Select(ctx context.Context, mode Mode, f Filters) (*Selection, error) {
	switch mode {
	case AllStudentData:
		return s.selectAllStudentData(ctx, f)
	case AssessmentData:
		return s.selectAssessmentData(ctx, f)
	default:
		return nil, fmt.Errorf("unknown purge mode %q", mode)
	}
}

// selectAllStudentData finds student-only accounts matching the filters,
// then sweeps the downstream collections for records carrying one of
// their emails. The downstream sweep is unfiltered: related records can
// sit under stale or missing establishment values and must still go.
func (s *Selector) selectAllStudentData(ctx context.Context, f Filters) (*Selection, error) {
	accountsSpec, ok := s.cfg.Collection("accounts")
	if !ok {
		return nil, fmt.Errorf("collection %q not found in configuration", "accounts")
	}

	records, err := s.fetch(ctx, accountsSpec, f)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}

	role := s.cfg.Chain.Role
	if role == "" {
		role = "Student"
	}

	sel := &Selection{
		Mode:   AllStudentData,
		Order:  []string{"responses", "results", "accounts"},
		Found:  make(map[string][]Entry),
		Emails: make(map[string]bool),
	}

	for _, rec := range records {
		if !extract.HasOnlyRole(rec, accountsSpec.RoleField, role) {
			continue
		}
		email := extract.Email(rec, accountsSpec.EmailField)
		if email != "" {
			sel.Emails[email] = true
		}
		sel.Found["accounts"] = append(sel.Found["accounts"], Entry{
			Record: rec,
			Email:  email,
			Detail: detail(rec, accountsSpec),
		})
	}
	s.log.Infow("Selected student-only accounts",
		"total", len(records), "students", len(sel.Found["accounts"]), "emails", len(sel.Emails))

	if len(sel.Found["accounts"]) == 0 {
		return sel, nil
	}

	for _, name := range []string{"results", "responses"} {
		spec, ok := s.cfg.Collection(name)
		if !ok {
			continue
		}
		all, err := s.client.FetchAll(ctx, spec.Object, nil)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		for _, rec := range all {
			if !sel.Emails[extract.Email(rec, spec.EmailField)] {
				continue
			}
			sel.Found[name] = append(sel.Found[name], Entry{
				Record: rec,
				Email:  extract.Email(rec, spec.EmailField),
				Detail: detail(rec, spec),
			})
		}
		s.log.WithCollection(name).Infow("Matched downstream records",
			"scanned", len(all), "matched", len(sel.Found[name]))
	}

	return sel, nil
}

// selectAssessmentData fetches results and responses with the filters
// applied server-side. No role check: the filters define the scope.
func (s *Selector) selectAssessmentData(ctx context.Context, f Filters) (*Selection, error) {
	sel := &Selection{
		Mode:  AssessmentData,
		Order: []string{"responses", "results"},
		Found: make(map[string][]Entry),
	}

	for _, name := range sel.Order {
		spec, ok := s.cfg.Collection(name)
		if !ok {
			return nil, fmt.Errorf("collection %q not found in configuration", name)
		}
		records, err := s.fetch(ctx, spec, f)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		for _, rec := range records {
			sel.Found[name] = append(sel.Found[name], Entry{
				Record: rec,
				Email:  extract.Email(rec, spec.EmailField),
				Detail: detail(rec, spec),
			})
		}
		s.log.WithCollection(name).Infow("Selected records", "count", len(records))
	}

	return sel, nil
}

// fetch retrieves one collection with the filters the spec can express.
func (s *Selector) fetch(ctx context.Context, spec config.CollectionSpec, f Filters) ([]knack.Record, error) {
	var filters []knack.Filter
	if f.ScopeID != "" && spec.EstablishmentField != "" {
		filters = append(filters, knack.Filter{
			Field: spec.EstablishmentField, Operator: "is", Value: f.ScopeID,
		})
	}
	if f.YearGroup != "" && spec.YearGroupField != "" {
		filters = append(filters, knack.Filter{
			Field: spec.YearGroupField, Operator: "is", Value: f.YearGroup,
		})
	}
	if f.TutorGroup != "" && spec.TutorGroupField != "" {
		filters = append(filters, knack.Filter{
			Field: spec.TutorGroupField, Operator: "is", Value: f.TutorGroup,
		})
	}
	return s.client.FetchAll(ctx, spec.Object, filters)
}

// detail renders the group/role context for the backup CSV.
func detail(rec knack.Record, spec config.CollectionSpec) string {
	var parts []string
	if spec.RoleField != "" {
		if v := rec.Field(spec.RoleField); v != nil {
			parts = append(parts, fmt.Sprintf("role=%s", extract.StripTags(fmt.Sprintf("%v", v))))
		}
	}
	if spec.YearGroupField != "" {
		if v := rec.Field(spec.YearGroupField); v != nil && v != "" {
			parts = append(parts, fmt.Sprintf("year=%v", v))
		}
	}
	if spec.TutorGroupField != "" {
		if v := rec.Field(spec.TutorGroupField); v != nil && v != "" {
			parts = append(parts, fmt.Sprintf("group=%v", v))
		}
	}
	return strings.Join(parts, "; ")
}
