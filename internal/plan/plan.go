// Package plan turns match results into staged corrective actions and,
// separately, executes a staged plan against the store. Planning is pure;
// nothing is written until Apply is called with an explicitly confirmed
// action list.
package plan

import (
	"fmt"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/knack"
	"github.com/edukit/knackrecon/internal/match"
)

// ActionKind identifies a corrective mutation.
type ActionKind string

const (
	// CreateRecord creates a missing counterpart in the target collection.
	CreateRecord ActionKind = "create"
	// PopulateField fills a blank denormalized field from the connected record.
	PopulateField ActionKind = "populate"
	// UpdateField overwrites a wrong field value with the authoritative copy.
	UpdateField ActionKind = "update"
	// DeleteRecord removes an orphan or a duplicate non-keeper.
	DeleteRecord ActionKind = "delete"
	// FlagDuplicate reports a duplicate group and its chosen keeper; it is
	// informational and performs no write.
	FlagDuplicate ActionKind = "flag-duplicate"
)

// ConfirmPhrase returns the phrase the operator must type before a batch
// of this kind is applied. Distinct from the apply flag on purpose:
// mass mutation needs both.
func ConfirmPhrase(kind ActionKind) string {
	switch kind {
	case CreateRecord:
		return "CREATE"
	case PopulateField:
		return "POPULATE"
	case UpdateField:
		return "UPDATE"
	case DeleteRecord:
		return "DELETE"
	default:
		return ""
	}
}

// Action is one staged corrective mutation. Object is the store's object
// key; Collection is the friendly name used in reports.
type Action struct {
	Kind       ActionKind
	Collection string
	Object     string
	RecordID   string
	Fields     map[string]interface{}
	Identifier string
	Reason     string

	// Duplicate group context, set for FlagDuplicate and the DeleteRecord
	// actions it implies.
	KeeperID string
	GroupIDs []string
}

// Error is a fix that could not be staged. The action is dropped and the
// rest of the plan proceeds.
type Error struct {
	Identifier string
	Reason     string
}

// Plan is a staged list of corrective actions plus the planning errors
// encountered while building it.
type Plan struct {
	Actions []Action
	Errors  []Error
}

// Count returns the number of staged actions of the given kind.
func (p *Plan) Count(kind ActionKind) int {
	n := 0
	for _, a := range p.Actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

// Mutations returns the staged actions that would write to the store,
// excluding informational entries.
func (p *Plan) Mutations() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind != FlagDuplicate {
			out = append(out, a)
		}
	}
	return out
}

// BuildPairPlan derives corrective actions from a pair match result:
// create missing counterparts, populate blank connected fields, delete
// true orphans. Duplicate handling is separate (BuildDedupePlan) because
// duplicates should be resolved before cross-collection fixes.
func BuildPairPlan(pair config.PairSpec, source, target config.CollectionSpec, result *match.PairResult) *Plan {
	p := &Plan{}

	for _, item := range result.OnlyInSource {
		if item.Record == nil || item.ID == "" {
			p.Errors = append(p.Errors, Error{
				Identifier: item.Identifier,
				Reason:     "source record vanished before planning",
			})
			continue
		}

		fields := make(map[string]interface{}, len(pair.Correspondence)+1)
		for srcField, tgtField := range pair.Correspondence {
			if v := corresponding(item.Record, srcField, source); v != nil {
				fields[tgtField] = v
			}
		}
		// Connection back to the source record.
		fields[pair.ConnectionField] = item.ID

		p.Actions = append(p.Actions, Action{
			Kind:       CreateRecord,
			Collection: result.TargetName,
			Object:     target.Object,
			Fields:     fields,
			Identifier: item.Identifier,
			Reason:     fmt.Sprintf("missing counterpart for %s record %s", result.SourceName, item.ID),
		})
	}

	for _, item := range result.ConnectedMissingField {
		if item.MissingValue == "" {
			p.Errors = append(p.Errors, Error{
				Identifier: item.Name,
				Reason:     fmt.Sprintf("connected %s record %s has no email to copy", result.SourceName, item.SourceID),
			})
			continue
		}
		p.Actions = append(p.Actions, Action{
			Kind:       PopulateField,
			Collection: result.TargetName,
			Object:     target.Object,
			RecordID:   item.TargetID,
			Fields:     map[string]interface{}{target.EmailField: item.MissingValue},
			Identifier: item.MissingValue,
			Reason:     fmt.Sprintf("blank email on record connected to %s", item.SourceID),
		})
	}

	for _, item := range result.TrulyOrphaned {
		p.Actions = append(p.Actions, Action{
			Kind:       DeleteRecord,
			Collection: result.TargetName,
			Object:     target.Object,
			RecordID:   item.ID,
			Identifier: item.Identifier,
			Reason:     "no resolvable connection and no identifier match",
		})
	}

	return p
}

// corresponding extracts the value to copy for a correspondence entry.
// Email fields are copied as the extracted plain address; everything else
// is copied raw so structured values (names, connections) survive intact.
func corresponding(rec knack.Record, field string, spec config.CollectionSpec) interface{} {
	if field == spec.EmailField {
		if email := extract.Email(rec, field); email != "" {
			return email
		}
		return nil
	}
	return rec.Field(field)
}

// BuildChainPlan derives corrective actions from a chain validation
// result: create the missing next-hop record for chains broken at a hop
// that carries a correspondence table, rewrite terminal names from the
// source-of-truth copy, and delete unreachable downstream records.
//
// Forward-hop creates cannot stage the upstream connection pointer, since
// the new record's ID only exists after Apply.
// TODO: stage a follow-up update of the From record's connection field
// from the IDs Apply returns.
func BuildChainPlan(chain config.ChainSpec, collections map[string]config.CollectionSpec, result *match.ChainResult, indexes map[string]*index.Index) *Plan {
	p := &Plan{}

	for _, hop := range chain.Hops {
		if len(hop.Correspondence) == 0 {
			continue
		}
		fromSpec := collections[hop.From]
		toSpec := collections[hop.To]
		fromIx := indexes[hop.From]

		for _, status := range result.Broken[hop.To] {
			identifier := status.Email
			if identifier == "" {
				identifier = status.Name
			}

			fromID := status.Links[hop.From]
			var rec knack.Record
			if fromIx != nil {
				rec, _ = fromIx.ByID(fromID)
			}
			if rec == nil {
				p.Errors = append(p.Errors, Error{
					Identifier: identifier,
					Reason:     fmt.Sprintf("%s record %s vanished before planning", hop.From, fromID),
				})
				continue
			}

			fields := make(map[string]interface{}, len(hop.Correspondence)+1)
			for srcField, tgtField := range hop.Correspondence {
				if v := corresponding(rec, srcField, fromSpec); v != nil {
					fields[tgtField] = v
				}
			}

			reason := fmt.Sprintf("chain breaks at %s for %s record %s", hop.To, hop.From, fromID)
			if hop.Reverse {
				fields[hop.ConnectionField] = fromID
			} else if hop.ConnectionField != "" {
				reason += fmt.Sprintf("; set %s on the %s record afterwards", hop.ConnectionField, hop.From)
			}

			p.Actions = append(p.Actions, Action{
				Kind:       CreateRecord,
				Collection: hop.To,
				Object:     toSpec.Object,
				Fields:     fields,
				Identifier: identifier,
				Reason:     reason,
			})
		}
	}

	terminalSpec := collections[chain.Terminal]
	for _, d := range result.NameDiscrepancies {
		p.Actions = append(p.Actions, Action{
			Kind:       UpdateField,
			Collection: chain.Terminal,
			Object:     terminalSpec.Object,
			RecordID:   d.TerminalID,
			Fields: map[string]interface{}{
				terminalSpec.NameField: map[string]interface{}{
					"first": d.Truth.First,
					"last":  d.Truth.Last,
				},
			},
			Identifier: d.Email,
			Reason: fmt.Sprintf("name %q should be %q (%s is authoritative)",
				d.Terminal.Display(), d.Truth.Display(), chain.SourceOfTruth),
		})
	}

	staged := make(map[string]bool, len(chain.Hops))
	for _, hop := range chain.Hops {
		if staged[hop.To] {
			continue
		}
		staged[hop.To] = true
		spec := collections[hop.To]
		for _, u := range result.Orphans[hop.To] {
			p.Actions = append(p.Actions, Action{
				Kind:       DeleteRecord,
				Collection: hop.To,
				Object:     spec.Object,
				RecordID:   u.ID,
				Identifier: u.Identifier,
				Reason:     "not reached by any chain walk",
			})
		}
	}

	return p
}

// BuildDedupePlan stages the removal of duplicate groups in one
// collection: a FlagDuplicate entry per group plus a DeleteRecord per
// non-keeper, keeper chosen by policy.
func BuildDedupePlan(collectionName string, spec config.CollectionSpec, groups []index.DuplicateGroup, policy index.KeepPolicy) *Plan {
	p := &Plan{}

	for _, group := range groups {
		keeper := index.Keeper(group.Records, policy)
		if keeper == nil {
			p.Errors = append(p.Errors, Error{
				Identifier: group.Identifier,
				Reason:     "empty duplicate group",
			})
			continue
		}

		ids := make([]string, 0, len(group.Records))
		for _, rec := range group.Records {
			ids = append(ids, rec.ID())
		}

		p.Actions = append(p.Actions, Action{
			Kind:       FlagDuplicate,
			Collection: collectionName,
			Object:     spec.Object,
			Identifier: group.Identifier,
			KeeperID:   keeper.ID(),
			GroupIDs:   ids,
			Reason:     fmt.Sprintf("%d records share one identifier", len(group.Records)),
		})

		for _, rec := range group.Records {
			if rec.ID() == keeper.ID() {
				continue
			}
			p.Actions = append(p.Actions, Action{
				Kind:       DeleteRecord,
				Collection: collectionName,
				Object:     spec.Object,
				RecordID:   rec.ID(),
				Identifier: group.Identifier,
				KeeperID:   keeper.ID(),
				GroupIDs:   ids,
				Reason:     fmt.Sprintf("duplicate of %s (keep %s)", keeper.ID(), string(policy)),
			})
		}
	}

	return p
}
