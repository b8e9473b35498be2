// Package match compares indexed collections and classifies every record:
// matched, fixable, missing, orphaned, or duplicated. It reads snapshots
// and produces results; it never touches the store.
package match

import (
	"fmt"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/knack"
)

// MatchedBy records which relationship produced a match.
type MatchedBy string

const (
	// ByConnection means the target's connection field resolved into the source.
	ByConnection MatchedBy = "connection"
	// ByIdentifier means the normalized identifier matched (fallback).
	ByIdentifier MatchedBy = "identifier"
)

// MatchedPair is one source/target pair considered the same identity.
// EmailMismatch reports disagreement between the two independently-stored
// email copies; it never breaks the match.
type MatchedPair struct {
	SourceID      string
	TargetID      string
	Identifier    string
	MatchedBy     MatchedBy
	EmailMismatch bool
	SourceEmail   string
	TargetEmail   string
}

// MissingField is a target record whose connection is structurally sound
// but whose own denormalized identifier copy is blank. The fix is to
// populate the field from the connected source record.
type MissingField struct {
	TargetID     string
	SourceID     string
	Name         string
	MissingValue string
	SourceRecord knack.Record
	TargetRecord knack.Record
}

// Unmatched is a record on one side with no counterpart on the other.
type Unmatched struct {
	ID           string
	Email        string
	Name         string
	Identifier   string
	ConnectionID string
	Record       knack.Record
}

// PairResult is the outcome of matching a source collection against its
// connected target collection.
type PairResult struct {
	SourceName string
	TargetName string

	SourceTotal int
	TargetTotal int

	Matched               []MatchedPair
	ConnectedMissingField []MissingField
	OnlyInSource          []Unmatched
	TrulyOrphaned         []Unmatched

	SourceDuplicates []index.DuplicateGroup
	TargetDuplicates []index.DuplicateGroup
}

// MatchPair matches target records against source records for a declared
// direct-connection relationship: target carries pair.ConnectionField
// pointing at source IDs, and both sides keep their own email copy.
//
// Classification order matters: connection resolution is checked before
// identifier presence, so a connected record with a blank email is a
// "connected but missing field" case, never an orphan, and its source
// record is never counted as missing a counterpart.
func MatchPair(pair config.PairSpec, source, target *index.Index) (*PairResult, error) {
	if source == nil || target == nil {
		return nil, fmt.Errorf("source and target indexes are required")
	}

	result := &PairResult{
		SourceName:       source.Name(),
		TargetName:       target.Name(),
		SourceTotal:      source.Len(),
		TargetTotal:      target.Len(),
		SourceDuplicates: source.DuplicateGroups(),
		TargetDuplicates: target.DuplicateGroups(),
	}

	// Classify every target record in fetch order.
	for _, rec := range target.Records() {
		connID := extract.ConnectionID(rec, pair.ConnectionField)
		email := extract.Email(rec, target.Spec().EmailField)
		name := extract.Name(rec, target.Spec().NameField)
		identifier := target.Identifier(rec)

		srcRec, connected := knack.Record(nil), false
		if connID != "" {
			srcRec, connected = source.ByID(connID)
		}

		if connected {
			srcEmail := extract.Email(srcRec, source.Spec().EmailField)

			if email == "" {
				result.ConnectedMissingField = append(result.ConnectedMissingField, MissingField{
					TargetID:     rec.ID(),
					SourceID:     srcRec.ID(),
					Name:         name,
					MissingValue: srcEmail,
					SourceRecord: srcRec,
					TargetRecord: rec,
				})
				continue
			}

			result.Matched = append(result.Matched, MatchedPair{
				SourceID:      srcRec.ID(),
				TargetID:      rec.ID(),
				Identifier:    identifier,
				MatchedBy:     ByConnection,
				EmailMismatch: extract.NormalizeEmail(srcEmail) != extract.NormalizeEmail(email),
				SourceEmail:   srcEmail,
				TargetEmail:   email,
			})
			continue
		}

		// No resolvable connection: try the identifier fallback.
		if identifier != "" {
			if candidates := source.Lookup(identifier); len(candidates) > 0 {
				srcRec := candidates[0]
				result.Matched = append(result.Matched, MatchedPair{
					SourceID:    srcRec.ID(),
					TargetID:    rec.ID(),
					Identifier:  identifier,
					MatchedBy:   ByIdentifier,
					SourceEmail: extract.Email(srcRec, source.Spec().EmailField),
					TargetEmail: email,
				})
				continue
			}
		}

		result.TrulyOrphaned = append(result.TrulyOrphaned, Unmatched{
			ID:           rec.ID(),
			Email:        email,
			Name:         name,
			Identifier:   identifier,
			ConnectionID: connID,
			Record:       rec,
		})
	}

	// Source records with no inbound connection and no identifier match
	// are missing a counterpart. An inbound connection from a blank-email
	// target still counts as present.
	for _, rec := range source.Records() {
		if _, ok := target.ByConnection(rec.ID()); ok {
			continue
		}

		identifier := source.Identifier(rec)
		if identifier != "" && len(target.Lookup(identifier)) > 0 {
			continue
		}

		result.OnlyInSource = append(result.OnlyInSource, Unmatched{
			ID:         rec.ID(),
			Email:      extract.Email(rec, source.Spec().EmailField),
			Name:       extract.Name(rec, source.Spec().NameField),
			Identifier: identifier,
			Record:     rec,
		})
	}

	return result, nil
}
