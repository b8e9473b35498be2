// Package index builds per-collection lookup structures over one fetched
// snapshot: by normalized identifier, by record ID, and by outbound
// connection target. Indices are built once per run and discarded.
package index

import (
	"sort"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/knack"
)

// KeepPolicy selects which record survives a duplicate group.
type KeepPolicy string

const (
	// KeepOldest keeps the earliest-created record (default).
	KeepOldest KeepPolicy = "oldest"
	// KeepNewest keeps the latest-created record.
	KeepNewest KeepPolicy = "newest"
)

// DuplicateGroup is a set of ≥2 records in one collection sharing a
// normalized identifier. Records appear in fetch order, not creation order.
type DuplicateGroup struct {
	Identifier string
	Records    []knack.Record
}

// Index holds the lookup structures for one collection snapshot.
//
// The identifier index is an ordered map so that iteration over duplicate
// groups follows fetch order and repeated runs over an unchanged snapshot
// produce identical output.
type Index struct {
	name string
	spec config.CollectionSpec

	records      []knack.Record
	byIdentifier *orderedmap.OrderedMap[string, []knack.Record]
	byID         map[string]knack.Record
	byConnection map[string]knack.Record
}

// Build indexes a snapshot of records under the given collection spec.
// connectionField, when non-empty, additionally indexes each record by the
// ID its connection field points at. Records with an empty identifier are
// excluded from the identifier index but remain resolvable by ID.
func Build(name string, spec config.CollectionSpec, records []knack.Record, connectionField string) *Index {
	ix := &Index{
		name:         name,
		spec:         spec,
		records:      records,
		byIdentifier: orderedmap.NewOrderedMap[string, []knack.Record](),
		byID:         make(map[string]knack.Record, len(records)),
	}
	if connectionField != "" {
		ix.byConnection = make(map[string]knack.Record)
	}

	for _, rec := range records {
		if id := rec.ID(); id != "" {
			ix.byID[id] = rec
		}

		if connectionField != "" {
			if target := extract.ConnectionID(rec, connectionField); target != "" {
				ix.byConnection[target] = rec
			}
		}

		identifier := ix.Identifier(rec)
		if identifier == "" {
			continue
		}
		group, _ := ix.byIdentifier.Get(identifier)
		ix.byIdentifier.Set(identifier, append(group, rec))
	}

	return ix
}

// Name returns the collection name this index was built for.
func (ix *Index) Name() string { return ix.name }

// Spec returns the collection spec this index was built with.
func (ix *Index) Spec() config.CollectionSpec { return ix.spec }

// Records returns the snapshot in fetch order.
func (ix *Index) Records() []knack.Record { return ix.records }

// Len returns the number of records in the snapshot.
func (ix *Index) Len() int { return len(ix.records) }

// Identifier computes the normalized join key for a record under this
// collection's field map: email preferred, name fallback.
func (ix *Index) Identifier(rec knack.Record) string {
	email := extract.Email(rec, ix.spec.EmailField)
	name := extract.Name(rec, ix.spec.NameField)
	return extract.Identifier(email, name)
}

// Lookup returns all records sharing the given normalized identifier,
// in fetch order.
func (ix *Index) Lookup(identifier string) []knack.Record {
	group, _ := ix.byIdentifier.Get(identifier)
	return group
}

// ByID resolves a raw record ID.
func (ix *Index) ByID(id string) (knack.Record, bool) {
	rec, ok := ix.byID[id]
	return rec, ok
}

// ByConnection resolves the record whose connection field points at the
// given target ID. Only populated when the index was built with a
// connection field.
func (ix *Index) ByConnection(targetID string) (knack.Record, bool) {
	if ix.byConnection == nil {
		return nil, false
	}
	rec, ok := ix.byConnection[targetID]
	return rec, ok
}

// Identifiers returns every indexed identifier in fetch order.
func (ix *Index) Identifiers() []string {
	keys := make([]string, 0, ix.byIdentifier.Len())
	for el := ix.byIdentifier.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}

// DuplicateGroups returns every identifier shared by two or more records,
// in fetch order of first occurrence.
func (ix *Index) DuplicateGroups() []DuplicateGroup {
	var groups []DuplicateGroup
	for el := ix.byIdentifier.Front(); el != nil; el = el.Next() {
		if len(el.Value) >= 2 {
			groups = append(groups, DuplicateGroup{
				Identifier: el.Key,
				Records:    el.Value,
			})
		}
	}
	return groups
}

// Keeper picks the record to keep from a duplicate group under the given
// policy. Records without a parseable creation timestamp sort as the
// minimum time, so they are always "oldest". The sort is stable: ties
// preserve fetch order.
func Keeper(records []knack.Record, policy KeepPolicy) knack.Record {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]knack.Record, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return extract.CreatedAt(sorted[i]).Before(extract.CreatedAt(sorted[j]))
	})

	if policy == KeepNewest {
		return sorted[len(sorted)-1]
	}
	return sorted[0]
}
