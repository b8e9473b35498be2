package match

import (
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/edukit/knackrecon/internal/config"
	"github.com/edukit/knackrecon/internal/extract"
	"github.com/edukit/knackrecon/internal/index"
	"github.com/edukit/knackrecon/internal/knack"
)

// ChainStatus tracks one root record's walk along the declared chain.
// Links maps collection name to the resolved record ID at that node.
type ChainStatus struct {
	Email  string
	Name   string
	RootID string
	Links  map[string]string
}

// EmailMismatch is a resolved hop whose endpoint stores a different email
// than the chain root. Informational only.
type EmailMismatch struct {
	Email      string
	Collection string
	RecordID   string
	Found      string
}

// NameDiscrepancy is a complete chain whose terminal node's structured
// name is blank, partial, or differs from the source-of-truth node.
// NearMatch is true when the two display names are a close but not exact
// match, which usually indicates a typo rather than a different person.
type NameDiscrepancy struct {
	Email      string
	TruthID    string
	TerminalID string
	Truth      extract.NameParts
	Terminal   extract.NameParts
	NearMatch  bool
}

// ChainResult is the outcome of validating every root record's chain.
// Broken buckets partial chains by the collection of the FIRST hop that
// failed: a chain that resolves accounts→profiles but not profiles→results
// lands in the "results" bucket, regardless of later hops.
type ChainResult struct {
	Totals map[string]int

	Complete []ChainStatus
	Broken   map[string][]ChainStatus

	EmailMismatches   []EmailMismatch
	NameDiscrepancies []NameDiscrepancy

	Orphans    map[string][]Unmatched
	Duplicates map[string][]index.DuplicateGroup
}

// Chain validates the declared multi-hop relationship for every root
// record, using the per-collection indexes.
type Chain struct {
	spec    config.ChainSpec
	indexes map[string]*index.Index
}

// NewChain builds a chain validator. indexes must contain an entry for the
// root and every hop endpoint; reverse hops need their target index built
// with the hop's connection field.
func NewChain(spec config.ChainSpec, indexes map[string]*index.Index) (*Chain, error) {
	if len(spec.Hops) == 0 {
		return nil, fmt.Errorf("chain has no hops")
	}
	if _, ok := indexes[spec.Root]; !ok {
		return nil, fmt.Errorf("missing index for root collection %q", spec.Root)
	}
	for _, hop := range spec.Hops {
		if _, ok := indexes[hop.To]; !ok {
			return nil, fmt.Errorf("missing index for collection %q", hop.To)
		}
	}
	return &Chain{spec: spec, indexes: indexes}, nil
}

// Collections returns every collection the chain touches, root first,
// then hop targets in declared order. Reports bucket per-collection
// findings (orphans, duplicates) in this order; the root must be included
// or its duplicate groups would never surface.
func (c *Chain) Collections() []string {
	out := []string{c.spec.Root}
	seen := map[string]bool{c.spec.Root: true}
	for _, hop := range c.spec.Hops {
		if seen[hop.To] {
			continue
		}
		seen[hop.To] = true
		out = append(out, hop.To)
	}
	return out
}

// Validate walks the chain for every root record that passes the role
// filter, bucketing failures by first broken hop and collecting the
// side-reports. Output order follows root fetch order.
func (c *Chain) Validate() *ChainResult {
	rootIx := c.indexes[c.spec.Root]

	result := &ChainResult{
		Totals:     make(map[string]int, len(c.indexes)),
		Broken:     make(map[string][]ChainStatus),
		Orphans:    make(map[string][]Unmatched),
		Duplicates: make(map[string][]index.DuplicateGroup),
	}
	for name, ix := range c.indexes {
		result.Totals[name] = ix.Len()
		if groups := ix.DuplicateGroups(); len(groups) > 0 {
			result.Duplicates[name] = groups
		}
	}

	// Records reached by any chain walk, per collection. Used for the
	// orphan sweep afterwards.
	reached := make(map[string]map[string]bool, len(c.indexes))
	for _, hop := range c.spec.Hops {
		reached[hop.To] = make(map[string]bool)
	}

	roots := c.rootRecords(rootIx)
	result.Totals[c.spec.Root] = len(roots)

	for _, rootRec := range roots {
		email := extract.Email(rootRec, rootIx.Spec().EmailField)
		status := ChainStatus{
			Email:  email,
			Name:   extract.Name(rootRec, rootIx.Spec().NameField),
			RootID: rootRec.ID(),
			Links:  map[string]string{c.spec.Root: rootRec.ID()},
		}

		current := rootRec
		currentIx := rootIx
		broken := ""

		for _, hop := range c.spec.Hops {
			targetIx := c.indexes[hop.To]
			next, ok := c.resolveHop(hop, current, currentIx, targetIx)
			if !ok {
				broken = hop.To
				break
			}

			status.Links[hop.To] = next.ID()
			reached[hop.To][next.ID()] = true

			// Email consistency along the hop, against the root's copy.
			if field := targetIx.Spec().EmailField; field != "" && email != "" {
				found := extract.Email(next, field)
				if found != "" && extract.NormalizeEmail(found) != extract.NormalizeEmail(email) {
					result.EmailMismatches = append(result.EmailMismatches, EmailMismatch{
						Email:      email,
						Collection: hop.To,
						RecordID:   next.ID(),
						Found:      found,
					})
				}
			}

			current = next
			currentIx = targetIx
		}

		if broken != "" {
			result.Broken[broken] = append(result.Broken[broken], status)
			continue
		}

		result.Complete = append(result.Complete, status)

		if d, ok := c.nameDiscrepancy(status); ok {
			result.NameDiscrepancies = append(result.NameDiscrepancies, d)
		}
	}

	// Orphan sweep: downstream records never reached by any walk.
	for _, hop := range c.spec.Hops {
		ix := c.indexes[hop.To]
		for _, rec := range ix.Records() {
			if reached[hop.To][rec.ID()] {
				continue
			}
			result.Orphans[hop.To] = append(result.Orphans[hop.To], Unmatched{
				ID:         rec.ID(),
				Email:      extract.Email(rec, ix.Spec().EmailField),
				Name:       extract.Name(rec, ix.Spec().NameField),
				Identifier: ix.Identifier(rec),
				Record:     rec,
			})
		}
	}

	return result
}

// rootRecords filters the root collection down to single-role records
// when the chain declares a role; otherwise every record is a root.
func (c *Chain) rootRecords(rootIx *index.Index) []knack.Record {
	if c.spec.Role == "" || rootIx.Spec().RoleField == "" {
		return rootIx.Records()
	}
	var roots []knack.Record
	for _, rec := range rootIx.Records() {
		if extract.HasOnlyRole(rec, rootIx.Spec().RoleField, c.spec.Role) {
			roots = append(roots, rec)
		}
	}
	return roots
}

// resolveHop resolves one step: a direct connection field when declared
// (forward or reverse), else the shared normalized identifier.
func (c *Chain) resolveHop(hop config.HopSpec, current knack.Record, currentIx, targetIx *index.Index) (knack.Record, bool) {
	if hop.ConnectionField == "" {
		identifier := currentIx.Identifier(current)
		if identifier == "" {
			return nil, false
		}
		candidates := targetIx.Lookup(identifier)
		if len(candidates) == 0 {
			return nil, false
		}
		return candidates[0], true
	}

	if hop.Reverse {
		return targetIx.ByConnection(current.ID())
	}

	targetID := extract.ConnectionID(current, hop.ConnectionField)
	if targetID == "" {
		return nil, false
	}
	return targetIx.ByID(targetID)
}

// nameDiscrepancy compares the structured name at the source-of-truth
// node against the terminal node for one complete chain.
func (c *Chain) nameDiscrepancy(status ChainStatus) (NameDiscrepancy, bool) {
	if c.spec.SourceOfTruth == "" || c.spec.Terminal == "" {
		return NameDiscrepancy{}, false
	}
	truthIx, ok := c.indexes[c.spec.SourceOfTruth]
	if !ok {
		return NameDiscrepancy{}, false
	}
	terminalIx, ok := c.indexes[c.spec.Terminal]
	if !ok {
		return NameDiscrepancy{}, false
	}

	truthRec, ok := truthIx.ByID(status.Links[c.spec.SourceOfTruth])
	if !ok {
		return NameDiscrepancy{}, false
	}
	terminalRec, ok := terminalIx.ByID(status.Links[c.spec.Terminal])
	if !ok {
		return NameDiscrepancy{}, false
	}

	truth, hasTruth := extract.StructuredName(truthRec, truthIx.Spec().NameField)
	if !hasTruth || truth.Empty() {
		return NameDiscrepancy{}, false
	}

	terminal, hasTerminal := extract.StructuredName(terminalRec, terminalIx.Spec().NameField)
	if hasTerminal && !terminal.Empty() && !terminal.Partial() && truth.EqualFold(terminal) {
		return NameDiscrepancy{}, false
	}

	return NameDiscrepancy{
		Email:      status.Email,
		TruthID:    truthRec.ID(),
		TerminalID: terminalRec.ID(),
		Truth:      truth,
		Terminal:   terminal,
		NearMatch:  nearMatch(truth.Display(), terminal.Display()),
	}, true
}

// nearMatch reports whether two display names are close enough that the
// discrepancy is probably a typo rather than a different person.
func nearMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" || a == b {
		return false
	}
	rank := fuzzy.LevenshteinDistance(a, b)
	return rank > 0 && rank <= 3
}
