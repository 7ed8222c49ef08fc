package extraction

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/soundprediction/lorekeeper/pkg/config"
	"github.com/soundprediction/lorekeeper/pkg/types"
)

// PassivePolicy decides what happens to passive relation types such as WORSHIPPED_BY.
type PassivePolicy string

const (
	// PassiveRewrite strips the _BY suffix and swaps the endpoints.
	PassiveRewrite PassivePolicy = "rewrite"
	// PassiveReject drops passive relationships.
	PassiveReject PassivePolicy = "reject"
)

const passiveSuffix = "_BY"

// Rejection reasons reported in CandidateExtraction.Rejected.
const (
	RejectEmptyEndpoint = "source or target is empty"
	RejectInvalidType   = "relation type is not UPPER_SNAKE_CASE"
	RejectPassive       = "passive relation type"
	RejectVocabulary    = "relation type is outside the vocabulary"
	RejectSelfLoop      = "source and target are the same entity"
)

// Inversion rewrites a non-canonical relation type into its canonical form.
type Inversion struct {
	// Type is the canonical relation type.
	Type string
	// Swap reverses source and target.
	Swap bool
}

// DefaultInversions is the built-in table of directional rewrites.
// CHILD_OF points from child to parent and ANCESTOR_OF from ancestor to descendant.
func DefaultInversions() map[string]Inversion {
	return map[string]Inversion{
		"DESCENDED_FROM": {Type: "ANCESTOR_OF", Swap: true},
		"DESCENDANT_OF":  {Type: "ANCESTOR_OF", Swap: true},
		"PARENT_OF":      {Type: "CHILD_OF", Swap: true},
		"FATHER_OF":      {Type: "CHILD_OF", Swap: true},
		"MOTHER_OF":      {Type: "CHILD_OF", Swap: true},
		"SON_OF":         {Type: "CHILD_OF"},
		"DAUGHTER_OF":    {Type: "CHILD_OF"},
		"IMPRISONED_IN":  {Type: "TRAPPED_IN"},
		"SEALED_IN":      {Type: "TRAPPED_IN"},
		"IMPRISONS":      {Type: "TRAPPED_IN", Swap: true},
		"WORSHIPPED":     {Type: "WORSHIPS"},
	}
}

// DefaultLabels are the entity categories suggested to the model.
var DefaultLabels = []string{"Person", "God", "Location", "Faction", "Object", "Event"}

// Rules validates and canonicalizes a raw candidate set.
type Rules struct {
	Inversions    map[string]Inversion
	PassivePolicy PassivePolicy
	// Vocabulary, when non-empty, is the closed set of accepted relation types.
	Vocabulary map[string]struct{}
	Labels     []string
}

// DefaultRules returns the rules used when nothing is configured.
func DefaultRules() *Rules {
	return &Rules{
		Inversions:    DefaultInversions(),
		PassivePolicy: PassiveRewrite,
		Labels:        slices.Clone(DefaultLabels),
	}
}

// RulesFromConfig layers configured inversions and vocabulary over the defaults.
func RulesFromConfig(c config.RulesConfig) *Rules {
	r := DefaultRules()
	if c.PassivePolicy != "" {
		r.PassivePolicy = PassivePolicy(strings.ToLower(c.PassivePolicy))
	}
	for from, inv := range c.Inversions {
		r.Inversions[NormalizeType(from)] = Inversion{Type: NormalizeType(inv.Type), Swap: inv.Swap}
	}
	if len(c.Vocabulary) > 0 {
		r.Vocabulary = make(map[string]struct{}, len(c.Vocabulary))
		for _, t := range c.Vocabulary {
			r.Vocabulary[NormalizeType(t)] = struct{}{}
		}
	}
	if len(c.Labels) > 0 {
		r.Labels = slices.Clone(c.Labels)
	}
	return r
}

// VocabularyList returns the closed vocabulary in sorted order, or nil when open.
func (r *Rules) VocabularyList() []string {
	if len(r.Vocabulary) == 0 {
		return nil
	}
	return slices.Sorted(maps.Keys(r.Vocabulary))
}

var nonWord = regexp.MustCompile(`[^A-Za-z0-9]+`)

// NormalizeType converts a free-form relation type to UPPER_SNAKE_CASE.
// "worshipped by", "childOf" and "ancestor-of" become WORSHIPPED_BY, CHILD_OF
// and ANCESTOR_OF. The result may still be invalid, e.g. when it starts with a digit.
func NormalizeType(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}

	var b strings.Builder
	runes := []rune(t)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			if unicode.IsLower(prev) || unicode.IsDigit(prev) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}

	out := nonWord.ReplaceAllString(b.String(), "_")
	return strings.ToUpper(strings.Trim(out, "_"))
}

// canonicalize resolves inversions and passive voice for one relationship.
// ok is false when the relationship must be rejected, with reason set.
func (r *Rules) canonicalize(rel types.CandidateRelationship) (types.CandidateRelationship, string, bool) {
	rel.Source = strings.TrimSpace(rel.Source)
	rel.Target = strings.TrimSpace(rel.Target)
	rel.Type = NormalizeType(rel.Type)

	if rel.Source == "" || rel.Target == "" {
		return rel, RejectEmptyEndpoint, false
	}
	if !types.IsValidRelationType(rel.Type) {
		return rel, RejectInvalidType, false
	}

	rel = r.invert(rel)

	if strings.HasSuffix(rel.Type, passiveSuffix) && len(rel.Type) > len(passiveSuffix) {
		if r.PassivePolicy == PassiveReject {
			return rel, RejectPassive, false
		}
		rel.Type = strings.TrimSuffix(rel.Type, passiveSuffix)
		rel.Source, rel.Target = rel.Target, rel.Source
		// The active form may itself be non-canonical (WORSHIPPED -> WORSHIPS).
		rel = r.invert(rel)
		if !types.IsValidRelationType(rel.Type) {
			return rel, RejectInvalidType, false
		}
	}

	if len(r.Vocabulary) > 0 {
		if _, ok := r.Vocabulary[rel.Type]; !ok {
			return rel, RejectVocabulary, false
		}
	}
	if strings.EqualFold(rel.Source, rel.Target) {
		return rel, RejectSelfLoop, false
	}
	return rel, "", true
}

func (r *Rules) invert(rel types.CandidateRelationship) types.CandidateRelationship {
	inv, ok := r.Inversions[rel.Type]
	if !ok {
		return rel
	}
	rel.Type = inv.Type
	if inv.Swap {
		rel.Source, rel.Target = rel.Target, rel.Source
	}
	return rel
}

// Apply returns the canonical form of c. Entities with blank names are
// dropped; aliases are trimmed, deduplicated and never equal the canonical
// name. Relationships are canonicalized or moved to Rejected. Duplicate
// relationships are folded.
func (r *Rules) Apply(c *types.CandidateExtraction) *types.CandidateExtraction {
	out := &types.CandidateExtraction{
		Entities:      make([]types.CandidateEntity, 0, len(c.Entities)),
		Relationships: make([]types.CandidateRelationship, 0, len(c.Relationships)),
		Rejected:      slices.Clone(c.Rejected),
	}

	for _, e := range c.Entities {
		name := strings.TrimSpace(e.CanonicalName)
		if name == "" {
			continue
		}
		aliases := make([]string, 0, len(e.Aliases))
		for _, a := range e.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || a == name {
				continue
			}
			aliases = types.UnionStrings(aliases, a)
		}
		out.Entities = append(out.Entities, types.CandidateEntity{
			CanonicalName: name,
			Aliases:       aliases,
			Label:         strings.TrimSpace(e.Label),
		})
	}

	seen := make(map[types.CandidateRelationship]struct{}, len(c.Relationships))
	for _, raw := range c.Relationships {
		rel, reason, ok := r.canonicalize(raw)
		if !ok {
			out.Rejected = append(out.Rejected, types.RejectedRelationship{Relationship: raw, Reason: reason})
			continue
		}
		if _, dup := seen[rel]; dup {
			continue
		}
		seen[rel] = struct{}{}
		out.Relationships = append(out.Relationships, rel)
	}

	return out
}
