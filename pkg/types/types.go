package types

import (
	"errors"
	"regexp"
	"strings"
)

// Validation errors
var (
	ErrEmptyName             = errors.New("name cannot be empty")
	ErrEmptySource           = errors.New("source cannot be empty")
	ErrEmptyTarget           = errors.New("target cannot be empty")
	ErrEmptyRelationshipType = errors.New("relationship type cannot be empty")
	ErrInvalidRelationType   = errors.New("relationship type must be UPPER_SNAKE_CASE")
	ErrEmptyDocumentID       = errors.New("document id cannot be empty")
)

// relationTypePattern is the casing convention every stored edge type follows.
var relationTypePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// IsValidRelationType reports whether t follows the UPPER_SNAKE_CASE convention.
func IsValidRelationType(t string) bool {
	return relationTypePattern.MatchString(t)
}

// Entity is a canonical node in the lore graph.
type Entity struct {
	// Name is the canonical name and the primary key of the node.
	Name string `json:"name" yaml:"name"`
	// Label is the entity category, e.g. Person, God, Location.
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Aliases is the set of alternate names ever observed for this entity.
	Aliases []string `json:"aliases" yaml:"aliases"`
	// SourceRefs is the set of document IDs that contributed to this entity.
	SourceRefs []string `json:"source_refs" yaml:"source_refs"`
}

// Validate checks if the Entity has all required fields set.
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	return nil
}

// Relationship is a directed, typed edge between two canonical entities.
type Relationship struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
	Type   string `json:"type" yaml:"type"`
}

// Validate checks the relationship endpoints and type casing.
func (r *Relationship) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return ErrEmptySource
	}
	if strings.TrimSpace(r.Target) == "" {
		return ErrEmptyTarget
	}
	if r.Type == "" {
		return ErrEmptyRelationshipType
	}
	if !IsValidRelationType(r.Type) {
		return ErrInvalidRelationType
	}
	return nil
}

// Key returns the (source, target, type) identity of the edge.
func (r Relationship) Key() RelationshipKey {
	return RelationshipKey{Source: r.Source, Target: r.Target, Type: r.Type}
}

// RelationshipKey is the uniqueness key of an edge.
type RelationshipKey struct {
	Source string
	Target string
	Type   string
}

// Document is a plain-text corpus document. ID doubles as provenance.
type Document struct {
	ID      string `json:"id"`
	Path    string `json:"path,omitempty"`
	Content string `json:"-"`
}

// Validate checks if the Document has an identifier.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return ErrEmptyDocumentID
	}
	return nil
}

// UnionStrings appends members of add that are not yet in base.
// Empty strings are ignored and the order of base is preserved.
func UnionStrings(base []string, add ...string) []string {
	seen := make(map[string]struct{}, len(base)+len(add))
	out := make([]string, 0, len(base)+len(add))
	for _, s := range base {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	for _, s := range add {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
