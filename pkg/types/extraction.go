package types

// CandidateEntity is an entity as emitted by the language model, before resolution.
type CandidateEntity struct {
	CanonicalName string   `json:"canonical_name"`
	Aliases       []string `json:"aliases"`
	Label         string   `json:"label"`
}

// CandidateRelationship is a relationship as emitted by the language model.
type CandidateRelationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// RejectedRelationship is a candidate relationship dropped by validation.
type RejectedRelationship struct {
	Relationship CandidateRelationship `json:"relationship"`
	Reason       string                `json:"reason"`
}

// CandidateExtraction is the validated per-chunk output of the extraction adapter.
// It is discarded once merged.
type CandidateExtraction struct {
	Entities      []CandidateEntity       `json:"entities"`
	Relationships []CandidateRelationship `json:"relationships"`
	// Rejected lists relationships that failed type or direction validation.
	Rejected []RejectedRelationship `json:"rejected,omitempty"`
}

// IsEmpty returns true if no entities or relationships were extracted.
func (c *CandidateExtraction) IsEmpty() bool {
	return c == nil || (len(c.Entities) == 0 && len(c.Relationships) == 0)
}

// ResolvedEntity is a candidate entity whose name has been mapped to a canonical name.
type ResolvedEntity struct {
	// Name is the canonical name returned by the resolver.
	Name string
	// RawName is the name the model used in this chunk.
	RawName string
	Aliases []string
	Label   string
}

// ResolvedRelationship is a relationship whose endpoints are canonical names.
type ResolvedRelationship = Relationship

// SkippedRelationship reports a relationship the merge engine did not write.
type SkippedRelationship struct {
	Relationship Relationship `json:"relationship" yaml:"relationship"`
	Reason       string       `json:"reason" yaml:"reason"`
}

// Skip reasons reported by the merge engine.
const (
	SkipMissingSource = "source entity not found"
	SkipMissingTarget = "target entity not found"
	SkipMissingBoth   = "source and target entities not found"
	SkipSelfLoop      = "source and target resolve to the same entity"
	SkipInvalid       = "invalid relationship"
)

// MergeResult summarizes one merge call.
type MergeResult struct {
	EntitiesCreated       int                   `json:"entities_created" yaml:"entities_created"`
	EntitiesUpdated       int                   `json:"entities_updated" yaml:"entities_updated"`
	RelationshipsCreated  int                   `json:"relationships_created" yaml:"relationships_created"`
	RelationshipsExisting int                   `json:"relationships_existing" yaml:"relationships_existing"`
	RelationshipsSkipped  int                   `json:"relationships_skipped" yaml:"relationships_skipped"`
	Skipped               []SkippedRelationship `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Add folds other into r.
func (r *MergeResult) Add(other *MergeResult) {
	if other == nil {
		return
	}
	r.EntitiesCreated += other.EntitiesCreated
	r.EntitiesUpdated += other.EntitiesUpdated
	r.RelationshipsCreated += other.RelationshipsCreated
	r.RelationshipsExisting += other.RelationshipsExisting
	r.RelationshipsSkipped += other.RelationshipsSkipped
	r.Skipped = append(r.Skipped, other.Skipped...)
}
