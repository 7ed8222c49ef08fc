// Package types defines the core data types for the lorekeeper knowledge graph.
//
// This package contains the fundamental types used throughout lorekeeper:
//   - Entity: A canonical node in the lore graph (name, label, aliases, provenance)
//   - Relationship: A directed, typed edge between two canonical entities
//   - CandidateExtraction: Unvalidated model output for a single chunk
//   - ResolvedEntity/ResolvedRelationship: Input to the graph merge engine
//   - MergeResult: Counters and skip reports produced by a merge
//
// # Sets
//
// Aliases and provenance are sets. They are stored as string slices and
// manipulated with UnionStrings, which preserves first-seen order and never
// drops an existing member.
//
// # Validation
//
// Types provide Validate() methods for input validation:
//
//	rel := types.Relationship{Source: "Diluc", Target: "Crepus", Type: "CHILD_OF"}
//	if err := rel.Validate(); err != nil {
//	    // Handle validation error
//	}
package types
