package driver

import (
	"context"

	"github.com/soundprediction/lorekeeper/pkg/types"
)

// Consumers should depend on the smallest interface that meets their needs.
// GraphDriver is composed from the smaller interfaces.

// GraphCore provides connection and lifecycle operations.
type GraphCore interface {
	// VerifyConnectivity checks that the store is reachable.
	VerifyConnectivity(ctx context.Context) error

	// EnsureSchema creates constraints and indexes if they are missing.
	EnsureSchema(ctx context.Context) error

	// Provider returns the type of graph database provider.
	Provider() GraphProvider

	// Close releases all resources held by the driver.
	Close() error
}

// EntityStore provides operations for managing entity nodes.
type EntityStore interface {
	// UpsertEntity creates the node named entity.Name, or folds entity into it:
	// aliases and source refs are unioned, the label is set only if absent.
	// It reports whether the node was created.
	UpsertEntity(ctx context.Context, entity *types.Entity) (bool, error)

	// GetEntity retrieves an entity by canonical name.
	GetEntity(ctx context.Context, name string) (*types.Entity, error)
}

// RelationshipStore provides operations for managing edges.
type RelationshipStore interface {
	// MergeRelationship creates the edge if no edge with the same
	// (source, target, type) exists. Both endpoints must already exist.
	MergeRelationship(ctx context.Context, rel types.Relationship, sourceDoc string) (MergeOutcome, error)

	// GetRelationships returns the edges touching entity, or every edge when
	// entity is empty.
	GetRelationships(ctx context.Context, entity string) ([]types.Relationship, error)
}

// StatsProvider provides graph statistics.
type StatsProvider interface {
	Stats(ctx context.Context) (*GraphStats, error)
}

// Merger is the write surface used by the merge engine.
type Merger interface {
	EntityStore
	RelationshipStore
}

// GraphDriver is the complete graph store interface.
type GraphDriver interface {
	GraphCore
	EntityStore
	RelationshipStore
	StatsProvider
}

var (
	_ GraphDriver = (*Neo4jDriver)(nil)
	_ GraphDriver = (*MemoryDriver)(nil)
)
