package driver

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/soundprediction/lorekeeper/pkg/types"
)

// MemoryDriver is an in-process graph with the same merge semantics as Neo4jDriver.
type MemoryDriver struct {
	mu       sync.RWMutex
	entities map[string]*types.Entity
	edges    map[types.RelationshipKey]string
}

// NewMemoryDriver creates an empty in-memory graph.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{
		entities: make(map[string]*types.Entity),
		edges:    make(map[types.RelationshipKey]string),
	}
}

func (m *MemoryDriver) VerifyConnectivity(context.Context) error { return nil }
func (m *MemoryDriver) EnsureSchema(context.Context) error       { return nil }
func (m *MemoryDriver) Provider() GraphProvider                  { return GraphProviderMemory }
func (m *MemoryDriver) Close() error                             { return nil }

func (m *MemoryDriver) UpsertEntity(_ context.Context, entity *types.Entity) (bool, error) {
	if entity == nil {
		return false, fmt.Errorf("cannot upsert nil entity")
	}
	if err := entity.Validate(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.entities[entity.Name]
	if !ok {
		m.entities[entity.Name] = &types.Entity{
			Name:       entity.Name,
			Label:      entity.Label,
			Aliases:    types.UnionStrings(nil, entity.Aliases...),
			SourceRefs: types.UnionStrings(nil, entity.SourceRefs...),
		}
		return true, nil
	}

	existing.Aliases = types.UnionStrings(existing.Aliases, entity.Aliases...)
	existing.SourceRefs = types.UnionStrings(existing.SourceRefs, entity.SourceRefs...)
	if existing.Label == "" {
		existing.Label = entity.Label
	}
	return false, nil
}

func (m *MemoryDriver) GetEntity(_ context.Context, name string) (*types.Entity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	return &types.Entity{
		Name:       e.Name,
		Label:      e.Label,
		Aliases:    slices.Clone(e.Aliases),
		SourceRefs: slices.Clone(e.SourceRefs),
	}, nil
}

func (m *MemoryDriver) MergeRelationship(_ context.Context, rel types.Relationship, sourceDoc string) (MergeOutcome, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	_, hasSource := m.entities[rel.Source]
	_, hasTarget := m.entities[rel.Target]
	if !hasSource || !hasTarget {
		return outcomeFor(hasSource, hasTarget), nil
	}

	key := rel.Key()
	if _, ok := m.edges[key]; ok {
		return OutcomeExisting, nil
	}
	m.edges[key] = sourceDoc
	return OutcomeCreated, nil
}

func (m *MemoryDriver) GetRelationships(_ context.Context, entity string) ([]types.Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rels := make([]types.Relationship, 0, len(m.edges))
	for key := range m.edges {
		if entity != "" && key.Source != entity && key.Target != entity {
			continue
		}
		rels = append(rels, types.Relationship{Source: key.Source, Target: key.Target, Type: key.Type})
	}
	slices.SortFunc(rels, func(a, b types.Relationship) int {
		return cmp.Or(
			cmp.Compare(a.Source, b.Source),
			cmp.Compare(a.Type, b.Type),
			cmp.Compare(a.Target, b.Target),
		)
	})
	return rels, nil
}

// EdgeSource returns the document that created the edge.
func (m *MemoryDriver) EdgeSource(rel types.Relationship) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.edges[rel.Key()]
	return doc, ok
}

func (m *MemoryDriver) Stats(context.Context) (*GraphStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := newGraphStats()
	for _, e := range m.entities {
		stats.EntitiesByLabel[e.Label]++
		stats.EntityCount++
	}
	for key := range m.edges {
		stats.RelationshipsByType[key.Type]++
		stats.RelationshipCount++
	}
	return stats, nil
}
