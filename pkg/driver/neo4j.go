package driver

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/soundprediction/lorekeeper/pkg/types"
)

// Neo4jDriver implements the GraphDriver interface for Neo4j databases.
type Neo4jDriver struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jDriver creates a new Neo4j driver instance.
// No connection is made until the first query or VerifyConnectivity.
func NewNeo4jDriver(uri, username, password, database string) (*Neo4jDriver, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if database == "" {
		database = "neo4j"
	}

	return &Neo4jDriver{
		client:   driver,
		database: database,
	}, nil
}

func (n *Neo4jDriver) session(ctx context.Context) neo4j.SessionWithContext {
	return n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
}

// EnsureSchema creates the uniqueness constraint on Entity.name and supporting indexes.
func (n *Neo4jDriver) EnsureSchema(ctx context.Context) error {
	session := n.session(ctx)
	defer session.Close(ctx)

	for _, query := range GetSchemaQueries() {
		if _, err := session.Run(ctx, query, nil); err != nil {
			return fmt.Errorf("failed to apply schema %q: %w", query, err)
		}
	}
	return nil
}

// UpsertEntity merges entity into the node with the same canonical name in a
// single server-side statement.
func (n *Neo4jDriver) UpsertEntity(ctx context.Context, entity *types.Entity) (bool, error) {
	if entity == nil {
		return false, fmt.Errorf("cannot upsert nil entity")
	}
	if err := entity.Validate(); err != nil {
		return false, err
	}

	params := map[string]any{
		"name":    entity.Name,
		"label":   entity.Label,
		"aliases": nonNil(entity.Aliases),
		"sources": nonNil(entity.SourceRefs),
		"token":   uuid.NewString(),
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, upsertEntityQuery, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		return recordBool(record, "created")
	})
	if err != nil {
		return false, fmt.Errorf("failed to upsert entity %q: %w", entity.Name, err)
	}
	return result.(bool), nil
}

// MergeRelationship creates the edge unless an edge with the same triple exists.
// The MERGE runs between the two matched endpoint nodes, which Neo4j locks,
// so concurrent callers cannot create a duplicate.
func (n *Neo4jDriver) MergeRelationship(ctx context.Context, rel types.Relationship, sourceDoc string) (MergeOutcome, error) {
	if err := rel.Validate(); err != nil {
		return 0, err
	}
	query, err := BuildMergeRelationshipQuery(rel.Type)
	if err != nil {
		return 0, err
	}

	params := map[string]any{
		"source":      rel.Source,
		"target":      rel.Target,
		"source_file": sourceDoc,
		"token":       uuid.NewString(),
	}

	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			created, err := recordBool(records[0], "created")
			if err != nil {
				return nil, err
			}
			if created {
				return OutcomeCreated, nil
			}
			return OutcomeExisting, nil
		}

		// No row means at least one endpoint did not match.
		res, err = tx.Run(ctx, endpointsQuery, params)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		hasSource, err := recordBool(record, "has_source")
		if err != nil {
			return nil, err
		}
		hasTarget, err := recordBool(record, "has_target")
		if err != nil {
			return nil, err
		}
		return outcomeFor(hasSource, hasTarget), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge relationship %s-[%s]->%s: %w", rel.Source, rel.Type, rel.Target, err)
	}
	return result.(MergeOutcome), nil
}

// GetEntity retrieves an entity by canonical name.
func (n *Neo4jDriver) GetEntity(ctx context.Context, name string) (*types.Entity, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, getEntityQuery, map[string]any{"name": name})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %q: %w", name, err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	return entityFromRecord(records[0])
}

func entityFromRecord(record *db.Record) (*types.Entity, error) {
	name, err := recordString(record, "name")
	if err != nil {
		return nil, err
	}
	entity := &types.Entity{Name: name}
	if v, _ := record.Get("label"); v != nil {
		if entity.Label, err = MustString(v, "label"); err != nil {
			return nil, err
		}
	}
	if entity.Aliases, err = recordStrings(record, "aliases"); err != nil {
		return nil, err
	}
	if entity.SourceRefs, err = recordStrings(record, "source_files"); err != nil {
		return nil, err
	}
	return entity, nil
}

// GetRelationships returns the edges touching entity, or all edges when entity is empty.
func (n *Neo4jDriver) GetRelationships(ctx context.Context, entity string) ([]types.Relationship, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, getRelationshipsQuery, map[string]any{"name": entity})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get relationships: %w", err)
	}

	records := result.([]*db.Record)
	rels := make([]types.Relationship, 0, len(records))
	for _, record := range records {
		var rel types.Relationship
		if rel.Source, err = recordString(record, "source"); err != nil {
			return nil, err
		}
		if rel.Target, err = recordString(record, "target"); err != nil {
			return nil, err
		}
		if rel.Type, err = recordString(record, "type"); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, nil
}

// Stats counts entities by label and relationships by type.
func (n *Neo4jDriver) Stats(ctx context.Context) (*GraphStats, error) {
	session := n.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		entityRes, err := tx.Run(ctx, entityStatsQuery, nil)
		if err != nil {
			return nil, err
		}
		entityRecords, err := entityRes.Collect(ctx)
		if err != nil {
			return nil, err
		}

		relRes, err := tx.Run(ctx, relationshipStatsQuery, nil)
		if err != nil {
			return nil, err
		}
		relRecords, err := relRes.Collect(ctx)
		if err != nil {
			return nil, err
		}

		return [2][]*db.Record{entityRecords, relRecords}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect graph stats: %w", err)
	}

	data := result.([2][]*db.Record)
	stats := newGraphStats()
	for _, record := range data[0] {
		label, err := recordString(record, "label")
		if err != nil {
			return nil, err
		}
		count, err := recordInt64(record, "count")
		if err != nil {
			return nil, err
		}
		stats.EntitiesByLabel[label] += count
		stats.EntityCount += count
	}
	for _, record := range data[1] {
		relType, err := recordString(record, "type")
		if err != nil {
			return nil, err
		}
		count, err := recordInt64(record, "count")
		if err != nil {
			return nil, err
		}
		stats.RelationshipsByType[relType] += count
		stats.RelationshipCount += count
	}
	return stats, nil
}

// Provider returns GraphProviderNeo4j.
func (n *Neo4jDriver) Provider() GraphProvider {
	return GraphProviderNeo4j
}

// Close closes the Neo4j driver.
func (n *Neo4jDriver) Close() error {
	return n.client.Close(context.Background())
}

// VerifyConnectivity checks if the driver can connect to the database.
func (n *Neo4jDriver) VerifyConnectivity(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

// nonNil keeps list properties from being written as null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
