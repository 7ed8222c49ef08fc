package driver

import (
	"fmt"

	"github.com/soundprediction/lorekeeper/pkg/types"
)

// EntityLabel is the node label every lore entity carries.
const EntityLabel = "Entity"

// GetSchemaQueries returns the constraint and index creation queries.
// The uniqueness constraint is what makes MERGE on Entity.name atomic.
func GetSchemaQueries() []string {
	return []string{
		"CREATE CONSTRAINT entity_name_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.name IS UNIQUE",
		"CREATE INDEX entity_label IF NOT EXISTS FOR (e:Entity) ON (e.label)",
	}
}

// upsertEntityQuery folds an entity into the node with the same name.
// created is true when this call's merge token was written by ON CREATE.
const upsertEntityQuery = `
MERGE (e:Entity {name: $name})
ON CREATE SET
	e.aliases = $aliases,
	e.label = CASE $label WHEN '' THEN null ELSE $label END,
	e.source_files = $sources,
	e.merge_token = $token,
	e.created_at = datetime(),
	e.updated_at = datetime()
ON MATCH SET
	e.aliases = coalesce(e.aliases, []) + [a IN $aliases WHERE NOT a IN coalesce(e.aliases, [])],
	e.label = CASE WHEN coalesce(e.label, '') = '' AND $label <> '' THEN $label ELSE e.label END,
	e.source_files = coalesce(e.source_files, []) + [s IN $sources WHERE NOT s IN coalesce(e.source_files, [])],
	e.updated_at = datetime()
RETURN e.merge_token = $token AS created
`

// endpointsQuery reports which endpoints of an edge exist.
const endpointsQuery = `
OPTIONAL MATCH (s:Entity {name: $source})
OPTIONAL MATCH (t:Entity {name: $target})
RETURN s IS NOT NULL AS has_source, t IS NOT NULL AS has_target
`

const getEntityQuery = `
MATCH (e:Entity {name: $name})
RETURN e.name AS name, e.label AS label, e.aliases AS aliases, e.source_files AS source_files
`

const getRelationshipsQuery = `
MATCH (s:Entity)-[r]->(t:Entity)
WHERE $name = '' OR s.name = $name OR t.name = $name
RETURN s.name AS source, t.name AS target, type(r) AS type
ORDER BY source, type, target
`

const entityStatsQuery = `
MATCH (e:Entity)
RETURN coalesce(e.label, '') AS label, count(e) AS count
`

const relationshipStatsQuery = `
MATCH (:Entity)-[r]->(:Entity)
RETURN type(r) AS type, count(r) AS count
`

// BuildMergeRelationshipQuery returns the MERGE statement for an edge type.
// Cypher cannot parameterize relationship types, so relType is validated
// against the UPPER_SNAKE_CASE pattern before it is spliced in.
// The statement returns no rows when an endpoint is missing.
func BuildMergeRelationshipQuery(relType string) (string, error) {
	if !types.IsValidRelationType(relType) {
		return "", fmt.Errorf("%w: %q", types.ErrInvalidRelationType, relType)
	}
	return fmt.Sprintf(`
MATCH (s:Entity {name: $source})
MATCH (t:Entity {name: $target})
MERGE (s)-[r:%s]->(t)
ON CREATE SET
	r.merge_token = $token,
	r.source_file = $source_file,
	r.created_at = datetime()
RETURN r.merge_token = $token AS created
`, relType), nil
}
