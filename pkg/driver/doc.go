// Package driver provides the graph stores that hold the lore graph.
//
// The GraphDriver interface is the only write path into the graph. It exposes
// two idempotent merge primitives: UpsertEntity folds an entity into the node
// with the same canonical name, and MergeRelationship creates an edge only if
// no edge with the same (source, target, type) triple exists.
//
// # Supported Stores
//
//   - Neo4j: the persistent store; every merge is a single server-side MERGE
//     statement backed by a uniqueness constraint on Entity.name.
//   - Memory: an in-process graph with the same semantics, for tests and dry runs.
//
// # Usage
//
//	d, err := driver.NewNeo4jDriver(uri, username, password, database)
//	if err != nil {
//		return err
//	}
//	defer d.Close()
//	if err := d.EnsureSchema(ctx); err != nil {
//		return err
//	}
//
// # Thread Safety
//
// All driver implementations are safe for concurrent use from multiple goroutines.
//
// # Type Helpers
//
// type_helpers.go converts values read from Neo4j records without panicking on
// failed type assertions.
package driver
