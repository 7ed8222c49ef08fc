// Package lorekeeper builds a lore knowledge graph from a corpus of plain-text
// documents.
//
// Each document is cut into bounded chunks. A language model extracts candidate
// entities and relationships from every chunk, an embedding-based resolver maps
// entity names onto canonical names, and the merge engine writes the result to
// a graph store with idempotent upserts. Re-running the same corpus does not
// duplicate anything.
//
// # Basic Usage
//
// Build a pipeline from configuration and run it over a directory:
//
//	cfg, err := config.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	pipeline, err := lorekeeper.New(ctx, cfg, logger.NewDefaultLogger(slog.LevelInfo))
//	if err != nil {
//		log.Fatal(err) // *lorekeeper.ConnectionError when a store is unreachable
//	}
//	defer pipeline.Close()
//
//	report, err := pipeline.Run(ctx, corpus.NewDirSource("lore/", "*.txt"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(report)
//
// # Failure Handling
//
// A chunk whose extraction, resolution or merge fails is skipped and recorded in
// RunReport.Failures. Only connection failures at startup abort a run. When a
// ledger path is configured, completed chunks are recorded by content hash so a
// later run can resume or re-run just the failed chunks.
//
// # Components
//
//   - pkg/chunker: fixed-width chunking with optional sentence boundaries
//   - pkg/extraction: prompt, structured output parsing and relationship rules
//   - pkg/resolver: vector similarity entity resolution over badger, sqlite-vec or memory
//   - pkg/merge and pkg/driver: idempotent graph writes to Neo4j or memory
//   - pkg/checkpoint: the chunk ledger
package lorekeeper
