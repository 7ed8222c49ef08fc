// Package resolver maps raw entity names to canonical names.
//
// Every canonical name is stored with the embedding of the name. A raw name
// resolves to the nearest stored name when their cosine similarity reaches the
// configured threshold, and is registered as a new canonical name otherwise.
// Lower thresholds merge more aggressively and risk folding distinct entities
// together. Higher thresholds keep spelling variants apart.
package resolver
