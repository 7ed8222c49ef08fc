// Package extraction turns one chunk of lore text into a validated candidate
// set of entities and relationships.
//
// An Extractor renders the instruction prompt, asks a structured-output model
// client for JSON, parses the answer strictly and then applies Rules: relation
// types are normalized to UPPER_SNAKE_CASE, non-canonical or passive types are
// rewritten to their active form (swapping endpoints where the direction
// flips) and anything that still does not fit is reported in
// CandidateExtraction.Rejected.
//
// Failures surface as *ExtractionError with kind MalformedOutput or
// ModelUnavailable. Both are recoverable: the caller skips the chunk.
package extraction
