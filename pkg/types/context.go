package types

import "context"

type contextKey string

const (
	// ContextKeyDocumentID tags work with the corpus document it serves.
	ContextKeyDocumentID contextKey = "document_id"
	// ContextKeyChunkIndex tags work with the chunk index it serves.
	ContextKeyChunkIndex contextKey = "chunk_index"
	// ContextKeyRunID tags work with the extraction run it belongs to.
	ContextKeyRunID contextKey = "run_id"
)

// WithChunk returns a context tagged with a document ID and chunk index.
func WithChunk(ctx context.Context, documentID string, chunkIndex int) context.Context {
	ctx = context.WithValue(ctx, ContextKeyDocumentID, documentID)
	return context.WithValue(ctx, ContextKeyChunkIndex, chunkIndex)
}

// ChunkFromContext returns the document ID and chunk index tagged on ctx.
func ChunkFromContext(ctx context.Context) (documentID string, chunkIndex int, ok bool) {
	documentID, ok = ctx.Value(ContextKeyDocumentID).(string)
	if !ok {
		return "", 0, false
	}
	chunkIndex, _ = ctx.Value(ContextKeyChunkIndex).(int)
	return documentID, chunkIndex, true
}
