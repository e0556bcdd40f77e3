// Package reindex re-embeds stored chunks in bulk. It is used when the
// embedding model changes and every stored vector must be regenerated to
// stay comparable with query-time embeddings.
//
// The reindexer walks all live documents, re-embeds each document's chunks
// in batches with retry, and swaps the refreshed chunk set in atomically.
// Chunk identities are derived from document and sequence, so the lexical
// index stays valid across a reindex.
package reindex
