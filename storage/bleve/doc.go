// Package bleve implements the lexical half of hybrid retrieval on a
// bleve full-text index. Chunks are indexed under their numeric chunk
// id with the owning document id carried as a stored field, so hits
// can be fused with vector candidates by chunk identity.
package bleve
