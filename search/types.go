package search

import "github.com/poiesic/recall/core"

// Request is one retrieval query on behalf of a caller.
type Request struct {
	// Query is the raw user query.
	Query string

	// Callers are the identities of the requesting principal across
	// providers. An empty set only matches public documents.
	Callers []core.Identity

	// Filters optionally restricts the candidate set.
	Filters core.Filters

	// Limit caps the number of returned hits. Zero means DefaultLimit.
	Limit int
}

// Hit is one retrieved chunk with its fused score and the scores of the
// branches that contributed it.
type Hit struct {
	Chunk    *core.Chunk
	Document *core.Document

	// Score is the fused, weighted score in [0,1].
	Score float64

	// Lexical and Vector are the normalized per-branch scores; zero
	// when the branch did not return this chunk.
	Lexical float64
	Vector  float64
}

// Result is the outcome of a retrieval query. Abstention is a normal
// outcome, not an error: the engine answers "I don't have enough" when
// the evidence is thin rather than returning noise.
type Result struct {
	Hits []Hit
	Plan Plan

	// Abstained is set when the kept evidence failed the confidence
	// policy; Hits is empty in that case.
	Abstained bool

	// Needs suggests what would improve the answer when abstaining.
	Needs []string

	// Degraded is set when a retrieval branch timed out or failed and
	// the result was served from the surviving branch alone.
	Degraded bool
}
