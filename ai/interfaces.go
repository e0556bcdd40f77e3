package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity
// search. Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in a batch.
	// The returned slice is in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Synthesizer composes a grounded natural-language answer from retrieved
// passages. Implementations must be thread-safe for concurrent use.
type Synthesizer interface {
	// Synthesize answers the question using only the supplied passages.
	// The passages are numbered in the prompt so the model can refer to
	// them; the answer must not draw on knowledge outside of them.
	Synthesize(ctx context.Context, question string, passages []Passage) (string, error)
}

// Passage is one retrieved excerpt handed to the synthesizer.
type Passage struct {
	// Title of the document the excerpt came from.
	Title string

	// Path locates the document within its source.
	Path string

	// Text is the excerpt itself.
	Text string
}

// AIProvider aggregates AI services for convenient initialization and
// lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Synthesizer returns the answer synthesis service.
	Synthesizer() Synthesizer

	// Close releases resources held by the provider and its services.
	Close() error
}
