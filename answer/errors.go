package answer

import "errors"

var (
	// ErrEngineRequired is returned when a retrieval engine is not provided.
	ErrEngineRequired = errors.New("retrieval engine required")

	// ErrSynthesizerRequired is returned when a synthesizer is not provided.
	ErrSynthesizerRequired = errors.New("synthesizer required")
)
