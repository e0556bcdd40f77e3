// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/breaker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/search"
)

// synthesizerBreaker names the breaker guarding the synthesis provider.
const synthesizerBreaker = "synthesizer"

// DefaultMaxPassages is how many retrieved chunks are handed to the
// synthesizer.
const DefaultMaxPassages = 6

// Citation points a statement in the answer back at its evidence.
type Citation struct {
	DocumentId core.ID   `json:"document_id"`
	Title      string    `json:"title"`
	Path       string    `json:"path"`
	Span       core.Span `json:"span"`
	Score      float64   `json:"score"`
}

// Response is the outcome of Ask. Abstention is a successful response:
// Abstained is set, Needs explains what would help, and Answer is empty.
type Response struct {
	Answer     string     `json:"answer,omitempty"`
	Citations  []Citation `json:"citations,omitempty"`
	Confidence float64    `json:"confidence"`
	Abstained  bool       `json:"abstained"`
	Needs      []string   `json:"needs,omitempty"`
}

// Answerer answers questions over the indexed corpus: retrieve, gate on
// the abstain policy, then synthesize a grounded answer with citations.
type Answerer struct {
	engine      *search.Engine
	synthesizer ai.Synthesizer
	breakers    *breaker.Group
	maxPassages int
	logger      *slog.Logger
}

// Option configures an Answerer.
type Option func(*Answerer) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Answerer) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// WithMaxPassages caps how many chunks are handed to the synthesizer.
func WithMaxPassages(n int) Option {
	return func(a *Answerer) error {
		if n > 0 {
			a.maxPassages = n
		}
		return nil
	}
}

// WithBreakerConfig tunes the circuit breaker guarding the synthesizer.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(a *Answerer) error {
		a.breakers = breaker.NewGroup(cfg)
		return nil
	}
}

// NewAnswerer creates an answerer over the given retrieval engine and
// synthesizer.
func NewAnswerer(engine *search.Engine, synthesizer ai.Synthesizer, opts ...Option) (*Answerer, error) {
	if engine == nil {
		return nil, ErrEngineRequired
	}
	if synthesizer == nil {
		return nil, ErrSynthesizerRequired
	}

	a := &Answerer{
		engine:      engine,
		synthesizer: synthesizer,
		breakers:    breaker.NewGroup(breaker.DefaultConfig()),
		maxPassages: DefaultMaxPassages,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// Ask retrieves evidence for the question and synthesizes an answer.
// When retrieval abstains, Ask returns the abstention without calling
// the synthesizer at all.
func (a *Answerer) Ask(ctx context.Context, req search.Request) (*Response, error) {
	result, err := a.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	if result.Abstained {
		a.logger.Debug("abstaining from answer", "query", req.Query)
		return &Response{Abstained: true, Needs: result.Needs}, nil
	}

	hits := result.Hits
	if len(hits) > a.maxPassages {
		hits = hits[:a.maxPassages]
	}

	passages := make([]ai.Passage, len(hits))
	citations := make([]Citation, len(hits))
	for i, hit := range hits {
		passages[i] = ai.Passage{
			Title: hit.Document.Title,
			Path:  hit.Document.Path,
			Text:  hit.Chunk.Text,
		}
		citations[i] = Citation{
			DocumentId: hit.Document.Id,
			Title:      hit.Document.Title,
			Path:       hit.Document.Path,
			Span:       hit.Chunk.Span,
			Score:      hit.Score,
		}
	}

	var text string
	err = a.breakers.Do(synthesizerBreaker, func() error {
		var synthErr error
		text, synthErr = a.synthesizer.Synthesize(ctx, req.Query, passages)
		return synthErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: synthesizing answer: %w", core.ErrProvider, err)
	}

	return &Response{
		Answer:     text,
		Citations:  citations,
		Confidence: hits[0].Score,
	}, nil
}
