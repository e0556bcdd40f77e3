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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultLimit caps results when the request doesn't say.
	DefaultLimit = 10

	// DefaultCandidateLimit is how many candidates each branch fetches
	// before fusion.
	DefaultCandidateLimit = 50

	// DefaultBranchTimeout bounds each retrieval branch independently.
	DefaultBranchTimeout = 2 * time.Second

	branchLexical = "lexical"
	branchVector  = "vector"
)

// Engine runs hybrid retrieval: a lexical and a vector branch fan out
// concurrently, their scores are normalized and fused per the planner's
// weights, ACL filtering is applied, and thin evidence abstains.
type Engine struct {
	docs     storage.DocumentRepository
	lexical  storage.LexicalIndex
	embedder ai.Embedder

	planner        *Planner
	policy         AbstainPolicy
	branchTimeout  time.Duration
	candidateLimit int
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithPlanner sets the query planner.
func WithPlanner(planner *Planner) Option {
	return func(e *Engine) error {
		if planner != nil {
			e.planner = planner
		}
		return nil
	}
}

// WithAbstainPolicy sets the abstain policy.
func WithAbstainPolicy(policy AbstainPolicy) Option {
	return func(e *Engine) error {
		e.policy = policy
		return nil
	}
}

// WithBranchTimeout bounds each retrieval branch.
func WithBranchTimeout(timeout time.Duration) Option {
	return func(e *Engine) error {
		if timeout > 0 {
			e.branchTimeout = timeout
		}
		return nil
	}
}

// WithCandidateLimit sets how many candidates each branch fetches.
func WithCandidateLimit(limit int) Option {
	return func(e *Engine) error {
		if limit > 0 {
			e.candidateLimit = limit
		}
		return nil
	}
}

// NewEngine creates a retrieval engine.
func NewEngine(
	docs storage.DocumentRepository,
	lexical storage.LexicalIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Engine, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if lexical == nil {
		return nil, ErrLexicalIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		docs:           docs,
		lexical:        lexical,
		embedder:       embedder,
		planner:        NewPlanner(DefaultPlannerConfig()),
		policy:         DefaultAbstainPolicy(),
		branchTimeout:  DefaultBranchTimeout,
		candidateLimit: DefaultCandidateLimit,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Search runs hybrid retrieval for the request.
func (e *Engine) Search(ctx context.Context, req Request) (*Result, error) {
	return e.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs hybrid retrieval with stage callbacks.
func (e *Engine) SearchWithMonitor(ctx context.Context, req Request, monitor Monitor) (*Result, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	monitor.Start(query)
	plan := e.planner.Plan(query)
	monitor.PlanChosen(plan)

	// Fan out both branches concurrently, each under its own timeout.
	// A branch that fails or times out contributes nothing; the query
	// only fails when both branches fail.
	var (
		lexHits, vecHits []core.ScoredChunk
		lexErr, vecErr   error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bctx, cancel := context.WithTimeout(gctx, e.branchTimeout)
		defer cancel()
		lexHits, lexErr = e.lexical.Search(bctx, query, e.candidateLimit)
		return nil
	})
	g.Go(func() error {
		bctx, cancel := context.WithTimeout(gctx, e.branchTimeout)
		defer cancel()
		var vector []float32
		vector, vecErr = e.embedder.EmbedText(bctx, query)
		if vecErr != nil {
			return nil
		}
		vecHits, vecErr = e.docs.VectorSearch(bctx, vector, e.candidateLimit)
		return nil
	})
	_ = g.Wait()

	monitor.BranchCompleted(branchLexical, len(lexHits), lexErr)
	monitor.BranchCompleted(branchVector, len(vecHits), vecErr)
	if lexErr != nil {
		e.logger.Warn("lexical branch degraded", "err", lexErr)
		lexHits = nil
	}
	if vecErr != nil {
		e.logger.Warn("vector branch degraded", "err", vecErr)
		vecHits = nil
	}
	if lexErr != nil && vecErr != nil {
		return nil, fmt.Errorf("%w: lexical: %v; vector: %v", ErrAllBranchesFailed, lexErr, vecErr)
	}

	documents, err := e.loadDocuments(ctx, lexHits, vecHits)
	if err != nil {
		return nil, err
	}

	// Request filters apply to the raw candidate set, before
	// normalization, so filtered-out candidates can't skew the scale.
	lexHits = filterCandidates(lexHits, documents, req.Filters)
	vecHits = filterCandidates(vecHits, documents, req.Filters)

	hits := fuse(lexHits, vecHits, plan, documents)
	monitor.Fused(len(hits))

	hits, dropped := filterAuthorized(hits, req.Callers)
	monitor.Filtered(len(hits), dropped)

	result := &Result{
		Plan:     plan,
		Degraded: lexErr != nil || vecErr != nil,
	}
	if abstain, needs := e.policy.Evaluate(hits); abstain {
		result.Abstained = true
		result.Needs = needs
		monitor.Abstained(needs)
		e.logger.Debug("abstaining", "query", query, "kept", len(hits))
		return result, nil
	}

	if len(hits) > limit {
		hits = hits[:limit]
	}
	if err := e.attachChunks(ctx, hits); err != nil {
		return nil, err
	}
	result.Hits = hits

	monitor.Finish(hits)
	e.logger.Debug("search finished",
		"query", query, "mode", plan.Mode, "hits", len(hits), "degraded", result.Degraded)
	return result, nil
}

// loadDocuments fetches the documents behind every candidate chunk.
func (e *Engine) loadDocuments(ctx context.Context, branches ...[]core.ScoredChunk) (map[core.ID]*core.Document, error) {
	seen := make(map[core.ID]bool)
	var ids []core.ID
	for _, branch := range branches {
		for _, hit := range branch {
			if !seen[hit.DocumentId] {
				seen[hit.DocumentId] = true
				ids = append(ids, hit.DocumentId)
			}
		}
	}

	docs, err := e.docs.GetDocuments(ctx, ids...)
	if err != nil {
		return nil, err
	}
	byID := make(map[core.ID]*core.Document, len(docs))
	for _, doc := range docs {
		byID[doc.Id] = doc
	}
	return byID, nil
}

// attachChunks loads chunk bodies for the final hits.
func (e *Engine) attachChunks(ctx context.Context, hits []Hit) error {
	ids := make([]core.ID, len(hits))
	byID := make(map[core.ID]int, len(hits))
	for i, hit := range hits {
		ids[i] = hit.Chunk.Id
		byID[hit.Chunk.Id] = i
	}
	chunks, err := e.docs.GetChunksByID(ctx, ids...)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if i, ok := byID[chunk.Id]; ok {
			hits[i].Chunk = chunk
		}
	}
	return nil
}

// filterCandidates drops candidates whose document is missing, deleted,
// or excluded by the request filters.
func filterCandidates(hits []core.ScoredChunk, documents map[core.ID]*core.Document, filters core.Filters) []core.ScoredChunk {
	kept := hits[:0]
	for _, hit := range hits {
		doc := documents[hit.DocumentId]
		if doc == nil || doc.Deleted || !filters.Match(doc) {
			continue
		}
		kept = append(kept, hit)
	}
	return kept
}

// normalize min-max scales branch scores to [0,1]. When all scores are
// equal there is no scale to recover, so every candidate gets 1.0.
func normalize(hits []core.ScoredChunk) map[core.ID]float64 {
	scores := make(map[core.ID]float64, len(hits))
	if len(hits) == 0 {
		return scores
	}
	min, max := hits[0].Score, hits[0].Score
	for _, hit := range hits[1:] {
		if hit.Score < min {
			min = hit.Score
		}
		if hit.Score > max {
			max = hit.Score
		}
	}
	for _, hit := range hits {
		if max == min {
			scores[hit.ChunkId] = 1.0
		} else {
			scores[hit.ChunkId] = (hit.Score - min) / (max - min)
		}
	}
	return scores
}

// fuse merges the branches by chunk identity with the plan's weights
// and sorts best first, breaking ties by document recency then chunk
// identity.
func fuse(lexHits, vecHits []core.ScoredChunk, plan Plan, documents map[core.ID]*core.Document) []Hit {
	lexScores := normalize(lexHits)
	vecScores := normalize(vecHits)

	docOf := make(map[core.ID]core.ID, len(lexHits)+len(vecHits))
	for _, hit := range lexHits {
		docOf[hit.ChunkId] = hit.DocumentId
	}
	for _, hit := range vecHits {
		docOf[hit.ChunkId] = hit.DocumentId
	}

	hits := make([]Hit, 0, len(docOf))
	for chunkID, docID := range docOf {
		lex := lexScores[chunkID]
		vec := vecScores[chunkID]
		hits = append(hits, Hit{
			Chunk:    &core.Chunk{Id: chunkID, DocumentId: docID},
			Document: documents[docID],
			Score:    plan.Lexical*lex + plan.Vector*vec,
			Lexical:  lex,
			Vector:   vec,
		})
	}

	slices.SortFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		at, bt := a.Document.EventTime, b.Document.EventTime
		if !at.Equal(bt) {
			if at.After(bt) {
				return -1
			}
			return 1
		}
		if a.Chunk.Id != b.Chunk.Id {
			if a.Chunk.Id < b.Chunk.Id {
				return -1
			}
			return 1
		}
		return 0
	})
	return hits
}
