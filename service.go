// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package recall

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/ai/openai"
	"github.com/poiesic/recall/answer"
	"github.com/poiesic/recall/breaker"
	"github.com/poiesic/recall/cache"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/ingestion"
	"github.com/poiesic/recall/reindex"
	"github.com/poiesic/recall/search"
	"github.com/poiesic/recall/storage"
	"github.com/poiesic/recall/storage/badger"
	"github.com/poiesic/recall/storage/bleve"
)

// Service wires storage, ingestion, retrieval, and synthesis into one
// handle. It owns every component's lifecycle: construct with NewService,
// release with Close.
type Service struct {
	backend  *badger.Backend
	docs     storage.DocumentRepository
	jobs     storage.JobRepository
	dlq      storage.DeadLetterRepository
	lexical  storage.LexicalIndex
	provider ai.AIProvider
	pipeline *ingestion.Pipeline
	engine   *search.Engine
	answerer *answer.Answerer

	searchCache *cache.Cache[*search.Result]
	answerCache *cache.Cache[*answer.Response]
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	cfg    *config.AppConfig
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	provider ai.AIProvider
	logger   *slog.Logger
	monitor  ingestion.Monitor
}

// WithAIProvider overrides the AI provider built from configuration.
// Tests use this to inject mocks.
func WithAIProvider(provider ai.AIProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger for all components.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithIngestionMonitor attaches a monitor to the ingestion pipeline.
func WithIngestionMonitor(monitor ingestion.Monitor) ServiceOption {
	return func(o *serviceOptions) {
		o.monitor = monitor
	}
}

// NewService constructs the full stack from configuration. A nil cfg uses
// defaults, which keep everything in memory.
func NewService(cfg *config.AppConfig, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		var err error
		if cfg, err = config.Load(""); err != nil {
			return nil, err
		}
	}

	options := &serviceOptions{
		logger:  slog.Default(),
		monitor: &ingestion.NoopMonitor{},
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	backend, err := badger.OpenBackend(cfg.Storage.DataDir, cfg.Storage.DataDir == "")
	if err != nil {
		return nil, err
	}

	docs, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		docs.Close()
		backend.Close()
		return nil, err
	}

	dlq, err := badger.NewDeadLetterRepository(backend)
	if err != nil {
		jobs.Close()
		docs.Close()
		backend.Close()
		return nil, err
	}

	lexical, err := bleve.OpenIndex(cfg.Storage.IndexDir, logger)
	if err != nil {
		dlq.Close()
		jobs.Close()
		docs.Close()
		backend.Close()
		return nil, err
	}

	closeStorage := func() {
		lexical.Close()
		dlq.Close()
		jobs.Close()
		docs.Close()
		backend.Close()
	}

	provider := options.provider
	if provider == nil {
		aiCfg := ai.NewConfig(
			ai.WithEmbeddingHost(cfg.AI.EmbeddingHost),
			ai.WithSynthesisHost(cfg.AI.SynthesisHost),
			ai.WithEmbeddingModel(cfg.AI.EmbeddingModel),
			ai.WithSynthesisModel(cfg.AI.SynthesisModel),
			ai.WithToken(cfg.AI.Token()),
		)
		if provider, err = openai.NewProvider(aiCfg); err != nil {
			closeStorage()
			return nil, err
		}
	}

	breakerCfg := breaker.Config{
		FailureThreshold: cfg.Ingestion.BreakerThreshold,
		Cooldown:         time.Duration(cfg.Ingestion.BreakerCooldownS) * time.Second,
		Logger:           logger,
	}

	pipeline, err := ingestion.NewPipeline(docs, jobs, dlq, lexical, provider.Embedder(),
		ingestion.WithPoolSize(cfg.Ingestion.Workers),
		ingestion.WithChunker(ingestion.NewChunker(cfg.Ingestion.ChunkSize, cfg.Ingestion.ChunkOverlap)),
		ingestion.WithPollInterval(time.Duration(cfg.Ingestion.PollIntervalMs)*time.Millisecond),
		ingestion.WithBreakerConfig(breakerCfg),
		ingestion.WithLogger(logger),
		ingestion.WithMonitor(options.monitor),
	)
	if err != nil {
		provider.Close()
		closeStorage()
		return nil, err
	}

	engine, err := search.NewEngine(docs, lexical, provider.Embedder(),
		search.WithBranchTimeout(time.Duration(cfg.Search.BranchTimeoutMs)*time.Millisecond),
		search.WithCandidateLimit(cfg.Search.CandidateLimit),
		search.WithAbstainPolicy(search.AbstainPolicy{
			MinKept:  cfg.Search.MinKept,
			MinScore: cfg.Search.MinScore,
		}),
		search.WithLogger(logger),
	)
	if err != nil {
		provider.Close()
		closeStorage()
		return nil, err
	}

	answerer, err := answer.NewAnswerer(engine, provider.Synthesizer(),
		answer.WithBreakerConfig(breakerCfg),
		answer.WithLogger(logger),
	)
	if err != nil {
		provider.Close()
		closeStorage()
		return nil, err
	}

	cacheTTL := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	searchCache, err := cache.New[*search.Result](int64(cfg.Cache.MaxEntries), cacheTTL)
	if err != nil {
		provider.Close()
		closeStorage()
		return nil, err
	}
	answerCache, err := cache.New[*answer.Response](int64(cfg.Cache.MaxEntries), cacheTTL)
	if err != nil {
		searchCache.Close()
		provider.Close()
		closeStorage()
		return nil, err
	}

	svc := &Service{
		backend:     backend,
		docs:        docs,
		jobs:        jobs,
		dlq:         dlq,
		lexical:     lexical,
		provider:    provider,
		pipeline:    pipeline,
		engine:      engine,
		answerer:    answerer,
		searchCache: searchCache,
		answerCache: answerCache,
		cfg:         cfg,
		logger:      logger,
	}
	pipeline.Start()
	return svc, nil
}

// SubmitEvent accepts a workspace content event for asynchronous
// ingestion. Acceptance means the event is durably queued, not applied.
func (s *Service) SubmitEvent(ctx context.Context, event *core.Event) (*core.Job, error) {
	return s.pipeline.Submit(ctx, event)
}

// ProcessNext synchronously runs one eligible queued job, for callers
// that want to drain the queue instead of relying on background workers.
func (s *Service) ProcessNext(ctx context.Context) (bool, error) {
	return s.pipeline.ProcessNext(ctx)
}

// Search runs ACL-aware hybrid retrieval. Identical requests from the
// same principal scope are served from cache within the configured TTL;
// principals never share entries.
func (s *Service) Search(ctx context.Context, req search.Request) (*search.Result, error) {
	if cached, ok := s.searchCache.Get(req.Callers, req.Query, req.Filters); ok {
		s.cacheHits.Add(1)
		return cached, nil
	}
	s.cacheMisses.Add(1)

	result, err := s.engine.Search(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Degraded {
		s.searchCache.Set(req.Callers, req.Query, req.Filters, result)
	}
	return result, nil
}

// Ask answers a question from retrieved passages, with citations.
// Responses are cached per principal scope like Search results.
func (s *Service) Ask(ctx context.Context, req search.Request) (*answer.Response, error) {
	if cached, ok := s.answerCache.Get(req.Callers, req.Query, req.Filters); ok {
		s.cacheHits.Add(1)
		return cached, nil
	}
	s.cacheMisses.Add(1)

	resp, err := s.answerer.Ask(ctx, req)
	if err != nil {
		return nil, err
	}
	s.answerCache.Set(req.Callers, req.Query, req.Filters, resp)
	return resp, nil
}

// DeadLetters lists parked ingestion jobs, most recently parked first.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]*core.DeadLetter, error) {
	return s.pipeline.DeadLetters(ctx, limit)
}

// Requeue revives a parked job for another full round of attempts.
func (s *Service) Requeue(ctx context.Context, jobID string) (*core.Job, error) {
	return s.pipeline.Requeue(ctx, jobID)
}

// QueueDepth reports the number of jobs waiting to be processed.
func (s *Service) QueueDepth(ctx context.Context) (int, error) {
	return s.jobs.QueueDepth(ctx)
}

// CacheStats reports response cache hits and misses across Search and Ask.
func (s *Service) CacheStats() (hits, misses int64) {
	return s.cacheHits.Load(), s.cacheMisses.Load()
}

// Reindex re-embeds every live document with the current embedding model,
// reporting progress to the given writer.
func (s *Service) Reindex(ctx context.Context, progress io.Writer, cfg *reindex.Config) error {
	return reindex.NewReindexer(s.docs, s.provider.Embedder(), cfg, progress).Run(ctx)
}

// DocumentRepository exposes the underlying document store.
func (s *Service) DocumentRepository() storage.DocumentRepository {
	return s.docs
}

// Close stops the pipeline and releases every component.
func (s *Service) Close() error {
	s.pipeline.Stop()

	s.answerCache.Close()
	s.searchCache.Close()

	if err := s.provider.Close(); err != nil {
		s.logger.Error("error closing AI provider", "err", err)
	}

	if err := s.lexical.Close(); err != nil {
		s.logger.Error("error closing lexical index", "err", err)
		return err
	}
	if err := s.dlq.Close(); err != nil {
		s.logger.Error("error closing dead letter repository", "err", err)
		return err
	}
	if err := s.jobs.Close(); err != nil {
		s.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := s.docs.Close(); err != nil {
		s.logger.Error("error closing document repository", "err", err)
		return err
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}
