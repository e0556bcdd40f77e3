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

package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/breaker"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// embedderBreaker names the breaker guarding the embedding provider.
const embedderBreaker = "embedder"

// drainTimeout bounds how long Stop waits for in-flight jobs.
const drainTimeout = 30 * time.Second

// Pipeline turns connector events into searchable documents. Events are
// validated, durably queued, then processed by a worker pool: normalize,
// chunk, embed, and atomically swap the document's chunk set in both
// the vector store and the lexical index. Failures retry with backoff;
// jobs that exhaust their attempts are parked in the dead letter queue.
type Pipeline struct {
	docs    storage.DocumentRepository
	jobs    storage.JobRepository
	dlq     storage.DeadLetterRepository
	lexical storage.LexicalIndex

	embedder ai.Embedder
	breakers *breaker.Group
	chunker  *Chunker
	pool     *ants.Pool
	monitor  Monitor
	logger   *slog.Logger

	docLocks     *keyedMutex
	pollInterval time.Duration
	now          func() time.Time

	mu      sync.Mutex
	stopped bool
	stop    chan struct{}
	done    chan struct{}
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithMonitor sets the pipeline monitor. Default is NoopMonitor.
func WithMonitor(monitor Monitor) Option {
	return func(p *Pipeline) error {
		if monitor == nil {
			monitor = NoopMonitor{}
		}
		p.monitor = monitor
		return nil
	}
}

// WithChunker sets the content chunker.
func WithChunker(chunker *Chunker) Option {
	return func(p *Pipeline) error {
		if chunker != nil {
			p.chunker = chunker
		}
		return nil
	}
}

// WithBreakerConfig tunes the circuit breakers guarding providers.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(p *Pipeline) error {
		p.breakers = breaker.NewGroup(cfg)
		return nil
	}
}

// WithPollInterval sets how often the dispatcher checks for eligible
// jobs when the queue has gone quiet. Default is one second.
func WithPollInterval(interval time.Duration) Option {
	return func(p *Pipeline) error {
		if interval > 0 {
			p.pollInterval = interval
		}
		return nil
	}
}

// withClock overrides the pipeline's time source, for tests.
func withClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		p.now = now
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	docs storage.DocumentRepository,
	jobs storage.JobRepository,
	dlq storage.DeadLetterRepository,
	lexical storage.LexicalIndex,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if jobs == nil {
		return nil, ErrJobRepositoryRequired
	}
	if dlq == nil {
		return nil, ErrDeadLetterRepositoryRequired
	}
	if lexical == nil {
		return nil, ErrLexicalIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		docs:         docs,
		jobs:         jobs,
		dlq:          dlq,
		lexical:      lexical,
		embedder:     embedder,
		breakers:     breaker.NewGroup(breaker.DefaultConfig()),
		chunker:      NewChunker(DefaultChunkSize, DefaultChunkOverlap),
		pool:         pool,
		monitor:      NoopMonitor{},
		logger:       slog.Default(),
		docLocks:     newKeyedMutex(),
		pollInterval: time.Second,
		now:          time.Now,
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.pool.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Submit validates an event and durably enqueues it for processing.
// Acceptance means the event will eventually be applied (or parked);
// it does not mean the document is searchable yet.
func (p *Pipeline) Submit(ctx context.Context, event *core.Event) (*core.Job, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, ErrPipelineStopped
	}
	p.mu.Unlock()

	doc, err := NormalizeEvent(event)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encoding event payload: %w", err)
	}

	// Eligibility follows the pipeline clock, not the repository's.
	job := &core.Job{
		Key:           doc.Key(),
		Status:        core.JobQueued,
		EventTime:     event.EventTime.UTC(),
		NextAttemptAt: p.now().UTC(),
	}
	job, err = p.jobs.Enqueue(ctx, job, payload)
	if err != nil {
		return nil, err
	}

	p.monitor.EventAccepted(job)
	p.logger.Debug("event accepted", "jobId", job.Id, "key", job.Key.String())
	return job, nil
}

// Start launches the dispatcher, which claims eligible jobs and hands
// them to the worker pool until Stop is called.
func (p *Pipeline) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.dispatch(p.stop, p.done)
}

// Stop halts the dispatcher, waits for in-flight jobs to finish, and
// releases the worker pool. The pipeline cannot be restarted.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	stop, done := p.stop, p.done
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	// ReleaseTimeout waits for in-flight jobs to drain before closing
	// the pool.
	if err := p.pool.ReleaseTimeout(drainTimeout); err != nil && !errors.Is(err, ants.ErrPoolClosed) {
		p.logger.Warn("worker pool released with jobs still in flight", "err", err)
	}
}

func (p *Pipeline) dispatch(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		if depth, err := p.jobs.QueueDepth(context.Background()); err == nil {
			p.monitor.QueueDepth(depth)
		}

		// Drain everything currently eligible before sleeping again.
		for {
			claimed, err := p.ProcessNext(context.Background())
			if err != nil {
				p.logger.Error("dispatch error", "err", err)
				break
			}
			if !claimed {
				break
			}
			select {
			case <-stop:
				return
			default:
			}
		}
	}
}

// ProcessNext claims the next eligible job and processes it on the
// worker pool. It reports whether a job was claimed. Exposed for
// callers that drive the pipeline manually instead of via Start.
func (p *Pipeline) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.jobs.Dequeue(ctx, p.now())
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	err = p.pool.Submit(func() {
		p.processJob(context.Background(), job)
	})
	if err != nil {
		// Pool refused the task; put the job back so it isn't lost.
		job.Status = core.JobQueued
		if updateErr := p.jobs.Update(ctx, job); updateErr != nil {
			p.logger.Error("failed to restore refused job", "jobId", job.Id, "err", updateErr)
		}
		return false, err
	}
	return true, nil
}

// processJob applies one job, serialized per document.
func (p *Pipeline) processJob(ctx context.Context, job *core.Job) {
	docID := job.Key.ID()
	p.docLocks.Lock(docID)
	defer p.docLocks.Unlock(docID)

	err := p.applyJob(ctx, job)
	if err == nil {
		job.Status = core.JobSucceeded
		job.UpdatedAt = p.now().UTC()
		job.LastError = ""
		if updateErr := p.jobs.Update(ctx, job); updateErr != nil {
			p.logger.Error("failed to mark job succeeded", "jobId", job.Id, "err", updateErr)
		}
		p.monitor.JobSucceeded(job, p.now().Sub(job.EventTime))
		p.logger.Debug("job succeeded", "jobId", job.Id, "key", job.Key.String())
		return
	}

	job.Attempts++
	job.LastError = err.Error()
	job.UpdatedAt = p.now().UTC()

	if !core.IsRetryable(err) || job.Attempts >= MaxAttempts {
		p.park(ctx, job, err)
		return
	}

	delay := retryDelay(job.Attempts)
	job.Status = core.JobQueued
	job.NextAttemptAt = p.now().Add(delay)
	if updateErr := p.jobs.Update(ctx, job); updateErr != nil {
		p.logger.Error("failed to schedule retry", "jobId", job.Id, "err", updateErr)
		return
	}
	p.monitor.JobRetried(job, err, delay)
	p.logger.Warn("job failed, scheduling retry",
		"jobId", job.Id, "attempt", job.Attempts, "delay", delay, "err", err)
}

// applyJob runs one attempt: decode the payload, drop stale events, and
// apply the upsert or delete.
func (p *Pipeline) applyJob(ctx context.Context, job *core.Job) error {
	payload, err := p.jobs.Payload(ctx, job.PayloadRef)
	if err != nil {
		return err
	}
	var event core.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("%w: decoding event payload: %v", core.ErrValidation, err)
	}

	doc, err := NormalizeEvent(&event)
	if err != nil {
		return err
	}

	// An event older than the stored document is a superseded update:
	// applying it would resurrect overwritten state, so it completes
	// as a no-op.
	existing, err := p.docs.GetDocument(ctx, doc.Id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if existing != nil && event.EventTime.Before(existing.EventTime) {
		p.logger.Debug("dropping stale event",
			"key", job.Key.String(), "eventTime", event.EventTime, "storedTime", existing.EventTime)
		return nil
	}

	if event.Delete {
		return p.applyDelete(ctx, doc, existing)
	}
	return p.applyUpsert(ctx, doc, event.Content)
}

func (p *Pipeline) applyDelete(ctx context.Context, doc *core.Document, existing *core.Document) error {
	if existing == nil {
		// Deleting a document we never saw is a no-op.
		return nil
	}

	chunks, err := p.docs.GetChunks(ctx, doc.Id)
	if err != nil {
		return err
	}
	// The delete's event time is persisted so a late-arriving upsert
	// that predates it cannot resurrect the document.
	if err := p.docs.SoftDelete(ctx, doc.Id, doc.EventTime); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	ids := make([]core.ID, len(chunks))
	for i, chunk := range chunks {
		ids[i] = chunk.Id
	}
	if err := p.lexical.DeleteChunks(ctx, ids); err != nil {
		return err
	}

	p.logger.Info("document deleted", "documentId", doc.Id, "key", doc.Key().String())
	return nil
}

func (p *Pipeline) applyUpsert(ctx context.Context, doc *core.Document, content string) error {
	chunks := p.chunker.Chunk(NormalizeContent(content))

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err := p.breakers.Do(embedderBreaker, func() error {
		var embedErr error
		vectors, embedErr = p.embedder.EmbedTexts(ctx, texts)
		return embedErr
	})
	if err != nil {
		return fmt.Errorf("%w: embedding %d chunks: %w", core.ErrProvider, len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("%w: embedder returned %d vectors for %d chunks",
			core.ErrProvider, len(vectors), len(chunks))
	}
	for i, chunk := range chunks {
		chunk.Vector = vectors[i]
	}

	// The document row is written first so search and ACL metadata are
	// in place before its chunks become visible.
	stored, err := p.docs.UpsertDocument(ctx, doc)
	if err != nil {
		return err
	}

	oldChunks, err := p.docs.GetChunks(ctx, stored.Id)
	if err != nil {
		return err
	}

	newChunks, err := p.docs.SwapChunks(ctx, stored.Id, chunks)
	if err != nil {
		return err
	}

	// Mirror the swap in the lexical index: remove rows the new set no
	// longer covers, then reindex the new set.
	newIDs := make(map[core.ID]bool, len(newChunks))
	for _, chunk := range newChunks {
		newIDs[chunk.Id] = true
	}
	var orphaned []core.ID
	for _, chunk := range oldChunks {
		if !newIDs[chunk.Id] {
			orphaned = append(orphaned, chunk.Id)
		}
	}
	if len(orphaned) > 0 {
		if err := p.lexical.DeleteChunks(ctx, orphaned); err != nil {
			return err
		}
	}
	if err := p.lexical.IndexChunks(ctx, stored, newChunks); err != nil {
		return err
	}

	p.logger.Info("document indexed",
		"documentId", stored.Id, "key", stored.Key().String(), "chunks", len(newChunks))
	return nil
}

// park moves a job to the dead letter queue after retries are exhausted
// or a permanent failure.
func (p *Pipeline) park(ctx context.Context, job *core.Job, cause error) {
	job.Status = core.JobDead
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Error("failed to mark job dead", "jobId", job.Id, "err", err)
	}

	letter := &core.DeadLetter{
		JobId:      job.Id,
		Key:        job.Key,
		PayloadRef: job.PayloadRef,
		Attempts:   job.Attempts,
		Reason:     cause.Error(),
		EventTime:  job.EventTime,
		ParkedAt:   p.now().UTC(),
	}
	if err := p.dlq.Park(ctx, letter); err != nil {
		p.logger.Error("failed to park dead letter", "jobId", job.Id, "err", err)
		return
	}

	p.monitor.JobParked(job, cause)
	p.logger.Error("job parked in dead letter queue",
		"jobId", job.Id, "key", job.Key.String(), "attempts", job.Attempts, "err", cause)
}

// Requeue revives a parked job: its attempt counter resets and it
// re-enters the queue, then the dead letter is removed.
func (p *Pipeline) Requeue(ctx context.Context, jobID string) (*core.Job, error) {
	job, err := p.jobs.Requeue(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := p.dlq.Remove(ctx, jobID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	p.logger.Info("dead letter requeued", "jobId", jobID)
	return job, nil
}

// DeadLetters lists parked jobs, most recent first.
func (p *Pipeline) DeadLetters(ctx context.Context, limit int) ([]*core.DeadLetter, error) {
	return p.dlq.List(ctx, limit)
}
