package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/recall/ai/mock"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	storagebadger "github.com/poiesic/recall/storage/badger"
	storagebleve "github.com/poiesic/recall/storage/bleve"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testPipeline struct {
	pipeline *Pipeline
	docs     storage.DocumentRepository
	jobs     storage.JobRepository
	dlq      storage.DeadLetterRepository
	lexical  storage.LexicalIndex
	embedder *mock.MockEmbedder
	clock    *testClock
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	docs, jobs, dlq, backend, err := storagebadger.NewMemoryRepositories()
	require.NoError(t, err)
	lexical, err := storagebleve.OpenIndex("", nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		lexical.Close()
		dlq.Close()
		jobs.Close()
		docs.Close()
		backend.Close()
	})

	embedder := mock.NewMockEmbedder()
	clock := &testClock{now: time.Now().UTC()}

	pipeline, err := NewPipeline(docs, jobs, dlq, lexical, embedder,
		WithPoolSize(1),
		WithChunker(NewChunker(200, 40)),
		withClock(clock.Now),
	)
	require.NoError(t, err)

	return &testPipeline{
		pipeline: pipeline,
		docs:     docs,
		jobs:     jobs,
		dlq:      dlq,
		lexical:  lexical,
		embedder: embedder,
		clock:    clock,
	}
}

// processOne claims the next eligible job and runs it synchronously.
func (tp *testPipeline) processOne(t *testing.T) *core.Job {
	t.Helper()
	job, err := tp.jobs.Dequeue(context.Background(), tp.clock.Now())
	require.NoError(t, err)
	tp.pipeline.processJob(context.Background(), job)
	return job
}

func newTestEvent(externalID, content string) *core.Event {
	return &core.Event{
		Source:     "slack",
		ExternalID: externalID,
		Title:      "deploy thread",
		Path:       "/eng/deploys/" + externalID,
		ACL:        core.ACL{Public: true},
		Content:    content,
		EventTime:  time.Now().UTC().Add(-time.Minute),
	}
}

func TestSubmit(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	t.Run("invalid event is rejected before enqueue", func(t *testing.T) {
		event := newTestEvent("msg-1", "some content")
		event.Source = "  "
		_, err := tp.pipeline.Submit(ctx, event)
		assert.ErrorIs(t, err, core.ErrValidation)

		depth, err := tp.jobs.QueueDepth(ctx)
		require.NoError(t, err)
		assert.Zero(t, depth)
	})

	t.Run("accepted event is durably queued", func(t *testing.T) {
		job, err := tp.pipeline.Submit(ctx, newTestEvent("msg-1", "rollback steps for the deploy"))
		require.NoError(t, err)
		assert.Equal(t, core.JobQueued, job.Status)
		assert.NotEmpty(t, job.Id)

		depth, err := tp.jobs.QueueDepth(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, depth)
	})

	t.Run("eligibility follows the pipeline clock", func(t *testing.T) {
		job, err := tp.pipeline.Submit(ctx, newTestEvent("msg-2", "postmortem notes"))
		require.NoError(t, err)
		assert.Equal(t, tp.clock.Now().UTC(), job.NextAttemptAt)

		// A fresh submission is claimable at the pipeline's notion of now.
		claimed, err := tp.jobs.Dequeue(ctx, tp.clock.Now())
		require.NoError(t, err)
		assert.Equal(t, core.JobProcessing, claimed.Status)
	})
}

func TestProcessUpsert(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	_, err := tp.pipeline.Submit(ctx, newTestEvent("msg-1", "rollback steps for the failed deploy"))
	require.NoError(t, err)
	job := tp.processOne(t)

	stored, err := tp.jobs.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobSucceeded, stored.Status)

	docID := core.DocumentKey{Source: "slack", ExternalID: "msg-1"}.ID()

	t.Run("document and chunks are stored", func(t *testing.T) {
		doc, err := tp.docs.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, "deploy thread", doc.Title)

		chunks, err := tp.docs.GetChunks(ctx, docID)
		require.NoError(t, err)
		require.NotEmpty(t, chunks)
		assert.NotEmpty(t, chunks[0].Vector)
	})

	t.Run("document is lexically searchable", func(t *testing.T) {
		hits, err := tp.lexical.Search(ctx, "rollback deploy", 10)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, docID, hits[0].DocumentId)
	})

	t.Run("re-ingesting the same event is idempotent", func(t *testing.T) {
		before, err := tp.docs.GetChunks(ctx, docID)
		require.NoError(t, err)

		_, err = tp.pipeline.Submit(ctx, newTestEvent("msg-1", "rollback steps for the failed deploy"))
		require.NoError(t, err)
		tp.processOne(t)

		after, err := tp.docs.GetChunks(ctx, docID)
		require.NoError(t, err)
		require.Equal(t, len(before), len(after))
		for i := range before {
			assert.Equal(t, before[i].Id, after[i].Id)
			assert.Equal(t, before[i].Text, after[i].Text)
		}
	})
}

func TestOutOfOrderEvents(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)

	newer := newTestEvent("msg-7", "the final revision")
	newer.Title = "final"
	newer.EventTime = base.Add(10 * time.Minute)
	_, err := tp.pipeline.Submit(ctx, newer)
	require.NoError(t, err)
	tp.processOne(t)

	older := newTestEvent("msg-7", "an earlier draft")
	older.Title = "draft"
	older.EventTime = base
	_, err = tp.pipeline.Submit(ctx, older)
	require.NoError(t, err)
	job := tp.processOne(t)

	// The stale event completes successfully without touching the document.
	stored, err := tp.jobs.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobSucceeded, stored.Status)

	docID := core.DocumentKey{Source: "slack", ExternalID: "msg-7"}.ID()
	doc, err := tp.docs.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.Equal(t, "final", doc.Title)

	hits, err := tp.lexical.Search(ctx, "final revision", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
}

func TestDeleteSurvivesLateUpsert(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Microsecond)

	first := newTestEvent("msg-8", "the original revision")
	first.EventTime = base
	_, err := tp.pipeline.Submit(ctx, first)
	require.NoError(t, err)
	tp.processOne(t)

	del := newTestEvent("msg-8", "")
	del.Delete = true
	del.EventTime = base.Add(20 * time.Minute)
	_, err = tp.pipeline.Submit(ctx, del)
	require.NoError(t, err)
	tp.processOne(t)

	// An upsert older than the delete but newer than the last applied
	// upsert must not resurrect the document.
	late := newTestEvent("msg-8", "an intermediate revision")
	late.EventTime = base.Add(10 * time.Minute)
	_, err = tp.pipeline.Submit(ctx, late)
	require.NoError(t, err)
	job := tp.processOne(t)

	stored, err := tp.jobs.Get(ctx, job.Id)
	require.NoError(t, err)
	assert.Equal(t, core.JobSucceeded, stored.Status)

	docID := core.DocumentKey{Source: "slack", ExternalID: "msg-8"}.ID()
	doc, err := tp.docs.GetDocument(ctx, docID)
	require.NoError(t, err)
	assert.True(t, doc.Deleted)
	assert.Equal(t, del.EventTime.UTC(), doc.EventTime)

	hits, err := tp.lexical.Search(ctx, "intermediate revision", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestProcessDelete(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	_, err := tp.pipeline.Submit(ctx, newTestEvent("msg-3", "quarterly planning notes"))
	require.NoError(t, err)
	tp.processOne(t)

	docID := core.DocumentKey{Source: "slack", ExternalID: "msg-3"}.ID()

	t.Run("delete removes the document from both indexes", func(t *testing.T) {
		del := newTestEvent("msg-3", "")
		del.Delete = true
		del.EventTime = time.Now().UTC()
		_, err := tp.pipeline.Submit(ctx, del)
		require.NoError(t, err)
		tp.processOne(t)

		doc, err := tp.docs.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.True(t, doc.Deleted)

		hits, err := tp.lexical.Search(ctx, "quarterly planning", 10)
		require.NoError(t, err)
		assert.Empty(t, hits)

		results, err := tp.docs.VectorSearch(ctx, []float32{1}, 10)
		require.NoError(t, err)
		for _, hit := range results {
			assert.NotEqual(t, docID, hit.DocumentId)
		}
	})

	t.Run("deleting an unknown document is a no-op success", func(t *testing.T) {
		del := newTestEvent("never-seen", "")
		del.Delete = true
		_, err := tp.pipeline.Submit(ctx, del)
		require.NoError(t, err)
		job := tp.processOne(t)

		stored, err := tp.jobs.Get(ctx, job.Id)
		require.NoError(t, err)
		assert.Equal(t, core.JobSucceeded, stored.Status)
	})
}

func TestRetryAndDeadLetter(t *testing.T) {
	tp := newTestPipeline(t)
	ctx := context.Background()

	embedderDown := errors.New("connection refused")
	tp.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, embedderDown
	}

	_, err := tp.pipeline.Submit(ctx, newTestEvent("msg-5", "content that will not embed"))
	require.NoError(t, err)

	t.Run("transient failure schedules a retry with backoff", func(t *testing.T) {
		job := tp.processOne(t)

		stored, err := tp.jobs.Get(ctx, job.Id)
		require.NoError(t, err)
		assert.Equal(t, core.JobQueued, stored.Status)
		assert.Equal(t, 1, stored.Attempts)
		assert.Contains(t, stored.LastError, "connection refused")
		assert.True(t, stored.NextAttemptAt.After(tp.clock.Now()))

		// Not eligible until the backoff expires.
		_, err = tp.jobs.Dequeue(ctx, tp.clock.Now())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	var deadJobID string
	t.Run("exhausted attempts park the job", func(t *testing.T) {
		tp.clock.Advance(time.Minute)
		job := tp.processOne(t)
		tp.clock.Advance(time.Minute)
		job = tp.processOne(t)
		deadJobID = job.Id

		stored, err := tp.jobs.Get(ctx, job.Id)
		require.NoError(t, err)
		assert.Equal(t, core.JobDead, stored.Status)
		assert.Equal(t, MaxAttempts, stored.Attempts)

		letters, err := tp.pipeline.DeadLetters(ctx, 10)
		require.NoError(t, err)
		require.Len(t, letters, 1)
		assert.Equal(t, job.Id, letters[0].JobId)
		assert.Contains(t, letters[0].Reason, "connection refused")
	})

	t.Run("requeued job succeeds once the provider recovers", func(t *testing.T) {
		tp.embedder.EmbedTextsFunc = nil

		job, err := tp.pipeline.Requeue(ctx, deadJobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobQueued, job.Status)
		assert.Zero(t, job.Attempts)

		letters, err := tp.pipeline.DeadLetters(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, letters)

		tp.processOne(t)
		stored, err := tp.jobs.Get(ctx, deadJobID)
		require.NoError(t, err)
		assert.Equal(t, core.JobSucceeded, stored.Status)

		docID := core.DocumentKey{Source: "slack", ExternalID: "msg-5"}.ID()
		_, err = tp.docs.GetDocument(ctx, docID)
		assert.NoError(t, err)
	})
}

func TestPipelineStop(t *testing.T) {
	tp := newTestPipeline(t)
	tp.pipeline.Start()
	tp.pipeline.Stop()

	_, err := tp.pipeline.Submit(context.Background(), newTestEvent("msg-9", "late event"))
	assert.ErrorIs(t, err, ErrPipelineStopped)
}
