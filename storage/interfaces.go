package storage

import (
	"context"
	"time"

	"github.com/poiesic/recall/core"
)

// DocumentRepository provides operations for managing documents and their
// chunks in the index store. Implementations must be thread-safe and
// support concurrent access.
type DocumentRepository interface {
	// UpsertDocument inserts or mutates the document identified by its
	// (source, external id) identity. Re-ingestion of the same identity
	// always mutates the existing row, never creates a duplicate.
	// CreatedAt is preserved on update; UpdatedAt is set automatically.
	// Returns the stored document.
	UpsertDocument(ctx context.Context, doc *core.Document) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocuments retrieves multiple documents by their IDs.
	// Returns only the documents that exist (no error for missing ones).
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// SwapChunks atomically replaces the document's chunk set. Concurrent
	// readers see either the old set or the new set, never a mix.
	// Returns the stored chunks with IDs assigned.
	SwapChunks(ctx context.Context, docID core.ID, chunks []*core.Chunk) ([]*core.Chunk, error)

	// GetChunks retrieves a document's chunks ordered by sequence.
	GetChunks(ctx context.Context, docID core.ID) ([]*core.Chunk, error)

	// GetChunksByID retrieves chunks by their IDs.
	// Returns only the chunks that exist.
	GetChunksByID(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// VectorSearch finds chunks similar to the given vector, ordered by
	// similarity score (highest first), up to limit results. Chunks of
	// soft-deleted documents are excluded.
	VectorSearch(ctx context.Context, vector []float32, limit int) ([]core.ScoredChunk, error)

	// SoftDelete marks a document deleted and records the delete event's
	// provider time, so a later-arriving older upsert is recognized as
	// stale. The row is retained for audit; its chunks are removed from
	// the searchable set.
	// Returns ErrNotFound if the document doesn't exist.
	SoftDelete(ctx context.Context, id core.ID, eventTime time.Time) error

	// ListDocuments returns every stored document, soft-deleted rows
	// included, in unspecified order.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// Close closes the repository and releases resources.
	Close() error
}

// JobRepository provides the durable ingestion queue.
type JobRepository interface {
	// Enqueue durably stores a job and its raw payload, assigning the
	// queue sequence number. The job enters status queued.
	Enqueue(ctx context.Context, job *core.Job, payload []byte) (*core.Job, error)

	// Dequeue claims the oldest queued job whose next-eligible time has
	// passed, marking it processing. Returns ErrNotFound when no job is
	// eligible.
	Dequeue(ctx context.Context, now time.Time) (*core.Job, error)

	// Update persists job state changes. Moving a job back to status
	// queued re-enters it into the pending queue.
	Update(ctx context.Context, job *core.Job) error

	// Get retrieves a job by ID. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*core.Job, error)

	// Requeue resets a dead job to queued with zero attempts.
	// Returns ErrNotFound if the job doesn't exist or is not dead.
	Requeue(ctx context.Context, id string) (*core.Job, error)

	// Payload dereferences a job's payload reference.
	// Returns ErrPayloadMissing if the payload is gone.
	Payload(ctx context.Context, ref string) ([]byte, error)

	// QueueDepth reports the number of jobs currently queued.
	QueueDepth(ctx context.Context) (int, error)

	// Close closes the repository and releases resources.
	Close() error
}

// DeadLetterRepository holds jobs that exhausted their retries, pending
// operator inspection or requeue.
type DeadLetterRepository interface {
	// Park stores a dead letter, overwriting any previous one for the
	// same job.
	Park(ctx context.Context, letter *core.DeadLetter) error

	// Get retrieves a dead letter by job ID.
	// Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, jobID string) (*core.DeadLetter, error)

	// List returns up to limit dead letters, most recently parked first.
	List(ctx context.Context, limit int) ([]*core.DeadLetter, error)

	// Remove deletes a dead letter after a successful requeue.
	// Returns ErrNotFound if it doesn't exist.
	Remove(ctx context.Context, jobID string) error

	// Close closes the repository and releases resources.
	Close() error
}

// LexicalIndex provides keyword search over chunks. It is maintained in
// lockstep with the document repository by the ingestion pipeline.
type LexicalIndex interface {
	// IndexChunks adds or replaces chunks in the lexical index.
	IndexChunks(ctx context.Context, doc *core.Document, chunks []*core.Chunk) error

	// DeleteChunks removes chunks from the index.
	DeleteChunks(ctx context.Context, ids []core.ID) error

	// Search runs a keyword query and returns scored candidates,
	// highest score first, up to limit results.
	Search(ctx context.Context, query string, limit int) ([]core.ScoredChunk, error)

	// Close closes the index and releases resources.
	Close() error
}
