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

package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/storage"
)

const (
	// DefaultBatchSize is the default number of chunks per embedding call
	DefaultBatchSize = 64
)

// Config holds configuration for the reindexing operation.
type Config struct {
	// BatchSize is the maximum number of chunks per embedding API call
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 10,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer re-embeds every live document in the store. It is the recovery
// path for embedding model changes: stored vectors become stale the moment
// the model is swapped, and stay stale until this runs.
type Reindexer struct {
	docs      storage.DocumentRepository
	config    *Config
	progress  io.Writer
	processor *DocumentProcessor
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(docs storage.DocumentRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}

	processor := NewDocumentProcessor(docs, embedder, config.BatchSize, config.MaxRetries, config.RetryDelay)

	return &Reindexer{
		docs:      docs,
		config:    config,
		progress:  progress,
		processor: processor,
	}
}

// Run executes the reindexing operation. Every chunk of every live document
// is re-embedded with the configured embedder; soft-deleted documents are
// skipped. Progress is reported to the configured writer.
func (r *Reindexer) Run(ctx context.Context) error {
	all, err := r.docs.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	live := all[:0]
	for _, doc := range all {
		if !doc.Deleted {
			live = append(live, doc)
		}
	}

	if len(live) == 0 {
		fmt.Fprintf(r.progress, "No documents found in store (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		len(live), r.config.BatchSize)

	tracker := NewProgressTracker(r.progress, len(live), r.config.ReportInterval)
	tracker.Start()

	totalChunks := 0
	for _, doc := range live {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.processor.Process(ctx, doc.Id)
		if err != nil {
			return fmt.Errorf("failed to reindex document %d (%s): %w", doc.Id, doc.Path, err)
		}
		totalChunks += n
		tracker.Increment(1)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Processed %d documents (%d chunks) in %v (%.1f docs/sec)\n",
		len(live), totalChunks, elapsed.Round(time.Second), float64(len(live))/elapsed.Seconds())

	return nil
}
