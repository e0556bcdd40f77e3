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
	"time"

	"github.com/poiesic/recall/ai"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// DocumentProcessor re-embeds one document's chunk set and writes the
// refreshed vectors back in a single atomic swap.
type DocumentProcessor struct {
	docs           storage.DocumentRepository
	embedder       ai.Embedder
	batchSize      int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewDocumentProcessor creates a new document processor.
// batchSize: maximum number of chunks per embedding API call
// maxRetries: maximum number of retry attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewDocumentProcessor(docs storage.DocumentRepository, embedder ai.Embedder, batchSize, maxRetries int, retryBaseDelay time.Duration) *DocumentProcessor {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &DocumentProcessor{
		docs:           docs,
		embedder:       embedder,
		batchSize:      batchSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds every chunk of the given document. Vectors are
// normalized to unit length before being stored. The chunk set is replaced
// atomically, so readers never observe a half-refreshed document.
func (dp *DocumentProcessor) Process(ctx context.Context, docID core.ID) (int, error) {
	chunks, err := dp.docs.GetChunks(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	for start := 0; start < len(chunks); start += dp.batchSize {
		end := min(start+dp.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Text
		}

		var embeddings [][]float32
		err := RetryWithBackoff(ctx, func() error {
			var embErr error
			embeddings, embErr = dp.embedder.EmbedTexts(ctx, texts)
			return embErr
		}, dp.maxRetries, dp.retryBaseDelay)
		if err != nil {
			return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", dp.maxRetries, err)
		}

		if len(embeddings) != len(batch) {
			return 0, fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(batch), len(embeddings))
		}

		for i := range batch {
			batch[i].Vector = NormalizeVector(embeddings[i])
		}
	}

	if _, err := dp.docs.SwapChunks(ctx, docID, chunks); err != nil {
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}
	return len(chunks), nil
}
