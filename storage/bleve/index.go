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

package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// chunkEntry is the shape indexed per chunk. DocumentId is stored as a
// string field so it survives the round trip through stored fields.
type chunkEntry struct {
	Text       string `json:"text"`
	Title      string `json:"title"`
	Source     string `json:"source"`
	Path       string `json:"path"`
	DocumentId string `json:"document_id"`
}

// Index is a LexicalIndex backed by a bleve keyword index. Writes go
// through batches so a document's chunk set lands together.
type Index struct {
	idx    bleve.Index
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

var _ storage.LexicalIndex = (*Index)(nil)

// OpenIndex opens the lexical index at path, creating it when it does
// not exist yet. An empty path opens a memory-only index, used by tests
// and ephemeral deployments.
func OpenIndex(path string, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		idx bleve.Index
		err error
	)
	if path == "" {
		idx, err = bleve.NewMemOnly(buildMapping())
	} else {
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, buildMapping())
		}
	}
	if err != nil {
		return nil, fmt.Errorf("opening lexical index: %w", err)
	}

	return &Index{idx: idx, logger: logger}, nil
}

func buildMapping() mapping.IndexMapping {
	chunk := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	chunk.AddFieldMappingsAt("text", text)
	chunk.AddFieldMappingsAt("title", bleve.NewTextFieldMapping())
	chunk.AddFieldMappingsAt("path", bleve.NewTextFieldMapping())
	chunk.AddFieldMappingsAt("source", bleve.NewKeywordFieldMapping())

	docID := bleve.NewKeywordFieldMapping()
	docID.Store = true
	chunk.AddFieldMappingsAt("document_id", docID)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = chunk
	return m
}

// IndexChunks adds or replaces the given chunks in a single batch.
func (x *Index) IndexChunks(ctx context.Context, doc *core.Document, chunks []*core.Chunk) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return storage.ErrStorageClosed
	}

	batch := x.idx.NewBatch()
	for _, chunk := range chunks {
		entry := chunkEntry{
			Text:       chunk.Text,
			Title:      doc.Title,
			Source:     doc.Source,
			Path:       doc.Path,
			DocumentId: strconv.FormatUint(uint64(doc.Id), 10),
		}
		if err := batch.Index(chunkDocID(chunk.Id), entry); err != nil {
			return fmt.Errorf("batching chunk %d: %w", chunk.Id, err)
		}
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("indexing chunks for document %d: %w", doc.Id, err)
	}

	x.logger.Debug("indexed chunks", "documentId", doc.Id, "count", len(chunks))
	return nil
}

// DeleteChunks removes the given chunks in a single batch. Missing ids
// are ignored.
func (x *Index) DeleteChunks(ctx context.Context, ids []core.ID) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return storage.ErrStorageClosed
	}

	batch := x.idx.NewBatch()
	for _, id := range ids {
		batch.Delete(chunkDocID(id))
	}
	if err := x.idx.Batch(batch); err != nil {
		return fmt.Errorf("deleting %d chunks: %w", len(ids), err)
	}
	return nil
}

// Search runs a keyword match over chunk text, title, and path,
// returning scored candidates highest first.
func (x *Index) Search(ctx context.Context, query string, limit int) ([]core.ScoredChunk, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, storage.ErrStorageClosed
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, storage.ErrInvalidQuery
	}
	if limit <= 0 {
		return nil, nil
	}

	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)
	pathQuery := bleve.NewMatchQuery(query)
	pathQuery.SetField("path")

	req := bleve.NewSearchRequestOptions(
		bleve.NewDisjunctionQuery(textQuery, titleQuery, pathQuery),
		limit, 0, false,
	)
	req.Fields = []string{"document_id"}

	result, err := x.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	scored := make([]core.ScoredChunk, 0, len(result.Hits))
	for _, hit := range result.Hits {
		chunkId, err := parseChunkDocID(hit.ID)
		if err != nil {
			x.logger.Warn("skipping malformed hit id", "id", hit.ID)
			continue
		}
		docId, ok := hit.Fields["document_id"].(string)
		if !ok {
			continue
		}
		parsedDocId, err := strconv.ParseUint(docId, 10, 64)
		if err != nil {
			continue
		}
		scored = append(scored, core.ScoredChunk{
			ChunkId:    chunkId,
			DocumentId: core.ID(parsedDocId),
			Score:      hit.Score,
		})
	}
	return scored, nil
}

// Close closes the underlying bleve index. Further calls return
// ErrStorageClosed.
func (x *Index) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.closed {
		return nil
	}
	x.closed = true
	return x.idx.Close()
}

func chunkDocID(id core.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}

func parseChunkDocID(s string) (core.ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return core.ID(v), nil
}
