package badger

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend required")
	}
	return &DocumentRepository{backend: backend}, nil
}

// Close releases repository resources.
func (r *DocumentRepository) Close() error {
	return nil
}

// UpsertDocument inserts or mutates the document identified by its
// (source, external id) identity.
func (r *DocumentRepository) UpsertDocument(ctx context.Context, doc *core.Document) (*core.Document, error) {
	if doc.Id == 0 {
		doc.Id = doc.Key().ID()
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)

		existing, err := readDocument(tx, key)
		if err != nil {
			return err
		}

		// Stored timestamps round-trip at microsecond precision, so the
		// returned document must carry the truncated values.
		now := time.Now().UTC().Truncate(time.Microsecond)
		if existing != nil {
			doc.CreatedAt = existing.CreatedAt
		} else {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)

	return doc, err
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocuments retrieves multiple documents by their IDs.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				result = append(result, doc)
			}
		}
		return nil
	}, false)
	return result, err
}

// SwapChunks atomically replaces the document's chunk set. The old set
// stays visible to concurrent readers until the transaction commits.
func (r *DocumentRepository) SwapChunks(ctx context.Context, docID core.ID, chunks []*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Remove the existing chunk set
		oldIDs, err := readDocChunkIDs(tx, docID)
		if err != nil {
			return err
		}
		for seq, chunkID := range oldIDs {
			if err := tx.Delete(makeChunkKey(chunkID)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocChunkKey(docID, seq)); err != nil {
				return err
			}
		}

		// Write the new set
		for seq, chunk := range chunks {
			chunk.DocumentId = docID
			chunk.Seq = seq
			chunk.Id = chunkID(docID, seq)

			if err := tx.Set(makeChunkKey(chunk.Id), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
			if err := tx.Set(makeDocChunkKey(docID, seq), storage.MarshalID(chunk.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// GetChunks retrieves a document's chunks ordered by sequence.
func (r *DocumentRepository) GetChunks(ctx context.Context, docID core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := readDocChunkIDs(tx, docID)
		if err != nil {
			return err
		}
		seqs := make([]int, 0, len(ids))
		for seq := range ids {
			seqs = append(seqs, seq)
		}
		slices.Sort(seqs)
		for _, seq := range seqs {
			chunk, err := readChunk(tx, makeChunkKey(ids[seq]))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// GetChunksByID retrieves chunks by their IDs.
func (r *DocumentRepository) GetChunksByID(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	var result []*core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, makeChunkKey(id))
			if err != nil {
				return err
			}
			if chunk != nil {
				result = append(result, chunk)
			}
		}
		return nil
	}, false)
	return result, err
}

// VectorSearch finds chunks similar to the given vector, excluding chunks
// of soft-deleted documents.
func (r *DocumentRepository) VectorSearch(ctx context.Context, vector []float32, limit int) ([]core.ScoredChunk, error) {
	var results []core.ScoredChunk

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		deleted := make(map[core.ID]bool)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			if chunk == nil || len(chunk.Vector) == 0 {
				continue
			}

			// Skip chunks of soft-deleted documents
			isDeleted, ok := deleted[chunk.DocumentId]
			if !ok {
				doc, err := readDocument(tx, makeDocumentKey(chunk.DocumentId))
				if err != nil {
					return err
				}
				isDeleted = doc == nil || doc.Deleted
				deleted[chunk.DocumentId] = isDeleted
			}
			if isDeleted {
				continue
			}

			results = append(results, core.ScoredChunk{
				ChunkId:    chunk.Id,
				DocumentId: chunk.DocumentId,
				Score:      float64(dotProduct(vector, chunk.Vector)),
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending, chunk identity for determinism
	slices.SortFunc(results, func(a, b core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		if a.ChunkId < b.ChunkId {
			return -1
		}
		if a.ChunkId > b.ChunkId {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SoftDelete marks a document deleted and stamps the delete event's
// provider time. Its chunks stay in storage but are excluded from
// search results.
func (r *DocumentRepository) SoftDelete(ctx context.Context, id core.ID, eventTime time.Time) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		doc, err := readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		doc.Deleted = true
		doc.EventTime = eventTime.UTC()
		doc.UpdatedAt = time.Now().UTC().Truncate(time.Microsecond)
		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// ListDocuments returns every stored document, soft-deleted rows included.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var result []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				doc, unmarshalErr := storage.UnmarshalDocument(val)
				if unmarshalErr != nil {
					return unmarshalErr
				}
				result = append(result, doc)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	return result, err
}

// Helper functions

// chunkID derives the deterministic identifier of a chunk from its
// document and sequence position.
func chunkID(docID core.ID, seq int) core.ID {
	return core.IDFromContent(fmt.Sprintf("%d\x00%d", docID, seq))
}

// readDocument reads a document from the transaction.
func readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}

// readChunk reads a chunk from the transaction.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		chunk, unmarshalErr = storage.UnmarshalChunk(val)
		return unmarshalErr
	})
	return chunk, err
}

// readDocChunkIDs reads the seq-to-chunkID index for a document.
func readDocChunkIDs(tx *badger.Txn, docID core.ID) (map[int]core.ID, error) {
	ids := make(map[int]core.ID)
	startKey := makePartialDocChunkKey(docID)

	iter := tx.NewIterator(badger.DefaultIteratorOptions)
	defer iter.Close()

	for iter.Seek(startKey); iter.Valid(); iter.Next() {
		key := iter.Item().Key()
		if len(key) < len(startKey) || slices.Compare(key[:len(startKey)], startKey) != 0 {
			break
		}

		seq := int(decodeSeq(key))
		var chunkID core.ID
		if err := iter.Item().Value(func(val []byte) error {
			var err error
			chunkID, err = storage.UnmarshalID(val)
			return err
		}); err != nil {
			return nil, err
		}
		ids[seq] = chunkID
	}
	return ids, nil
}

// decodeSeq extracts the sequence number from a doc-chunk index key.
func decodeSeq(key []byte) uint64 {
	var seq uint64
	if len(key) >= 8 {
		tail := key[len(key)-8:]
		for _, b := range tail {
			seq = seq<<8 | uint64(b)
		}
	}
	return seq
}
