package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDoc(source, externalID string) *core.Document {
	return &core.Document{
		Source:     source,
		ExternalID: externalID,
		Title:      "deploy checklist",
		Path:       "/eng/deploy-checklist",
		Meta:       map[string]string{"channel": "eng"},
		ACL:        core.ACL{Public: true},
		Version:    "v1",
		EventTime:  time.Now().UTC().Add(-time.Minute).Truncate(time.Microsecond),
	}
}

func TestUpsertDocument(t *testing.T) {
	docRepo, jobRepo, dlqRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		dlqRepo.Close()
		jobRepo.Close()
		docRepo.Close()
		backend.Close()
	}()

	ctx := context.Background()

	t.Run("insert assigns identity-derived id", func(t *testing.T) {
		doc, err := docRepo.UpsertDocument(ctx, newTestDoc("slack", "C042"))
		require.NoError(t, err)
		assert.Equal(t, doc.Key().ID(), doc.Id)
		assert.False(t, doc.CreatedAt.IsZero())
	})

	t.Run("re-ingesting the same identity mutates, never duplicates", func(t *testing.T) {
		first, err := docRepo.UpsertDocument(ctx, newTestDoc("gdrive", "file-17"))
		require.NoError(t, err)

		updated := newTestDoc("gdrive", "file-17")
		updated.Title = "deploy checklist v2"
		updated.Version = "v2"
		second, err := docRepo.UpsertDocument(ctx, updated)
		require.NoError(t, err)

		assert.Equal(t, first.Id, second.Id)
		assert.Equal(t, first.CreatedAt, second.CreatedAt)

		stored, err := docRepo.GetDocument(ctx, first.Id)
		require.NoError(t, err)
		assert.Equal(t, "deploy checklist v2", stored.Title)
		assert.Equal(t, "v2", stored.Version)
	})

	t.Run("get missing document", func(t *testing.T) {
		_, err := docRepo.GetDocument(ctx, core.ID(12345))
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSwapChunks(t *testing.T) {
	docRepo, jobRepo, dlqRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		dlqRepo.Close()
		jobRepo.Close()
		docRepo.Close()
		backend.Close()
	}()

	ctx := context.Background()
	doc, err := docRepo.UpsertDocument(ctx, newTestDoc("slack", "C042"))
	require.NoError(t, err)

	first := []*core.Chunk{
		{Text: "alpha", Span: core.Span{Start: 0, End: 5}, Vector: []float32{1, 0}},
		{Text: "beta", Span: core.Span{Start: 6, End: 10}, Vector: []float32{0, 1}},
		{Text: "gamma", Span: core.Span{Start: 11, End: 16}, Vector: []float32{1, 1}},
	}
	_, err = docRepo.SwapChunks(ctx, doc.Id, first)
	require.NoError(t, err)

	t.Run("chunks stored in sequence order", func(t *testing.T) {
		chunks, err := docRepo.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		require.Len(t, chunks, 3)
		assert.Equal(t, "alpha", chunks[0].Text)
		assert.Equal(t, "gamma", chunks[2].Text)
		assert.Equal(t, doc.Id, chunks[1].DocumentId)
	})

	t.Run("swap replaces the whole set", func(t *testing.T) {
		replacement := []*core.Chunk{
			{Text: "delta", Span: core.Span{Start: 0, End: 5}, Vector: []float32{0.5, 0.5}},
		}
		_, err := docRepo.SwapChunks(ctx, doc.Id, replacement)
		require.NoError(t, err)

		chunks, err := docRepo.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, "delta", chunks[0].Text)
	})

	t.Run("identical content yields an identical chunk set", func(t *testing.T) {
		same := []*core.Chunk{
			{Text: "delta", Span: core.Span{Start: 0, End: 5}, Vector: []float32{0.5, 0.5}},
		}
		_, err := docRepo.SwapChunks(ctx, doc.Id, same)
		require.NoError(t, err)

		chunks, err := docRepo.GetChunks(ctx, doc.Id)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, chunkID(doc.Id, 0), chunks[0].Id)
	})
}

func TestVectorSearch(t *testing.T) {
	docRepo, jobRepo, dlqRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		dlqRepo.Close()
		jobRepo.Close()
		docRepo.Close()
		backend.Close()
	}()

	ctx := context.Background()

	docA, err := docRepo.UpsertDocument(ctx, newTestDoc("slack", "A"))
	require.NoError(t, err)
	_, err = docRepo.SwapChunks(ctx, docA.Id, []*core.Chunk{
		{Text: "close match", Vector: []float32{0.9, 0.1}},
	})
	require.NoError(t, err)

	docB, err := docRepo.UpsertDocument(ctx, newTestDoc("slack", "B"))
	require.NoError(t, err)
	_, err = docRepo.SwapChunks(ctx, docB.Id, []*core.Chunk{
		{Text: "far match", Vector: []float32{0.1, 0.9}},
	})
	require.NoError(t, err)

	t.Run("ordered by similarity", func(t *testing.T) {
		results, err := docRepo.VectorSearch(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, docA.Id, results[0].DocumentId)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("soft-deleted documents are excluded", func(t *testing.T) {
		deleteTime := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, docRepo.SoftDelete(ctx, docB.Id, deleteTime))

		results, err := docRepo.VectorSearch(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, docA.Id, results[0].DocumentId)

		// The row itself is retained for audit, stamped with the delete
		// event's provider time.
		stored, err := docRepo.GetDocument(ctx, docB.Id)
		require.NoError(t, err)
		assert.True(t, stored.Deleted)
		assert.Equal(t, deleteTime, stored.EventTime)
	})

	t.Run("soft delete of missing document", func(t *testing.T) {
		err := docRepo.SoftDelete(ctx, core.ID(999), time.Now())
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestListDocuments(t *testing.T) {
	docRepo, jobRepo, dlqRepo, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer func() {
		dlqRepo.Close()
		jobRepo.Close()
		docRepo.Close()
		backend.Close()
	}()

	ctx := context.Background()

	t.Run("empty store", func(t *testing.T) {
		docs, err := docRepo.ListDocuments(ctx)
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	a, err := docRepo.UpsertDocument(ctx, newTestDoc("slack", "C100"))
	require.NoError(t, err)
	b, err := docRepo.UpsertDocument(ctx, newTestDoc("gdrive", "file-42"))
	require.NoError(t, err)

	t.Run("returns every stored document", func(t *testing.T) {
		docs, err := docRepo.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)

		ids := []core.ID{docs[0].Id, docs[1].Id}
		assert.Contains(t, ids, a.Id)
		assert.Contains(t, ids, b.Id)
	})

	t.Run("soft-deleted rows are included", func(t *testing.T) {
		require.NoError(t, docRepo.SoftDelete(ctx, b.Id, time.Now()))

		docs, err := docRepo.ListDocuments(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
	})
}
