package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

func newTestIngestor(pages []string, extractErr error, embedder Embedder, index SimilarityIndex) *Ingestor {
	chunker := NewChunker(&fakeExtractor{pages: pages, err: extractErr}, SchemePage, 20)
	return NewIngestor(chunker, embedder, index, nil)
}

func TestIngestor_Ingest(t *testing.T) {
	store := NewMemoryVectorStore(2)
	ing := newTestIngestor([]string{"Dues are due. Late fees apply.", "Pools close at ten."}, nil, &lengthEmbedder{}, store)

	report, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Equal(t, 3, report.ChunkCount)
	assert.Equal(t, (13+16+19)/3, report.AvgChunkSize)
	assert.Equal(t, "page", report.Scheme)

	bounds, err := store.PageBounds(context.Background(), "HOA1", []PageRef{{"bylaws", 1}, {"bylaws", 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, bounds[PageRef{"bylaws", 1}].Count)
	assert.Equal(t, 1, bounds[PageRef{"bylaws", 2}].Count)
}

func TestIngestor_ReingestReplacesDocument(t *testing.T) {
	store := NewMemoryVectorStore(2)
	ing := newTestIngestor([]string{"Dues are due. Late fees apply."}, nil, &lengthEmbedder{}, store)
	req := IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("%PDF")}

	_, err := ing.Ingest(context.Background(), req)
	require.NoError(t, err)
	report, err := ing.Ingest(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Replaced)

	hits, err := store.Nearest(context.Background(), "HOA1", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestIngestor_ParseFailurePersistsNothing(t *testing.T) {
	store := NewMemoryVectorStore(2)
	require.NoError(t, store.Insert(context.Background(), mustChunk("HOA1", "bylaws", 1, 0, "old", 1, 0)))
	embedder := &lengthEmbedder{}
	ing := newTestIngestor(nil, apperrors.NewDocumentParseError(errors.New("bad xref")), embedder, store)

	_, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	require.True(t, isParseError(err))
	assert.Zero(t, embedder.calls)

	hits, _ := store.Nearest(context.Background(), "HOA1", []float32{1, 0}, 10)
	assert.Len(t, hits, 1)
}

func TestIngestor_EmptyDocumentIsParseError(t *testing.T) {
	ing := newTestIngestor([]string{"  ", "éé"}, nil, &lengthEmbedder{}, NewMemoryVectorStore(2))
	_, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	assert.True(t, isParseError(err))
}

func TestIngestor_EmbeddingFailurePersistsNothing(t *testing.T) {
	store := NewMemoryVectorStore(2)
	require.NoError(t, store.Insert(context.Background(), mustChunk("HOA1", "bylaws", 1, 0, "old", 1, 0)))
	embedErr := apperrors.NewEmbeddingError("quota exceeded", nil)
	ing := newTestIngestor([]string{"Dues are due."}, nil, &lengthEmbedder{err: embedErr}, store)

	_, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbedding))

	hits, _ := store.Nearest(context.Background(), "HOA1", []float32{1, 0}, 10)
	require.Len(t, hits, 1)
}

func TestIngestor_IndexFailure(t *testing.T) {
	idx := &failingIndex{SimilarityIndex: NewMemoryVectorStore(2), failOn: "insert_batch", ready: true}
	ing := newTestIngestor([]string{"Dues are due."}, nil, &lengthEmbedder{}, idx)

	_, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexUnavailable))
	assert.ErrorIs(t, err, errIndexDown)

	idx.ready = false
	_, err = ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexUnavailable))
}

func TestIngestor_FailedReplaceKeepsPreviousVersion(t *testing.T) {
	store := NewMemoryVectorStore(2)
	require.NoError(t, store.Insert(context.Background(), mustChunk("HOA1", "bylaws", 1, 0, "old", 1, 0)))
	ing := newTestIngestor([]string{"Dues are due."}, nil, &lengthEmbedder{}, &replaceFailingIndex{MemoryVectorStore: store})

	_, err := ing.Ingest(context.Background(), IngestRequest{TenantID: "HOA1", DocumentType: "bylaws", Content: []byte("x")})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeIndexUnavailable))
	assert.ErrorIs(t, err, errIndexDown)

	chunks, err := store.FetchByKeys(context.Background(), "HOA1", []ChunkKey{{DocumentType: "bylaws", PageNumber: 1, ChunkIndex: 0}})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "old", chunks[0].Content)
}

func TestIngestor_ValidatesRequest(t *testing.T) {
	ing := newTestIngestor(nil, nil, &lengthEmbedder{}, NewMemoryVectorStore(2))
	_, err := ing.Ingest(context.Background(), IngestRequest{DocumentType: "bylaws", Content: []byte("x")})
	assert.Error(t, err)
}
