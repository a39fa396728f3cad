package knowledge

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

type fakeExtractor struct {
	pages []string
	err   error
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

// lengthEmbedder 向量为 [len(text), 1]
type lengthEmbedder struct {
	err   error
	calls int
}

func (e *lengthEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (e *lengthEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *lengthEmbedder) Dimensions() int { return 2 }
func (e *lengthEmbedder) Ready() bool     { return true }

// countingIndex 统计每种操作的调用次数
type countingIndex struct {
	SimilarityIndex
	mu    sync.Mutex
	calls map[string]int
}

func newCountingIndex(inner SimilarityIndex) *countingIndex {
	return &countingIndex{SimilarityIndex: inner, calls: make(map[string]int)}
}

func (c *countingIndex) count(op string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
}

func (c *countingIndex) Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error) {
	c.count("nearest")
	return c.SimilarityIndex.Nearest(ctx, tenantID, query, topK)
}

func (c *countingIndex) FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error) {
	c.count("fetch_by_keys")
	return c.SimilarityIndex.FetchByKeys(ctx, tenantID, keys)
}

func (c *countingIndex) PageBounds(ctx context.Context, tenantID string, pages []PageRef) (map[PageRef]IndexBounds, error) {
	c.count("page_bounds")
	return c.SimilarityIndex.PageBounds(ctx, tenantID, pages)
}

func (c *countingIndex) DocumentBounds(ctx context.Context, tenantID string, documentTypes []string) (map[string]IndexBounds, error) {
	c.count("document_bounds")
	return c.SimilarityIndex.DocumentBounds(ctx, tenantID, documentTypes)
}

func (c *countingIndex) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// failingIndex 指定操作返回错误
type failingIndex struct {
	SimilarityIndex
	failOn string
	ready  bool
}

var errIndexDown = errors.New("connection refused")

func (f *failingIndex) Ready() bool { return f.ready }

func (f *failingIndex) Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error) {
	if f.failOn == "nearest" {
		return nil, errIndexDown
	}
	return f.SimilarityIndex.Nearest(ctx, tenantID, query, topK)
}

func (f *failingIndex) FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error) {
	if f.failOn == "fetch_by_keys" {
		return nil, errIndexDown
	}
	return f.SimilarityIndex.FetchByKeys(ctx, tenantID, keys)
}

func (f *failingIndex) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if f.failOn == "insert_batch" {
		return errIndexDown
	}
	return f.SimilarityIndex.InsertBatch(ctx, chunks)
}

// replaceFailingIndex 支持整体替换，但替换总是失败
type replaceFailingIndex struct {
	*MemoryVectorStore
}

func (r *replaceFailingIndex) ReplaceDocument(ctx context.Context, tenantID, documentType string, chunks []Chunk) (int64, error) {
	return 0, errIndexDown
}

func mustChunk(tenant, doc string, page, idx int, content string, vec ...float32) Chunk {
	c, err := NewChunk(tenant, doc, page, idx, content, vec)
	if err != nil {
		panic(err)
	}
	return c
}

func isParseError(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeDocumentParse)
}
