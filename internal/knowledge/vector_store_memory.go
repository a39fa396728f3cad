package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryVectorStore 进程内相似度索引，用于本地开发和测试
type MemoryVectorStore struct {
	mu         sync.RWMutex
	dimensions int
	tenants    map[string][]Chunk
}

// NewMemoryVectorStore dimensions为0时不校验向量维度
func NewMemoryVectorStore(dimensions int) *MemoryVectorStore {
	return &MemoryVectorStore{
		dimensions: dimensions,
		tenants:    make(map[string][]Chunk),
	}
}

func (s *MemoryVectorStore) Insert(ctx context.Context, chunk Chunk) error {
	return s.InsertBatch(ctx, []Chunk{chunk})
}

func (s *MemoryVectorStore) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if err := s.checkBatch(chunks); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(chunks)
	return nil
}

// ReplaceDocument 删除与写入在同一把锁内完成
func (s *MemoryVectorStore) ReplaceDocument(ctx context.Context, tenantID, documentType string, chunks []Chunk) (int64, error) {
	if err := s.checkBatch(chunks); err != nil {
		return 0, err
	}
	if err := checkSameDocument(tenantID, documentType, chunks); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.deleteDocumentLocked(tenantID, documentType)
	s.appendLocked(chunks)
	return removed, nil
}

func (s *MemoryVectorStore) checkBatch(chunks []Chunk) error {
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if s.dimensions > 0 && len(c.Embedding) != s.dimensions {
			return fmt.Errorf("embedding dimension %d does not match index dimension %d", len(c.Embedding), s.dimensions)
		}
	}
	return nil
}

func (s *MemoryVectorStore) appendLocked(chunks []Chunk) {
	for _, c := range chunks {
		stored := c
		stored.Embedding = append([]float32(nil), c.Embedding...)
		s.tenants[c.TenantID] = append(s.tenants[c.TenantID], stored)
	}
}

func (s *MemoryVectorStore) Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1")
	}
	if s.dimensions > 0 && len(query) != s.dimensions {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), s.dimensions)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := s.tenants[tenantID]
	hits := make([]Hit, 0, len(rows))
	for _, c := range rows {
		hits = append(hits, Hit{ChunkKey: c.Key(), Distance: negativeInnerProduct(query, c.Embedding)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *MemoryVectorStore) FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Chunk
	for _, c := range s.tenants[tenantID] {
		for _, k := range keys {
			if k.Matches(c) {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *MemoryVectorStore) PageBounds(ctx context.Context, tenantID string, pages []PageRef) (map[PageRef]IndexBounds, error) {
	wanted := make(map[PageRef]struct{}, len(pages))
	for _, p := range pages {
		wanted[p] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[PageRef]IndexBounds)
	for _, c := range s.tenants[tenantID] {
		ref := PageRef{DocumentType: c.DocumentType, PageNumber: c.PageNumber}
		if _, ok := wanted[ref]; !ok {
			continue
		}
		out[ref] = widen(out[ref], c.ChunkIndex)
	}
	return out, nil
}

func (s *MemoryVectorStore) DocumentBounds(ctx context.Context, tenantID string, documentTypes []string) (map[string]IndexBounds, error) {
	wanted := make(map[string]struct{}, len(documentTypes))
	for _, d := range documentTypes {
		wanted[d] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]IndexBounds)
	for _, c := range s.tenants[tenantID] {
		if _, ok := wanted[c.DocumentType]; !ok {
			continue
		}
		out[c.DocumentType] = widen(out[c.DocumentType], c.ChunkIndex)
	}
	return out, nil
}

func (s *MemoryVectorStore) DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteDocumentLocked(tenantID, documentType), nil
}

func (s *MemoryVectorStore) deleteDocumentLocked(tenantID, documentType string) int64 {
	rows := s.tenants[tenantID]
	kept := rows[:0]
	var removed int64
	for _, c := range rows {
		if c.DocumentType == documentType {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.tenants[tenantID] = kept
	return removed
}

func (s *MemoryVectorStore) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := int64(len(s.tenants[tenantID]))
	delete(s.tenants, tenantID)
	return removed, nil
}

func (s *MemoryVectorStore) Ready() bool {
	return s != nil
}

func widen(b IndexBounds, idx int) IndexBounds {
	if b.Count == 0 {
		return IndexBounds{Min: idx, Max: idx, Count: 1}
	}
	if idx < b.Min {
		b.Min = idx
	}
	if idx > b.Max {
		b.Max = idx
	}
	b.Count++
	return b
}

// negativeInnerProduct 与pgvector的 <#> 运算符一致
func negativeInnerProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
	}
	return -dot
}
