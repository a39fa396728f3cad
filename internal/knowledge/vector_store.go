package knowledge

import (
	"context"
	"fmt"
)

// SimilarityIndex 按租户隔离的向量索引
//
// Insert/InsertBatch 不保证幂等，重复写入会产生重复行；
// Nearest 按距离升序返回，topK必须 >= 1；
// FetchByKeys 中PageNumber为0的key只按 (document_type, chunk_index) 匹配。
type SimilarityIndex interface {
	Insert(ctx context.Context, chunk Chunk) error
	InsertBatch(ctx context.Context, chunks []Chunk) error
	Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error)
	FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error)
	PageBounds(ctx context.Context, tenantID string, pages []PageRef) (map[PageRef]IndexBounds, error)
	DocumentBounds(ctx context.Context, tenantID string, documentTypes []string) (map[string]IndexBounds, error)
	DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error)
	DeleteTenant(ctx context.Context, tenantID string) (int64, error)
	Ready() bool
}

// DocumentReplacer 原子地替换一份文档的全部行，写入失败时旧版本保留
type DocumentReplacer interface {
	ReplaceDocument(ctx context.Context, tenantID, documentType string, chunks []Chunk) (int64, error)
}

func checkSameDocument(tenantID, documentType string, chunks []Chunk) error {
	for _, c := range chunks {
		if c.TenantID != tenantID || c.DocumentType != documentType {
			return fmt.Errorf("chunk %s does not belong to document %s/%s", c.Key(), tenantID, documentType)
		}
	}
	return nil
}
