package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const embeddingTable = "document_embeddings"

// embeddingRecord document_embeddings 表的一行
type embeddingRecord struct {
	ID           int64           `gorm:"primaryKey"`
	TenantID     string          `gorm:"column:tenant_id;size:50;index:idx_embeddings_tenant_doc"`
	DocumentType string          `gorm:"column:document_type;size:100;index:idx_embeddings_tenant_doc"`
	ChunkIndex   int             `gorm:"column:chunk_index"`
	PageNumber   int             `gorm:"column:page_number"`
	Content      string          `gorm:"column:content;type:text"`
	Embedding    pgvector.Vector `gorm:"column:embedding;type:vector(3072)"`
}

func (embeddingRecord) TableName() string {
	return embeddingTable
}

type hitRow struct {
	DocumentType string
	PageNumber   int
	ChunkIndex   int
	Distance     float64
}

type boundsRow struct {
	DocumentType string
	PageNumber   int
	MinIndex     int
	MaxIndex     int
	ChunkCount   int
}

// PostgresVectorStore 基于pgvector的相似度索引，距离使用 <#>（负内积）
type PostgresVectorStore struct {
	db        *gorm.DB
	batchSize int
}

// NewPostgresVectorStore 创建pgvector索引
func NewPostgresVectorStore(db *gorm.DB) *PostgresVectorStore {
	return &PostgresVectorStore{db: db, batchSize: 100}
}

func (s *PostgresVectorStore) Insert(ctx context.Context, chunk Chunk) error {
	return s.InsertBatch(ctx, []Chunk{chunk})
}

func (s *PostgresVectorStore) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	records, err := toRecords(chunks)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&records, s.batchSize).Error; err != nil {
		return fmt.Errorf("insert embeddings: %w", err)
	}
	return nil
}

// ReplaceDocument 删除旧行与写入新行在同一事务中，任一步失败整体回滚
func (s *PostgresVectorStore) ReplaceDocument(ctx context.Context, tenantID, documentType string, chunks []Chunk) (int64, error) {
	if err := checkSameDocument(tenantID, documentType, chunks); err != nil {
		return 0, err
	}
	records, err := toRecords(chunks)
	if err != nil {
		return 0, err
	}

	var replaced int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			"DELETE FROM "+embeddingTable+" WHERE tenant_id = ? AND document_type = ?",
			tenantID, documentType,
		)
		if result.Error != nil {
			return fmt.Errorf("delete document: %w", result.Error)
		}
		replaced = result.RowsAffected
		if len(records) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&records, s.batchSize).Error; err != nil {
			return fmt.Errorf("insert embeddings: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return replaced, nil
}

func toRecords(chunks []Chunk) ([]embeddingRecord, error) {
	records := make([]embeddingRecord, 0, len(chunks))
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if len(c.Embedding) == 0 {
			return nil, fmt.Errorf("chunk %s has no embedding", c.Key())
		}
		records = append(records, embeddingRecord{
			TenantID:     c.TenantID,
			DocumentType: c.DocumentType,
			ChunkIndex:   c.ChunkIndex,
			PageNumber:   c.PageNumber,
			Content:      c.Content,
			Embedding:    pgvector.NewVector(c.Embedding),
		})
	}
	return records, nil
}

func (s *PostgresVectorStore) Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1")
	}

	var rows []hitRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT document_type, page_number, chunk_index, embedding <#> ? AS distance
		FROM `+embeddingTable+`
		WHERE tenant_id = ?
		ORDER BY distance ASC
		LIMIT ?`,
		pgvector.NewVector(query), tenantID, topK,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest query: %w", err)
	}

	hits := make([]Hit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, Hit{
			ChunkKey: ChunkKey{DocumentType: r.DocumentType, PageNumber: r.PageNumber, ChunkIndex: r.ChunkIndex},
			Distance: r.Distance,
		})
	}
	return hits, nil
}

func (s *PostgresVectorStore) FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(keys))
	args := make([]interface{}, 0, 1+len(keys)*3)
	args = append(args, tenantID)
	for _, k := range keys {
		if k.PageNumber == 0 {
			clauses = append(clauses, "(document_type = ? AND chunk_index = ?)")
			args = append(args, k.DocumentType, k.ChunkIndex)
			continue
		}
		clauses = append(clauses, "(document_type = ? AND page_number = ? AND chunk_index = ?)")
		args = append(args, k.DocumentType, k.PageNumber, k.ChunkIndex)
	}

	var records []embeddingRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT tenant_id, document_type, page_number, chunk_index, content
		FROM `+embeddingTable+`
		WHERE tenant_id = ? AND (`+strings.Join(clauses, " OR ")+`)
		ORDER BY document_type, page_number, chunk_index`,
		args...,
	).Scan(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fetch by keys: %w", err)
	}

	chunks := make([]Chunk, 0, len(records))
	for _, r := range records {
		chunks = append(chunks, Chunk{
			TenantID:     r.TenantID,
			DocumentType: r.DocumentType,
			PageNumber:   r.PageNumber,
			ChunkIndex:   r.ChunkIndex,
			Content:      r.Content,
		})
	}
	return chunks, nil
}

// PageBounds 单条GROUP BY查询返回每页的chunk_index范围
func (s *PostgresVectorStore) PageBounds(ctx context.Context, tenantID string, pages []PageRef) (map[PageRef]IndexBounds, error) {
	out := make(map[PageRef]IndexBounds, len(pages))
	if len(pages) == 0 {
		return out, nil
	}

	tuples := make([]string, 0, len(pages))
	args := make([]interface{}, 0, 1+len(pages)*2)
	args = append(args, tenantID)
	for _, p := range pages {
		tuples = append(tuples, "(?, ?)")
		args = append(args, p.DocumentType, p.PageNumber)
	}

	var rows []boundsRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT document_type, page_number, MIN(chunk_index) AS min_index, MAX(chunk_index) AS max_index, COUNT(*) AS chunk_count
		FROM `+embeddingTable+`
		WHERE tenant_id = ? AND (document_type, page_number) IN (`+strings.Join(tuples, ", ")+`)
		GROUP BY document_type, page_number`,
		args...,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("page bounds: %w", err)
	}

	for _, r := range rows {
		out[PageRef{DocumentType: r.DocumentType, PageNumber: r.PageNumber}] = IndexBounds{
			Min: r.MinIndex, Max: r.MaxIndex, Count: r.ChunkCount,
		}
	}
	return out, nil
}

func (s *PostgresVectorStore) DocumentBounds(ctx context.Context, tenantID string, documentTypes []string) (map[string]IndexBounds, error) {
	out := make(map[string]IndexBounds, len(documentTypes))
	if len(documentTypes) == 0 {
		return out, nil
	}

	var rows []boundsRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT document_type, MIN(chunk_index) AS min_index, MAX(chunk_index) AS max_index, COUNT(*) AS chunk_count
		FROM `+embeddingTable+`
		WHERE tenant_id = ? AND document_type IN ?
		GROUP BY document_type`,
		tenantID, documentTypes,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("document bounds: %w", err)
	}

	for _, r := range rows {
		out[r.DocumentType] = IndexBounds{Min: r.MinIndex, Max: r.MaxIndex, Count: r.ChunkCount}
	}
	return out, nil
}

func (s *PostgresVectorStore) DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error) {
	result := s.db.WithContext(ctx).Exec(
		"DELETE FROM "+embeddingTable+" WHERE tenant_id = ? AND document_type = ?",
		tenantID, documentType,
	)
	if result.Error != nil {
		return 0, fmt.Errorf("delete document: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PostgresVectorStore) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	result := s.db.WithContext(ctx).Exec("DELETE FROM "+embeddingTable+" WHERE tenant_id = ?", tenantID)
	if result.Error != nil {
		return 0, fmt.Errorf("delete tenant: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *PostgresVectorStore) Ready() bool {
	return s.db != nil
}
