package knowledge

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// IngestRequest 一份待入库的文档
type IngestRequest struct {
	TenantID     string `validate:"required"`
	DocumentType string `validate:"required"`
	Content      []byte `validate:"required"`
}

// IngestReport 入库结果
type IngestReport struct {
	Pages        int    `json:"pages"`
	ChunkCount   int    `json:"chunk_count"`
	AvgChunkSize int    `json:"avg_chunk_size"`
	Replaced     int64  `json:"replaced"`
	Scheme       string `json:"addressing"`
}

// Ingestor 解析 -> 向量化 -> 删除旧行 -> 批量写入
type Ingestor struct {
	chunker  *Chunker
	embedder Embedder
	index    SimilarityIndex
	logger   *zap.Logger
}

// NewIngestor 创建入库器
func NewIngestor(chunker *Chunker, embedder Embedder, index SimilarityIndex, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		chunker:  chunker,
		embedder: embedder,
		index:    index,
		logger:   logger,
	}
}

// Ingest 解析或向量化失败时不写入任何行
func (i *Ingestor) Ingest(ctx context.Context, req IngestRequest) (*IngestReport, error) {
	if err := recordValidator.Struct(req); err != nil {
		return nil, err
	}
	if i.index == nil || !i.index.Ready() {
		return nil, apperrors.NewIndexUnavailableError("ingest", fmt.Errorf("similarity index not ready")).
			WithDetail("tenant_id", req.TenantID)
	}

	pages, err := i.chunker.extractor.ExtractPages(ctx, req.Content)
	if err != nil {
		return nil, withDocument(err, req)
	}
	pieces := i.chunker.Chunk(pages)

	report := &IngestReport{
		Pages:      len(pages),
		ChunkCount: len(pieces),
		Scheme:     string(i.chunker.Scheme()),
	}
	if len(pieces) == 0 {
		return nil, apperrors.NewDocumentParseError(fmt.Errorf("document has no extractable text")).
			WithDetail("tenant_id", req.TenantID).
			WithDetail("document_type", req.DocumentType)
	}

	texts := make([]string, len(pieces))
	total := 0
	for n, p := range pieces {
		texts[n] = p.Content
		total += len(p.Content)
	}
	report.AvgChunkSize = total / len(pieces)

	vectors, err := i.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, withDocument(err, req)
	}
	if len(vectors) != len(pieces) {
		return nil, apperrors.NewEmbeddingError(
			fmt.Sprintf("got %d vectors for %d chunks", len(vectors), len(pieces)), nil)
	}

	chunks := make([]Chunk, 0, len(pieces))
	for n, p := range pieces {
		chunk, err := NewChunk(req.TenantID, req.DocumentType, p.PageNumber, p.ChunkIndex, p.Content, vectors[n])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	replaced, err := i.replace(ctx, req, chunks)
	if err != nil {
		return nil, err
	}
	report.Replaced = replaced
	ingestedChunks.WithLabelValues("ok").Add(float64(len(chunks)))

	i.logger.Info("document ingested",
		zap.String("tenant_id", req.TenantID),
		zap.String("document_type", req.DocumentType),
		zap.Int("pages", report.Pages),
		zap.Int("chunks", report.ChunkCount),
		zap.Int64("replaced", replaced),
	)
	return report, nil
}

// replace 索引支持DocumentReplacer时整体替换；否则先删后写，写入失败需重新上传
func (i *Ingestor) replace(ctx context.Context, req IngestRequest, chunks []Chunk) (int64, error) {
	if replacer, ok := i.index.(DocumentReplacer); ok {
		replaced, err := replacer.ReplaceDocument(ctx, req.TenantID, req.DocumentType, chunks)
		if err != nil {
			ingestedChunks.WithLabelValues("error").Add(float64(len(chunks)))
			return 0, wrapIndexError("replace_document", req.TenantID, err).
				WithDetail("document_type", req.DocumentType).
				WithDetail("chunks", len(chunks))
		}
		return replaced, nil
	}

	replaced, err := i.index.DeleteDocument(ctx, req.TenantID, req.DocumentType)
	if err != nil {
		return 0, wrapIndexError("delete_document", req.TenantID, err).WithDetail("document_type", req.DocumentType)
	}
	if err := i.index.InsertBatch(ctx, chunks); err != nil {
		ingestedChunks.WithLabelValues("error").Add(float64(len(chunks)))
		return 0, wrapIndexError("insert_batch", req.TenantID, err).
			WithDetail("document_type", req.DocumentType).
			WithDetail("chunks", len(chunks))
	}
	return replaced, nil
}

func withDocument(err error, req IngestRequest) error {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.WithDetail("tenant_id", req.TenantID).WithDetail("document_type", req.DocumentType)
	}
	return err
}
