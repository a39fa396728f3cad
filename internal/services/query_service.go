package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	apperrors "github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/knowledge"
)

// Source 回答引用的段落
type Source struct {
	DocumentType string `json:"document_type"`
	PageNumber   int    `json:"page_number"`
	ChunkIndex   int    `json:"chunk_index"`
	Content      string `json:"content"`
}

// Answer 问答结果
type Answer struct {
	Text    string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// QueryService 问答编排：向量化问题 -> 检索 -> 生成
type QueryService struct {
	embedder  knowledge.Embedder
	retriever *knowledge.Retriever
	generator knowledge.Generator
	topK      int
	logger    *zap.Logger
}

// NewQueryService 创建问答服务
func NewQueryService(embedder knowledge.Embedder, retriever *knowledge.Retriever, generator knowledge.Generator, topK int, logger *zap.Logger) *QueryService {
	if topK < 1 {
		topK = knowledge.DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		topK:      topK,
		logger:    logger,
	}
}

// Answer 生成失败时仍返回已检索到的来源
func (s *QueryService) Answer(ctx context.Context, tenantID, query string) (*Answer, error) {
	tenantID = strings.TrimSpace(tenantID)
	query = strings.TrimSpace(query)
	if tenantID == "" {
		return nil, apperrors.NewInvalidInputError("hoa_code", "must not be empty")
	}
	if query == "" {
		return nil, apperrors.NewInvalidInputError("query", "must not be empty")
	}

	vector, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		answerRequests.WithLabelValues("embedding_error").Inc()
		return nil, err
	}

	passages, err := s.retriever.Retrieve(ctx, tenantID, vector, s.topK)
	if err != nil {
		answerRequests.WithLabelValues("retrieval_error").Inc()
		return nil, err
	}

	answer := &Answer{Sources: toSources(passages)}

	text, err := s.generator.Generate(ctx, query, passages)
	if err != nil {
		answerRequests.WithLabelValues("generation_error").Inc()
		s.logger.Warn("answer generation failed",
			zap.String("tenant_id", tenantID),
			zap.Int("sources", len(passages)),
			zap.Error(err))
		return answer, err
	}
	answer.Text = text
	answerRequests.WithLabelValues("ok").Inc()

	s.logger.Info("query answered",
		zap.String("tenant_id", tenantID),
		zap.Int("sources", len(passages)))
	return answer, nil
}

func toSources(chunks []knowledge.Chunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{
			DocumentType: c.DocumentType,
			PageNumber:   c.PageNumber,
			ChunkIndex:   c.ChunkIndex,
			Content:      c.Content,
		})
	}
	return sources
}
