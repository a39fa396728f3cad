package knowledge

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// DefaultTopK 默认最近邻数量
const DefaultTopK = 3

// Retriever 上下文扩展检索器
type Retriever struct {
	index  SimilarityIndex
	policy ExpansionPolicy
	logger *zap.Logger
}

// NewRetriever 创建检索器
func NewRetriever(index SimilarityIndex, policy ExpansionPolicy, logger *zap.Logger) *Retriever {
	if policy == nil {
		policy = PageAwarePolicy{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		index:  index,
		policy: policy,
		logger: logger,
	}
}

// Policy 当前扩展策略
func (r *Retriever) Policy() ExpansionPolicy {
	return r.policy
}

// Retrieve 最近邻 -> 邻域扩展 -> 批量取内容，结果按 (document_type, page_number, chunk_index) 排序
func (r *Retriever) Retrieve(ctx context.Context, tenantID string, query []float32, topK int) (chunks []Chunk, err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		retrievalDuration.WithLabelValues(r.policy.Name(), status).Observe(time.Since(start).Seconds())
	}()

	if tenantID == "" {
		return nil, apperrors.NewInvalidInputError("tenant_id", "must not be empty")
	}
	if topK < 1 {
		return nil, apperrors.NewInvalidInputError("top_k", "must be at least 1")
	}
	if len(query) == 0 {
		return nil, apperrors.NewInvalidInputError("query_embedding", "must not be empty")
	}
	if r.index == nil || !r.index.Ready() {
		return nil, apperrors.NewIndexUnavailableError("retrieve", fmt.Errorf("similarity index not ready")).
			WithDetail("tenant_id", tenantID)
	}

	hits, err := r.index.Nearest(ctx, tenantID, query, topK)
	if err != nil {
		return nil, wrapIndexError("nearest", tenantID, err).WithDetail("top_k", topK)
	}
	retrievalChunks.WithLabelValues("hits").Observe(float64(len(hits)))
	if len(hits) == 0 {
		return []Chunk{}, nil
	}

	keys, err := r.policy.Expand(ctx, r.index, tenantID, hits)
	if err != nil {
		return nil, wrapIndexError("expand", tenantID, err).WithDetail("policy", r.policy.Name())
	}
	retrievalChunks.WithLabelValues("expanded").Observe(float64(len(keys)))

	fetched, err := r.index.FetchByKeys(ctx, tenantID, keys)
	if err != nil {
		return nil, wrapIndexError("fetch_by_keys", tenantID, err).WithDetail("keys", len(keys))
	}

	chunks = dedupChunks(fetched)
	SortChunks(chunks)
	retrievalChunks.WithLabelValues("returned").Observe(float64(len(chunks)))

	r.logger.Debug("retrieval completed",
		zap.String("tenant_id", tenantID),
		zap.String("policy", r.policy.Name()),
		zap.Int("hits", len(hits)),
		zap.Int("expanded", len(keys)),
		zap.Int("returned", len(chunks)),
	)
	return chunks, nil
}

// wrapIndexError 保留已有的AppError，其它错误视为索引不可用
func wrapIndexError(operation, tenantID string, err error) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.WithDetail("tenant_id", tenantID)
	}
	return apperrors.NewIndexUnavailableError(operation, err).WithDetail("tenant_id", tenantID)
}

// dedupChunks 重复写入的行只保留第一条
func dedupChunks(chunks []Chunk) []Chunk {
	seen := make(map[ChunkKey]struct{}, len(chunks))
	out := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		k := c.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}
