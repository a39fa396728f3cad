package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CachedEmbedder 用Redis缓存查询向量，缓存故障只记录日志
type CachedEmbedder struct {
	Embedder
	client *redis.Client
	model  string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedEmbedder 包装已有Embedder
func NewCachedEmbedder(inner Embedder, client *redis.Client, model string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedEmbedder{
		Embedder: inner,
		client:   client,
		model:    model,
		ttl:      ttl,
		logger:   logger,
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "embedding:" + c.model + ":" + hex.EncodeToString(sum[:])
}

// EmbedOne 先查缓存，未命中时调用上游并回写
func (c *CachedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := c.cacheKey(text)

	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var vec []float32
		if jsonErr := json.Unmarshal(raw, &vec); jsonErr == nil && len(vec) > 0 {
			embeddingCacheLookups.WithLabelValues("hit").Inc()
			return vec, nil
		}
		embeddingCacheLookups.WithLabelValues("error").Inc()
	case errors.Is(err, redis.Nil):
		embeddingCacheLookups.WithLabelValues("miss").Inc()
	default:
		embeddingCacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("embedding cache read failed", zap.Error(err))
	}

	vec, err := c.Embedder.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(vec); jsonErr == nil {
		if setErr := c.client.Set(ctx, key, payload, c.ttl).Err(); setErr != nil {
			c.logger.Warn("embedding cache write failed", zap.Error(setErr))
		}
	}
	return vec, nil
}
