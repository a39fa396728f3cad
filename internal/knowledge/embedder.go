package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// Embedder 定义文本向量化接口，失败时不返回部分结果
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 未配置API Key时的占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, apperrors.NewEmbeddingError("embedding provider not configured", nil)
}

func (n *NoopEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewEmbeddingError("embedding provider not configured", nil)
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// EmbeddingClient go-openai中本包用到的部分
type EmbeddingClient interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIEmbedderOptions OpenAI向量化配置
type OpenAIEmbedderOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
}

// OpenAIEmbedder 使用OpenAI Embedding API
type OpenAIEmbedder struct {
	client     EmbeddingClient
	model      string
	dimensions int
	batchSize  int
	timeout    time.Duration
}

// NewOpenAIEmbedder 创建OpenAI嵌入向量生成器，API Key为空时返回NoopEmbedder
func NewOpenAIEmbedder(opts OpenAIEmbedderOptions) Embedder {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}

	config := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	return newOpenAIEmbedder(openai.NewClientWithConfig(config), opts)
}

func newOpenAIEmbedder(client EmbeddingClient, opts OpenAIEmbedderOptions) *OpenAIEmbedder {
	model := opts.Model
	if model == "" {
		model = "text-embedding-3-large"
	}
	dims := opts.Dimensions
	if dims <= 0 {
		var ok bool
		if dims, ok = embeddingDimensions[model]; !ok {
			dims = 1536
		}
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 96
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIEmbedder{
		client:     client,
		model:      model,
		dimensions: dims,
		batchSize:  batchSize,
		timeout:    timeout,
	}
}

// Embed 分批调用，结果与输入顺序一致
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperrors.NewEmbeddingError(fmt.Sprintf("input %d is empty", i), nil)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := e.embedBatch(ctx, texts[start:end])
		if err != nil {
			embeddingRequests.WithLabelValues(e.model, "error").Inc()
			return nil, err
		}
		embeddingRequests.WithLabelValues(e.model, "ok").Inc()
		out = append(out, vectors...)
	}
	return out, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: batch,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingError("embedding request failed", err).
			WithDetail("model", e.model).
			WithDetail("batch_size", len(batch))
	}
	if len(resp.Data) != len(batch) {
		return nil, apperrors.NewEmbeddingError(
			fmt.Sprintf("embedding response has %d vectors for %d inputs", len(resp.Data), len(batch)), nil)
	}

	vectors := make([][]float32, len(batch))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(batch) || vectors[item.Index] != nil {
			return nil, apperrors.NewEmbeddingError(fmt.Sprintf("embedding response has invalid index %d", item.Index), nil)
		}
		if len(item.Embedding) != e.dimensions {
			return nil, apperrors.NewEmbeddingError(
				fmt.Sprintf("embedding dimension %d, expected %d", len(item.Embedding), e.dimensions), nil).
				WithDetail("model", e.model)
		}
		vec := make([]float32, len(item.Embedding))
		copy(vec, item.Embedding)
		vectors[item.Index] = vec
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Model 模型名称
func (e *OpenAIEmbedder) Model() string {
	return e.model
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
