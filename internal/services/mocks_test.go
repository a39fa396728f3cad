package services

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/neighbr/backend-go/internal/kafka"
	"github.com/neighbr/backend-go/internal/knowledge"
)

// MockEmbedder 模拟向量化服务
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

func (m *MockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Dimensions() int { return 2 }
func (m *MockEmbedder) Ready() bool     { return true }

// MockGenerator 模拟生成模型
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, query string, passages []knowledge.Chunk) (string, error) {
	args := m.Called(ctx, query, passages)
	return args.String(0), args.Error(1)
}

// MockPublisher 模拟Kafka发布
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishIngestJob(job kafka.IngestJob) error {
	args := m.Called(job)
	return args.Error(0)
}

type stubExtractor struct {
	pages []string
	err   error
}

func (s *stubExtractor) ExtractPages(ctx context.Context, data []byte) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.pages, nil
}
