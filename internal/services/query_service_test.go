package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/knowledge"
)

const question = "When are dues due?"

func seededRetriever(t *testing.T) *knowledge.Retriever {
	t.Helper()
	index := knowledge.NewMemoryVectorStore(2)
	seed := []struct {
		page, idx int
		text      string
		vec       []float32
	}{
		{1, 0, "Dues are due monthly.", []float32{1, 0}},
		{1, 1, "Late fees apply.", []float32{0, 1}},
		{2, 0, "Pools close at 10.", []float32{0, 1}},
	}
	for _, s := range seed {
		chunk, err := knowledge.NewChunk("HOA123", "Bylaws", s.page, s.idx, s.text, s.vec)
		require.NoError(t, err)
		require.NoError(t, index.Insert(context.Background(), chunk))
	}
	return knowledge.NewRetriever(index, nil, nil)
}

func TestQueryService_Answer(t *testing.T) {
	embedder := new(MockEmbedder)
	generator := new(MockGenerator)
	embedder.On("EmbedOne", mock.Anything, question).Return([]float32{1, 0}, nil)
	generator.On("Generate", mock.Anything, question, mock.MatchedBy(func(p []knowledge.Chunk) bool {
		return len(p) == 2
	})).Return("Monthly, with late fees.", nil)

	svc := NewQueryService(embedder, seededRetriever(t), generator, 1, nil)
	answer, err := svc.Answer(context.Background(), "HOA123", question)
	require.NoError(t, err)

	assert.Equal(t, "Monthly, with late fees.", answer.Text)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, Source{DocumentType: "Bylaws", PageNumber: 1, ChunkIndex: 0, Content: "Dues are due monthly."}, answer.Sources[0])
	assert.Equal(t, 1, answer.Sources[1].ChunkIndex)
	embedder.AssertExpectations(t)
	generator.AssertExpectations(t)
}

func TestQueryService_GenerationErrorKeepsSources(t *testing.T) {
	embedder := new(MockEmbedder)
	generator := new(MockGenerator)
	embedder.On("EmbedOne", mock.Anything, question).Return([]float32{1, 0}, nil)
	generator.On("Generate", mock.Anything, question, mock.Anything).
		Return("", apperrors.NewGenerationError(errors.New("deadline exceeded")))

	svc := NewQueryService(embedder, seededRetriever(t), generator, 1, nil)
	answer, err := svc.Answer(context.Background(), "HOA123", question)

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeGeneration))
	require.NotNil(t, answer)
	assert.Empty(t, answer.Text)
	assert.Len(t, answer.Sources, 2)
}

func TestQueryService_UnknownTenantHasNoSources(t *testing.T) {
	embedder := new(MockEmbedder)
	generator := new(MockGenerator)
	embedder.On("EmbedOne", mock.Anything, question).Return([]float32{1, 0}, nil)
	generator.On("Generate", mock.Anything, question, mock.MatchedBy(func(p []knowledge.Chunk) bool {
		return len(p) == 0
	})).Return("I could not find that in your documents.", nil)

	svc := NewQueryService(embedder, seededRetriever(t), generator, 3, nil)
	answer, err := svc.Answer(context.Background(), "HOA999", question)
	require.NoError(t, err)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
}

func TestQueryService_BlankInput(t *testing.T) {
	embedder := new(MockEmbedder)
	generator := new(MockGenerator)
	svc := NewQueryService(embedder, seededRetriever(t), generator, 3, nil)

	_, err := svc.Answer(context.Background(), "HOA123", "   ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	_, err = svc.Answer(context.Background(), "", question)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))

	embedder.AssertNotCalled(t, "EmbedOne", mock.Anything, mock.Anything)
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueryService_EmbeddingError(t *testing.T) {
	embedder := new(MockEmbedder)
	generator := new(MockGenerator)
	embedder.On("EmbedOne", mock.Anything, question).
		Return(nil, apperrors.NewEmbeddingError("embedding request failed", errors.New("quota")))

	svc := NewQueryService(embedder, seededRetriever(t), generator, 3, nil)
	answer, err := svc.Answer(context.Background(), "HOA123", question)

	assert.Nil(t, answer)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbedding))
	generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}
