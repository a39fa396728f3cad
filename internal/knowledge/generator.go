package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// Generator 根据检索到的段落生成回答
type Generator interface {
	Generate(ctx context.Context, query string, passages []Chunk) (string, error)
}

// ChatClient go-openai中本包用到的部分
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGeneratorOptions 生成模型配置
type OpenAIGeneratorOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

const systemPrompt = "You answer questions from residents about their community's governing documents. " +
	"Use only the provided passages. If the passages do not contain the answer, say so. " +
	"Cite passages as [document, page n]."

// OpenAIGenerator 基于Chat Completions的生成器
type OpenAIGenerator struct {
	client      ChatClient
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
}

// NewOpenAIGenerator 创建生成器
func NewOpenAIGenerator(opts OpenAIGeneratorOptions) *OpenAIGenerator {
	config := openai.DefaultConfig(strings.TrimSpace(opts.APIKey))
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	return newOpenAIGenerator(openai.NewClientWithConfig(config), opts)
}

func newOpenAIGenerator(client ChatClient, opts OpenAIGeneratorOptions) *OpenAIGenerator {
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &OpenAIGenerator{
		client:      client,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		timeout:     opts.Timeout,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, query string, passages []Chunk) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(query, passages)},
		},
	})
	if err != nil {
		return "", apperrors.NewGenerationError(err).WithDetail("model", g.model)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationError(fmt.Errorf("empty completion"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// BuildPrompt 按顺序列出段落，然后附上问题
func BuildPrompt(query string, passages []Chunk) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	if len(passages) == 0 {
		b.WriteString("(none)\n")
	}
	for _, p := range passages {
		fmt.Fprintf(&b, "\n[%s, page %d]\n%s\n", p.DocumentType, p.PageNumber, p.Content)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(query))
	return b.String()
}
