package knowledge

import (
	"context"
	"strings"
	"unicode"
)

// DefaultMaxChunkLength 默认最大分块长度（字符）
const DefaultMaxChunkLength = 1000

// Chunker 按页分块器
type Chunker struct {
	extractor PageExtractor
	scheme    AddressingScheme
	maxLength int
}

// NewChunker 创建分块器
func NewChunker(extractor PageExtractor, scheme AddressingScheme, maxLength int) *Chunker {
	if maxLength <= 0 {
		maxLength = DefaultMaxChunkLength
	}
	if scheme == "" {
		scheme = SchemePage
	}
	return &Chunker{
		extractor: extractor,
		scheme:    scheme,
		maxLength: maxLength,
	}
}

// Scheme 当前寻址方案
func (c *Chunker) Scheme() AddressingScheme {
	return c.scheme
}

// ExtractAndChunk 解析文档并分块
func (c *Chunker) ExtractAndChunk(ctx context.Context, data []byte) ([]PageChunk, error) {
	pages, err := c.extractor.ExtractPages(ctx, data)
	if err != nil {
		return nil, err
	}
	return c.Chunk(pages), nil
}

// Chunk 对按页文本分块。page方案下每页chunk_index从0开始，flat方案下整份文档连续编号
func (c *Chunker) Chunk(pages []string) []PageChunk {
	var out []PageChunk
	next := 0
	for i, raw := range pages {
		if c.scheme == SchemePage {
			next = 0
		}
		for _, content := range PackSentences(SplitSentences(NormalizeText(raw)), c.maxLength) {
			out = append(out, PageChunk{
				PageNumber: i + 1,
				ChunkIndex: next,
				Content:    content,
			})
			next++
		}
	}
	return out
}

// NormalizeText 合并连续空白，去除非ASCII和控制字符，并去掉首尾空白
func NormalizeText(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	pendingSpace := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			pendingSpace = true
		case r < 0x20 || r > 0x7e:
			// 丢弃
		default:
			if pendingSpace && builder.Len() > 0 {
				builder.WriteByte(' ')
			}
			pendingSpace = false
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

// SplitSentences 以 . ! ? 后跟空白作为句子边界
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
		default:
			continue
		}
		if !isSpace(text[i+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// PackSentences 贪心合并句子，句子不拆分；单句超长时独立成块
func PackSentences(sentences []string, maxLength int) []string {
	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range sentences {
		if current.Len() > 0 && current.Len()+len(sentence) > maxLength {
			flush()
		}
		current.WriteString(sentence)
		current.WriteByte(' ')
	}
	flush()
	return chunks
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}
