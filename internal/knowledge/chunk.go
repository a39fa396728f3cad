package knowledge

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var recordValidator = validator.New()

// Chunk 已索引的文本单元，写入后不再修改
type Chunk struct {
	TenantID     string    `json:"tenant_id" validate:"required"`
	DocumentType string    `json:"document_type" validate:"required"`
	PageNumber   int       `json:"page_number" validate:"gte=1"`
	ChunkIndex   int       `json:"chunk_index" validate:"gte=0"`
	Content      string    `json:"content" validate:"required"`
	Embedding    []float32 `json:"-"`
}

// NewChunk 构造并校验Chunk
func NewChunk(tenantID, documentType string, pageNumber, chunkIndex int, content string, embedding []float32) (Chunk, error) {
	chunk := Chunk{
		TenantID:     tenantID,
		DocumentType: documentType,
		PageNumber:   pageNumber,
		ChunkIndex:   chunkIndex,
		Content:      content,
		Embedding:    embedding,
	}
	if err := chunk.Validate(); err != nil {
		return Chunk{}, err
	}
	return chunk, nil
}

// Validate 校验字段约束
func (c Chunk) Validate() error {
	if err := recordValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid chunk %s/%d/%d: %w", c.DocumentType, c.PageNumber, c.ChunkIndex, err)
	}
	return nil
}

// Key 返回Chunk在租户内的地址
func (c Chunk) Key() ChunkKey {
	return ChunkKey{DocumentType: c.DocumentType, PageNumber: c.PageNumber, ChunkIndex: c.ChunkIndex}
}

// ChunkKey 租户内Chunk地址。PageNumber为0表示页码不参与寻址（flat方案）
type ChunkKey struct {
	DocumentType string `json:"document_type"`
	PageNumber   int    `json:"page_number"`
	ChunkIndex   int    `json:"chunk_index"`
}

// Matches 判断chunk是否命中该地址
func (k ChunkKey) Matches(c Chunk) bool {
	if k.DocumentType != c.DocumentType || k.ChunkIndex != c.ChunkIndex {
		return false
	}
	return k.PageNumber == 0 || k.PageNumber == c.PageNumber
}

func (k ChunkKey) String() string {
	if k.PageNumber == 0 {
		return fmt.Sprintf("%s#%d", k.DocumentType, k.ChunkIndex)
	}
	return fmt.Sprintf("%s@%d#%d", k.DocumentType, k.PageNumber, k.ChunkIndex)
}

// PageRef 文档中的一页
type PageRef struct {
	DocumentType string
	PageNumber   int
}

// IndexBounds 一组chunk_index的范围
type IndexBounds struct {
	Min   int
	Max   int
	Count int
}

// Hit 最近邻查询的一行结果，Distance越小越相似
type Hit struct {
	ChunkKey
	Distance float64
}

// PageChunk Chunker输出单元
type PageChunk struct {
	PageNumber int
	ChunkIndex int
	Content    string
}

func lessKey(a, b ChunkKey) bool {
	if a.DocumentType != b.DocumentType {
		return a.DocumentType < b.DocumentType
	}
	if a.PageNumber != b.PageNumber {
		return a.PageNumber < b.PageNumber
	}
	return a.ChunkIndex < b.ChunkIndex
}

// SortChunks 按 (document_type, page_number, chunk_index) 升序排列
func SortChunks(chunks []Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return lessKey(chunks[i].Key(), chunks[j].Key())
	})
}

// dedupKeys 去重并排序
func dedupKeys(keys []ChunkKey) []ChunkKey {
	seen := make(map[ChunkKey]struct{}, len(keys))
	out := make([]ChunkKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return lessKey(out[i], out[j]) })
	return out
}
