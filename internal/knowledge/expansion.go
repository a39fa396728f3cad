package knowledge

import (
	"context"
	"fmt"
	"sort"
)

// AddressingScheme chunk寻址方案，一个部署只使用一种
type AddressingScheme string

const (
	// SchemePage chunk_index在每页内从0开始
	SchemePage AddressingScheme = "page"
	// SchemeFlat chunk_index在整份文档内连续
	SchemeFlat AddressingScheme = "flat"
)

// ParseAddressingScheme 解析配置值
func ParseAddressingScheme(value string) (AddressingScheme, error) {
	switch AddressingScheme(value) {
	case SchemePage, "":
		return SchemePage, nil
	case SchemeFlat:
		return SchemeFlat, nil
	default:
		return "", fmt.Errorf("unknown addressing scheme %q", value)
	}
}

// ExpansionPolicy 将top-K命中扩展为带上下文的key集合
type ExpansionPolicy interface {
	Name() string
	Expand(ctx context.Context, index SimilarityIndex, tenantID string, hits []Hit) ([]ChunkKey, error)
}

// NewExpansionPolicy 根据寻址方案选择扩展策略
func NewExpansionPolicy(scheme AddressingScheme) ExpansionPolicy {
	if scheme == SchemeFlat {
		return FlatPolicy{}
	}
	return PageAwarePolicy{}
}

// PageAwarePolicy 页内相邻 + 跨页边界扩展
type PageAwarePolicy struct{}

func (PageAwarePolicy) Name() string { return string(SchemePage) }

// Expand 一次PageBounds查询取得所有命中页及其前后页的索引范围
func (PageAwarePolicy) Expand(ctx context.Context, index SimilarityIndex, tenantID string, hits []Hit) ([]ChunkKey, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	seen := make(map[PageRef]struct{}, len(hits)*3)
	pages := make([]PageRef, 0, len(hits)*3)
	for _, hit := range hits {
		for _, p := range []int{hit.PageNumber - 1, hit.PageNumber, hit.PageNumber + 1} {
			if p < 1 {
				continue
			}
			ref := PageRef{DocumentType: hit.DocumentType, PageNumber: p}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			pages = append(pages, ref)
		}
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].DocumentType != pages[j].DocumentType {
			return pages[i].DocumentType < pages[j].DocumentType
		}
		return pages[i].PageNumber < pages[j].PageNumber
	})

	bounds, err := index.PageBounds(ctx, tenantID, pages)
	if err != nil {
		return nil, fmt.Errorf("page bounds: %w", err)
	}

	var keys []ChunkKey
	for _, hit := range hits {
		keys = append(keys, expandPageAware(hit.ChunkKey, bounds)...)
	}
	return dedupKeys(keys), nil
}

// expandPageAware 单个命中的邻域（未去重）
//
// 页首chunk取上一页末尾和本页idx+1；页尾chunk取本页idx-1和下一页开头；
// 中间chunk取idx-1与idx+1。某页只有一个chunk时同时取上一页末尾和下一页开头。
func expandPageAware(hit ChunkKey, bounds map[PageRef]IndexBounds) []ChunkKey {
	keys := []ChunkKey{hit}

	current, ok := bounds[PageRef{DocumentType: hit.DocumentType, PageNumber: hit.PageNumber}]
	if !ok || current.Count == 0 {
		return keys
	}

	first := hit.ChunkIndex <= current.Min
	last := hit.ChunkIndex >= current.Max

	if first {
		prev := PageRef{DocumentType: hit.DocumentType, PageNumber: hit.PageNumber - 1}
		if b, ok := bounds[prev]; ok && b.Count > 0 {
			keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, PageNumber: prev.PageNumber, ChunkIndex: b.Max})
		}
	} else {
		keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, PageNumber: hit.PageNumber, ChunkIndex: hit.ChunkIndex - 1})
	}

	if last {
		next := PageRef{DocumentType: hit.DocumentType, PageNumber: hit.PageNumber + 1}
		if b, ok := bounds[next]; ok && b.Count > 0 {
			keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, PageNumber: next.PageNumber, ChunkIndex: b.Min})
		}
	} else {
		keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, PageNumber: hit.PageNumber, ChunkIndex: hit.ChunkIndex + 1})
	}
	return keys
}

// FlatPolicy 文档内连续编号的前后扩展
type FlatPolicy struct{}

func (FlatPolicy) Name() string { return string(SchemeFlat) }

// Expand 一次DocumentBounds查询取得所有命中文档的索引范围
func (FlatPolicy) Expand(ctx context.Context, index SimilarityIndex, tenantID string, hits []Hit) ([]ChunkKey, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	seen := make(map[string]struct{}, len(hits))
	docs := make([]string, 0, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentType]; ok {
			continue
		}
		seen[hit.DocumentType] = struct{}{}
		docs = append(docs, hit.DocumentType)
	}
	sort.Strings(docs)

	bounds, err := index.DocumentBounds(ctx, tenantID, docs)
	if err != nil {
		return nil, fmt.Errorf("document bounds: %w", err)
	}

	var keys []ChunkKey
	for _, hit := range hits {
		keys = append(keys, expandFlat(hit.ChunkKey, bounds)...)
	}
	return dedupKeys(keys), nil
}

// expandFlat 单个命中的邻域（未去重），页码不参与寻址
func expandFlat(hit ChunkKey, bounds map[string]IndexBounds) []ChunkKey {
	center := ChunkKey{DocumentType: hit.DocumentType, ChunkIndex: hit.ChunkIndex}
	keys := []ChunkKey{center}

	b, ok := bounds[hit.DocumentType]
	if !ok || b.Count == 0 {
		return keys
	}
	if hit.ChunkIndex-1 >= 0 {
		keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, ChunkIndex: hit.ChunkIndex - 1})
	}
	if hit.ChunkIndex+1 <= b.Max {
		keys = append(keys, ChunkKey{DocumentType: hit.DocumentType, ChunkIndex: hit.ChunkIndex + 1})
	}
	return keys
}
