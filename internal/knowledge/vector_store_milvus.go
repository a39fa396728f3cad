package knowledge

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address          string
	Username         string
	Password         string
	CollectionPrefix string
	VectorSize       int
	Timeout          time.Duration
}

const (
	milvusFieldID           = "id"
	milvusFieldDocumentType = "document_type"
	milvusFieldPageNumber   = "page_number"
	milvusFieldChunkIndex   = "chunk_index"
	milvusFieldContent      = "content"
	milvusFieldVector       = "vector"
)

// MilvusVectorStore 每个租户一个collection，度量为IP
type MilvusVectorStore struct {
	milvusClient     client.Client
	collectionPrefix string
	vectorSize       int
	logger           *zap.Logger
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(ctx context.Context, opts MilvusOptions, logger *zap.Logger) (*MilvusVectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.CollectionPrefix == "" {
		opts.CollectionPrefix = "chunks_"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 3072
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	milvusClient, err := client.NewClient(dialCtx, client.Config{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &MilvusVectorStore{
		milvusClient:     milvusClient,
		collectionPrefix: opts.CollectionPrefix,
		vectorSize:       opts.VectorSize,
		logger:           logger,
	}, nil
}

// collectionName 租户ID按十六进制编码，不同租户不会映射到同一个collection
func (s *MilvusVectorStore) collectionName(tenantID string) string {
	return milvusCollectionName(s.collectionPrefix, tenantID)
}

func milvusCollectionName(prefix, tenantID string) string {
	return prefix + hex.EncodeToString([]byte(tenantID))
}

func (s *MilvusVectorStore) ensureCollection(ctx context.Context, tenantID string) (string, error) {
	name := s.collectionName(tenantID)

	hasCollection, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return "", fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return name, nil
	}

	schema := &entity.Schema{
		CollectionName: name,
		Description:    fmt.Sprintf("document chunks of tenant %s", tenantID),
		Fields: []*entity.Field{
			{Name: milvusFieldID, DataType: entity.FieldTypeInt64, PrimaryKey: true, AutoID: true},
			{Name: milvusFieldDocumentType, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "100"}},
			{Name: milvusFieldPageNumber, DataType: entity.FieldTypeInt64},
			{Name: milvusFieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: milvusFieldContent, DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			{Name: milvusFieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(s.vectorSize)}},
		},
	}
	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return "", fmt.Errorf("failed to create collection: %w", err)
	}

	index, err := entity.NewIndexHNSW(entity.IP, 8, 64)
	if err != nil {
		return "", fmt.Errorf("failed to build index params: %w", err)
	}
	if err := s.milvusClient.CreateIndex(ctx, name, milvusFieldVector, index, false); err != nil {
		return "", fmt.Errorf("failed to create index for collection %s: %w", name, err)
	}
	return name, nil
}

// loadedCollection 返回已加载的collection名，不存在时ok为false
func (s *MilvusVectorStore) loadedCollection(ctx context.Context, tenantID string) (string, bool, error) {
	name := s.collectionName(tenantID)
	exists, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return "", false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return name, false, nil
	}
	if err := s.milvusClient.LoadCollection(ctx, name, false); err != nil {
		return "", false, fmt.Errorf("failed to load collection: %w", err)
	}
	return name, true, nil
}

func (s *MilvusVectorStore) Insert(ctx context.Context, chunk Chunk) error {
	return s.InsertBatch(ctx, []Chunk{chunk})
}

func (s *MilvusVectorStore) InsertBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	byTenant := make(map[string][]Chunk)
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return err
		}
		if len(c.Embedding) != s.vectorSize {
			return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(c.Embedding), s.vectorSize)
		}
		byTenant[c.TenantID] = append(byTenant[c.TenantID], c)
	}

	for tenantID, group := range byTenant {
		name, err := s.ensureCollection(ctx, tenantID)
		if err != nil {
			return err
		}

		docTypes := make([]string, len(group))
		pages := make([]int64, len(group))
		indexes := make([]int64, len(group))
		contents := make([]string, len(group))
		vectors := make([][]float32, len(group))
		for i, c := range group {
			docTypes[i] = c.DocumentType
			pages[i] = int64(c.PageNumber)
			indexes[i] = int64(c.ChunkIndex)
			contents[i] = c.Content
			vectors[i] = c.Embedding
		}

		_, err = s.milvusClient.Insert(ctx, name, "",
			entity.NewColumnVarChar(milvusFieldDocumentType, docTypes),
			entity.NewColumnInt64(milvusFieldPageNumber, pages),
			entity.NewColumnInt64(milvusFieldChunkIndex, indexes),
			entity.NewColumnVarChar(milvusFieldContent, contents),
			entity.NewColumnFloatVector(milvusFieldVector, s.vectorSize, vectors),
		)
		if err != nil {
			return fmt.Errorf("milvus insert failed: %w", err)
		}

		if err := s.milvusClient.Flush(ctx, name, false); err != nil {
			s.logger.Warn("milvus flush failed", zap.String("collection", name), zap.Error(err))
		}
	}
	return nil
}

// Nearest IP分数越大越相似，转换为距离时取负
func (s *MilvusVectorStore) Nearest(ctx context.Context, tenantID string, query []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("top_k must be at least 1")
	}
	if len(query) != s.vectorSize {
		return nil, fmt.Errorf("query dimension %d does not match collection dimension %d", len(query), s.vectorSize)
	}
	name, ok, err := s.loadedCollection(ctx, tenantID)
	if err != nil || !ok {
		return []Hit{}, err
	}

	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}
	searchResults, err := s.milvusClient.Search(
		ctx,
		name,
		[]string{},
		"",
		[]string{milvusFieldDocumentType, milvusFieldPageNumber, milvusFieldChunkIndex},
		[]entity.Vector{entity.FloatVector(query)},
		milvusFieldVector,
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return []Hit{}, nil
	}
	return hitsFromSearchResult(searchResults[0])
}

// hitsFromSearchResult 按距离升序返回
func hitsFromSearchResult(result client.SearchResult) ([]Hit, error) {
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}

	docTypes := varCharColumn(result.Fields, milvusFieldDocumentType)
	pages := int64Column(result.Fields, milvusFieldPageNumber)
	indexes := int64Column(result.Fields, milvusFieldChunkIndex)
	n := result.ResultCount
	if len(docTypes) < n || len(pages) < n || len(indexes) < n || len(result.Scores) < n {
		return nil, fmt.Errorf("milvus search returned misaligned columns")
	}

	hits := make([]Hit, 0, n)
	for i := 0; i < n; i++ {
		hits = append(hits, Hit{
			ChunkKey: ChunkKey{DocumentType: docTypes[i], PageNumber: int(pages[i]), ChunkIndex: int(indexes[i])},
			Distance: -float64(result.Scores[i]),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits, nil
}

func (s *MilvusVectorStore) FetchByKeys(ctx context.Context, tenantID string, keys []ChunkKey) ([]Chunk, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	name, ok, err := s.loadedCollection(ctx, tenantID)
	if err != nil || !ok {
		return nil, err
	}

	columns, err := s.milvusClient.Query(ctx, name, []string{}, keysExpr(keys),
		[]string{milvusFieldDocumentType, milvusFieldPageNumber, milvusFieldChunkIndex, milvusFieldContent})
	if err != nil {
		return nil, fmt.Errorf("milvus query failed: %w", err)
	}

	docTypes, pages, indexes, err := alignedPositions(columns)
	if err != nil {
		return nil, err
	}
	contents := varCharColumn(columns, milvusFieldContent)
	if len(contents) != len(docTypes) {
		return nil, fmt.Errorf("milvus query returned misaligned columns")
	}

	chunks := make([]Chunk, 0, len(docTypes))
	for i := range docTypes {
		chunks = append(chunks, Chunk{
			TenantID:     tenantID,
			DocumentType: docTypes[i],
			PageNumber:   int(pages[i]),
			ChunkIndex:   int(indexes[i]),
			Content:      contents[i],
		})
	}
	return chunks, nil
}

func (s *MilvusVectorStore) PageBounds(ctx context.Context, tenantID string, pages []PageRef) (map[PageRef]IndexBounds, error) {
	out := make(map[PageRef]IndexBounds, len(pages))
	if len(pages) == 0 {
		return out, nil
	}

	docTypes, pageNumbers, indexes, err := s.queryPositions(ctx, tenantID, pagesExpr(pages))
	if err != nil {
		return nil, err
	}
	for i := range docTypes {
		ref := PageRef{DocumentType: docTypes[i], PageNumber: int(pageNumbers[i])}
		out[ref] = widen(out[ref], int(indexes[i]))
	}
	return out, nil
}

func (s *MilvusVectorStore) DocumentBounds(ctx context.Context, tenantID string, documentTypes []string) (map[string]IndexBounds, error) {
	out := make(map[string]IndexBounds, len(documentTypes))
	if len(documentTypes) == 0 {
		return out, nil
	}

	docTypes, _, indexes, err := s.queryPositions(ctx, tenantID, documentTypesExpr(documentTypes))
	if err != nil {
		return nil, err
	}
	for i := range docTypes {
		out[docTypes[i]] = widen(out[docTypes[i]], int(indexes[i]))
	}
	return out, nil
}

func (s *MilvusVectorStore) queryPositions(ctx context.Context, tenantID, expr string) ([]string, []int64, []int64, error) {
	name, ok, err := s.loadedCollection(ctx, tenantID)
	if err != nil || !ok {
		return nil, nil, nil, err
	}
	columns, err := s.milvusClient.Query(ctx, name, []string{}, expr,
		[]string{milvusFieldDocumentType, milvusFieldPageNumber, milvusFieldChunkIndex})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("milvus query failed: %w", err)
	}
	return alignedPositions(columns)
}

// alignedPositions 三列长度不一致时返回错误
func alignedPositions(columns []entity.Column) ([]string, []int64, []int64, error) {
	docTypes := varCharColumn(columns, milvusFieldDocumentType)
	pages := int64Column(columns, milvusFieldPageNumber)
	indexes := int64Column(columns, milvusFieldChunkIndex)
	if len(pages) != len(docTypes) || len(indexes) != len(docTypes) {
		return nil, nil, nil, fmt.Errorf("milvus query returned misaligned columns")
	}
	return docTypes, pages, indexes, nil
}

// keysExpr PageNumber为0的key只按 (document_type, chunk_index) 匹配
func keysExpr(keys []ChunkKey) string {
	clauses := make([]string, 0, len(keys))
	for _, k := range keys {
		if k.PageNumber == 0 {
			clauses = append(clauses, fmt.Sprintf("(%s == %s && %s == %d)",
				milvusFieldDocumentType, strconv.Quote(k.DocumentType), milvusFieldChunkIndex, k.ChunkIndex))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("(%s == %s && %s == %d && %s == %d)",
			milvusFieldDocumentType, strconv.Quote(k.DocumentType),
			milvusFieldPageNumber, k.PageNumber, milvusFieldChunkIndex, k.ChunkIndex))
	}
	return strings.Join(clauses, " || ")
}

func pagesExpr(pages []PageRef) string {
	clauses := make([]string, 0, len(pages))
	for _, p := range pages {
		clauses = append(clauses, fmt.Sprintf("(%s == %s && %s == %d)",
			milvusFieldDocumentType, strconv.Quote(p.DocumentType), milvusFieldPageNumber, p.PageNumber))
	}
	return strings.Join(clauses, " || ")
}

func documentTypesExpr(documentTypes []string) string {
	quoted := make([]string, len(documentTypes))
	for i, d := range documentTypes {
		quoted[i] = strconv.Quote(d)
	}
	return fmt.Sprintf("%s in [%s]", milvusFieldDocumentType, strings.Join(quoted, ", "))
}

func documentTypeExpr(documentType string) string {
	return fmt.Sprintf("%s == %s", milvusFieldDocumentType, strconv.Quote(documentType))
}

func (s *MilvusVectorStore) DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error) {
	name, ok, err := s.loadedCollection(ctx, tenantID)
	if err != nil || !ok {
		return 0, err
	}

	expr := documentTypeExpr(documentType)
	columns, err := s.milvusClient.Query(ctx, name, []string{}, expr, []string{milvusFieldID})
	if err != nil {
		return 0, fmt.Errorf("milvus query failed: %w", err)
	}
	ids := int64Column(columns, milvusFieldID)
	if len(ids) == 0 {
		return 0, nil
	}

	if err := s.milvusClient.Delete(ctx, name, "", expr); err != nil {
		return 0, fmt.Errorf("milvus delete failed: %w", err)
	}
	if err := s.milvusClient.Flush(ctx, name, false); err != nil {
		s.logger.Warn("milvus flush after delete failed", zap.String("collection", name), zap.Error(err))
	}
	return int64(len(ids)), nil
}

func (s *MilvusVectorStore) DeleteTenant(ctx context.Context, tenantID string) (int64, error) {
	name := s.collectionName(tenantID)
	exists, err := s.milvusClient.HasCollection(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return 0, nil
	}

	var rows int64
	if stats, err := s.milvusClient.GetCollectionStatistics(ctx, name); err == nil {
		rows, _ = strconv.ParseInt(stats["row_count"], 10, 64)
	}
	if err := s.milvusClient.DropCollection(ctx, name); err != nil {
		return 0, fmt.Errorf("milvus drop collection failed: %w", err)
	}
	return rows, nil
}

func (s *MilvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

// Close 关闭客户端连接
func (s *MilvusVectorStore) Close() error {
	return s.milvusClient.Close()
}

func int64Column(columns []entity.Column, name string) []int64 {
	for _, col := range columns {
		if col.Name() != name {
			continue
		}
		if c, ok := col.(*entity.ColumnInt64); ok {
			return c.Data()
		}
	}
	return nil
}

func varCharColumn(columns []entity.Column, name string) []string {
	for _, col := range columns {
		if col.Name() != name {
			continue
		}
		if c, ok := col.(*entity.ColumnVarChar); ok {
			return c.Data()
		}
	}
	return nil
}
