package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/neighbr/backend-go/internal/auth"
	"github.com/neighbr/backend-go/internal/config"
	"github.com/neighbr/backend-go/internal/database"
	"github.com/neighbr/backend-go/internal/kafka"
	"github.com/neighbr/backend-go/internal/knowledge"
	"github.com/neighbr/backend-go/internal/services"
	"github.com/neighbr/backend-go/internal/storage"
)

const startupTimeout = 30 * time.Second

// RegisterProviders 注册所有依赖提供者
// 可选组件（数据库、Redis、Kafka、JWT）只在配置启用时注册
func RegisterProviders(container *dig.Container, cfg *config.Config, logger *zap.Logger) error {
	providers := []interface{}{
		func() *config.Config { return cfg },
		func() *zap.Logger { return logger },
		provideRedis,
		provideEmbedder,
		provideGenerator,
		provideChunker,
		provideSimilarityIndex,
		provideIngestor,
		provideRetriever,
		provideDocumentStore,
		provideQueryService,
		provideIngestionService,
	}

	if cfg.Knowledge.VectorStore.Provider == "postgres" {
		providers = append(providers, provideDatabase)
	}
	if cfg.Kafka.Enabled {
		providers = append(providers, provideProducer)
	}
	if cfg.Auth.Enabled {
		providers = append(providers, provideJWTService)
	}

	for _, provider := range providers {
		if err := container.Provide(provider); err != nil {
			return fmt.Errorf("register provider: %w", err)
		}
	}
	return nil
}

func provideDatabase(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	return database.Open(cfg.Database, logger.Named("database"))
}

// provideRedis Redis连接失败不阻塞启动，返回nil时查询向量不缓存
func provideRedis(cfg *config.Config, logger *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	client, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("Failed to initialize Redis, embedding cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func provideEmbedder(cfg *config.Config, client *redis.Client, logger *zap.Logger) knowledge.Embedder {
	embedder := knowledge.NewOpenAIEmbedder(knowledge.OpenAIEmbedderOptions{
		APIKey:     cfg.AI.OpenAIAPIKey,
		BaseURL:    cfg.AI.BaseURL,
		Model:      cfg.Knowledge.Embedding.Model,
		Dimensions: cfg.Knowledge.Embedding.Dimensions,
		BatchSize:  cfg.Knowledge.Embedding.BatchSize,
		Timeout:    cfg.Knowledge.Embedding.Timeout,
	})
	if !embedder.Ready() {
		logger.Warn("OPENAI_API_KEY not set, embedding requests will fail")
	}
	if client == nil {
		return embedder
	}
	return knowledge.NewCachedEmbedder(embedder, client, cfg.Knowledge.Embedding.Model,
		cfg.Knowledge.Embedding.CacheTTL, logger.Named("embedding_cache"))
}

func provideGenerator(cfg *config.Config) knowledge.Generator {
	return knowledge.NewOpenAIGenerator(knowledge.OpenAIGeneratorOptions{
		APIKey:      cfg.AI.OpenAIAPIKey,
		BaseURL:     cfg.AI.BaseURL,
		Model:       cfg.AI.ChatModel,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.AI.Timeout,
	})
}

func provideChunker(cfg *config.Config) (*knowledge.Chunker, error) {
	scheme, err := knowledge.ParseAddressingScheme(cfg.Knowledge.Addressing)
	if err != nil {
		return nil, err
	}
	extractor, err := knowledge.NewPDFExtractor(cfg.Knowledge.PDFLicenseKey)
	if err != nil {
		return nil, err
	}
	return knowledge.NewChunker(extractor, scheme, cfg.Knowledge.MaxChunkLength), nil
}

type indexParams struct {
	dig.In

	Config *config.Config
	Logger *zap.Logger
	DB     *gorm.DB `optional:"true"`
}

// provideSimilarityIndex 按 knowledge.vector_store.provider 选择实现
func provideSimilarityIndex(p indexParams) (knowledge.SimilarityIndex, error) {
	vs := p.Config.Knowledge.VectorStore
	switch vs.Provider {
	case "postgres":
		if p.DB == nil {
			return nil, fmt.Errorf("postgres vector store requires a database connection")
		}
		return knowledge.NewPostgresVectorStore(p.DB), nil
	case "milvus":
		ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
		defer cancel()
		return knowledge.NewMilvusVectorStore(ctx, knowledge.MilvusOptions{
			Address:          vs.Milvus.Address,
			Username:         vs.Milvus.Username,
			Password:         vs.Milvus.Password,
			CollectionPrefix: vs.Milvus.CollectionPrefix,
			VectorSize:       p.Config.Knowledge.Embedding.Dimensions,
		}, p.Logger.Named("milvus"))
	case "memory":
		p.Logger.Warn("Using in-memory vector store, embeddings are lost on restart")
		return knowledge.NewMemoryVectorStore(p.Config.Knowledge.Embedding.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown vector store provider %q", vs.Provider)
	}
}

func provideIngestor(chunker *knowledge.Chunker, embedder knowledge.Embedder, index knowledge.SimilarityIndex, logger *zap.Logger) *knowledge.Ingestor {
	return knowledge.NewIngestor(chunker, embedder, index, logger.Named("ingestor"))
}

func provideRetriever(chunker *knowledge.Chunker, index knowledge.SimilarityIndex, logger *zap.Logger) *knowledge.Retriever {
	// 检索与切分共用同一寻址方案
	return knowledge.NewRetriever(index, knowledge.NewExpansionPolicy(chunker.Scheme()), logger.Named("retriever"))
}

func provideDocumentStore(cfg *config.Config, logger *zap.Logger) (storage.DocumentStore, error) {
	switch cfg.Storage.Provider {
	case "minio":
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		return storage.NewMinIOStore(ctx, storage.MinIOOptions{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, logger.Named("minio"))
	default:
		return storage.NewLocalStore(cfg.Storage.BasePath)
	}
}

// provideProducer Kafka不可用时返回nil，上传退回同步入库
func provideProducer(cfg *config.Config, logger *zap.Logger) *kafka.Producer {
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
	if err != nil {
		logger.Warn("Failed to initialize Kafka producer, ingesting synchronously", zap.Error(err))
		return nil
	}
	return producer
}

func provideJWTService(cfg *config.Config) (*auth.JWTService, error) {
	return auth.NewJWTService(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.Expiration)
}

func provideQueryService(cfg *config.Config, embedder knowledge.Embedder, retriever *knowledge.Retriever, generator knowledge.Generator, logger *zap.Logger) *services.QueryService {
	return services.NewQueryService(embedder, retriever, generator, cfg.Knowledge.TopK, logger.Named("query"))
}

type ingestionParams struct {
	dig.In

	Store    storage.DocumentStore
	Ingestor *knowledge.Ingestor
	Index    knowledge.SimilarityIndex
	Producer *kafka.Producer `optional:"true"`
	Logger   *zap.Logger
}

func provideIngestionService(p ingestionParams) *services.IngestionService {
	var publisher services.JobPublisher
	if p.Producer != nil {
		publisher = p.Producer
	}
	return services.NewIngestionService(p.Store, p.Ingestor, p.Index, publisher, p.Logger.Named("ingestion"))
}
