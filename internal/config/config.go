package config

import "time"

// Config 应用配置
type Config struct {
	App       AppConfig       `mapstructure:"app" validate:"required"`
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"ai" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge" validate:"required"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `mapstructure:"name" validate:"required"`
	Version string `mapstructure:"version" validate:"required"`
	Env     string `mapstructure:"env" validate:"required,oneof=development staging production"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadSize   int64         `mapstructure:"max_upload_size" validate:"gt=0"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr Redis地址
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// AuthConfig 认证配置
type AuthConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Secret     string        `mapstructure:"secret" validate:"required_if=Enabled true"`
	Issuer     string        `mapstructure:"issuer"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AIConfig 生成模型配置
type AIConfig struct {
	OpenAIAPIKey string        `mapstructure:"openai_api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	ChatModel    string        `mapstructure:"chat_model" validate:"required"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Temperature  float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Provider  string `mapstructure:"provider" validate:"required,oneof=minio local"`
	BasePath  string `mapstructure:"base_path"`
	Endpoint  string `mapstructure:"endpoint" validate:"required_if=Provider minio"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// KafkaConfig 异步入库配置
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// KnowledgeConfig 检索配置
type KnowledgeConfig struct {
	Addressing     string            `mapstructure:"addressing" validate:"required,oneof=page flat"`
	MaxChunkLength int               `mapstructure:"max_chunk_length" validate:"gt=0"`
	TopK           int               `mapstructure:"top_k" validate:"gte=1"`
	PDFLicenseKey  string            `mapstructure:"pdf_license_key"`
	Embedding      EmbeddingConfig   `mapstructure:"embedding"`
	VectorStore    VectorStoreConfig `mapstructure:"vector_store"`
}

// EmbeddingConfig 向量化配置
type EmbeddingConfig struct {
	Model      string        `mapstructure:"model" validate:"required"`
	Dimensions int           `mapstructure:"dimensions" validate:"gt=0"`
	BatchSize  int           `mapstructure:"batch_size" validate:"gt=0"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// VectorStoreConfig 相似度索引配置
type VectorStoreConfig struct {
	Provider string       `mapstructure:"provider" validate:"required,oneof=postgres memory milvus"`
	Milvus   MilvusConfig `mapstructure:"milvus"`
}

// MilvusConfig Milvus连接配置
type MilvusConfig struct {
	Address          string `mapstructure:"address"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}
