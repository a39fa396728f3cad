package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	apperrors "github.com/neighbr/backend-go/internal/errors"
)

// MinIOOptions MinIO 连接参数
type MinIOOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Attempts 启动时检查 bucket 的重试次数
	Attempts int
}

// MinIOStore MinIO对象存储
type MinIOStore struct {
	client *minio.Client
	bucket string
	logger *zap.Logger
}

// NewMinIOStore 创建客户端并确保 bucket 存在
func NewMinIOStore(ctx context.Context, opts MinIOOptions, logger *zap.Logger) (*MinIOStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint not configured")
	}
	if opts.Bucket == "" {
		opts.Bucket = "neighbr-documents"
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 5
	}

	// minio.New 不接受协议前缀
	endpoint := strings.TrimPrefix(opts.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	store := &MinIOStore{client: client, bucket: opts.Bucket, logger: logger}
	if err := store.ensureBucket(ctx, opts.Attempts); err != nil {
		return nil, err
	}
	return store, nil
}

// ensureBucket MinIO 可能晚于服务启动，按递增间隔重试
func (s *MinIOStore) ensureBucket(ctx context.Context, attempts int) error {
	var exists bool
	var err error
	for i := 0; i < attempts; i++ {
		exists, err = s.client.BucketExists(ctx, s.bucket)
		if err == nil {
			break
		}
		if i < attempts-1 {
			wait := time.Second * time.Duration((i+1)*2)
			s.logger.Warn("MinIO connection attempt failed",
				zap.Int("attempt", i+1),
				zap.Duration("retry_in", wait),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return fmt.Errorf("failed to reach minio: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err != nil {
		code := minio.ToErrorResponse(err).Code
		if code == "BucketAlreadyOwnedByYou" || code == "BucketAlreadyExists" {
			return nil
		}
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("Created MinIO bucket", zap.String("bucket", s.bucket))
	return nil
}

// Bucket 当前使用的 bucket
func (s *MinIOStore) Bucket() string {
	return s.bucket
}

// Save 上传对象
func (s *MinIOStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Load 下载对象
func (s *MinIOStore) Load(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.translate(key, err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return nil, s.translate(key, err)
	}
	return data, nil
}

// Delete 删除对象，不存在时不报错
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix 列出前缀下的对象并逐个删除
func (s *MinIOStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	objectCh := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	count := 0
	for object := range objectCh {
		if object.Err != nil {
			return count, fmt.Errorf("failed to list %s: %w", prefix, object.Err)
		}
		if err := s.Delete(ctx, object.Key); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// HealthCheck 执行健康检查
func (s *MinIOStore) HealthCheck(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func (s *MinIOStore) translate(key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return apperrors.NewNotFoundError("document").WithDetail("key", key).WithCause(err)
	}
	return fmt.Errorf("failed to download %s: %w", key, err)
}
