package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/kafka"
	"github.com/neighbr/backend-go/internal/knowledge"
	"github.com/neighbr/backend-go/internal/storage"
)

var requestValidator = validator.New()

// JobPublisher 异步入库任务发布
type JobPublisher interface {
	PublishIngestJob(job kafka.IngestJob) error
}

// UploadRequest 上传请求
type UploadRequest struct {
	TenantID     string `validate:"required"`
	DocumentType string `validate:"required"`
	FileName     string `validate:"required"`
	Content      []byte `validate:"required"`
}

// UploadResult 上传结果，同步入库时带 Report，异步时带 JobID
type UploadResult struct {
	StorageKey string                  `json:"file_path"`
	JobID      string                  `json:"job_id,omitempty"`
	Queued     bool                    `json:"queued"`
	Report     *knowledge.IngestReport `json:"report,omitempty"`
}

// IngestionService 文档上传、入库与删除
type IngestionService struct {
	store     storage.DocumentStore
	ingestor  *knowledge.Ingestor
	index     knowledge.SimilarityIndex
	publisher JobPublisher
	logger    *zap.Logger
}

// NewIngestionService publisher 为 nil 时上传后同步入库
func NewIngestionService(store storage.DocumentStore, ingestor *knowledge.Ingestor, index knowledge.SimilarityIndex, publisher JobPublisher, logger *zap.Logger) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestionService{
		store:     store,
		ingestor:  ingestor,
		index:     index,
		publisher: publisher,
		logger:    logger,
	}
}

// Async 是否通过Kafka异步入库
func (s *IngestionService) Async() bool {
	return s.publisher != nil
}

// Upload 保存PDF并入库，同一文档类型重复上传会覆盖旧内容
func (s *IngestionService) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	mode := "sync"
	if s.Async() {
		mode = "async"
	}

	result, err := s.upload(ctx, req)
	if err != nil {
		uploadRequests.WithLabelValues(mode, "error").Inc()
		return nil, err
	}
	uploadRequests.WithLabelValues(mode, "ok").Inc()
	return result, nil
}

func (s *IngestionService) upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	req.TenantID = strings.TrimSpace(req.TenantID)
	req.DocumentType = strings.TrimSpace(req.DocumentType)
	if err := requestValidator.Struct(req); err != nil {
		return nil, apperrors.NewErrorTranslator().Translate(err)
	}
	if appErr := checkTenantID(req.TenantID); appErr != nil {
		return nil, appErr
	}
	if !strings.EqualFold(filepath.Ext(req.FileName), ".pdf") {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeInvalidFileFormat, "Only PDF files are allowed").
			WithDetail("file_name", req.FileName)
	}

	key := storage.DocumentKey(req.TenantID, req.DocumentType)
	if err := s.store.Save(ctx, key, req.Content, storage.ContentTypePDF); err != nil {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeUploadFailed, "Failed to store document").
			WithDetail("file_path", key).
			WithCause(err)
	}

	result := &UploadResult{StorageKey: key}

	if s.Async() {
		job := kafka.NewIngestJob(req.TenantID, req.DocumentType, key)
		if err := s.publisher.PublishIngestJob(job); err != nil {
			return nil, apperrors.NewSystemError(apperrors.ErrCodeExternalService, "Failed to queue ingest job").
				WithDetail("file_path", key).
				WithCause(err)
		}
		result.JobID = job.JobID
		result.Queued = true
		s.logger.Info("ingest job queued",
			zap.String("job_id", job.JobID),
			zap.String("tenant_id", req.TenantID),
			zap.String("document_type", req.DocumentType))
		return result, nil
	}

	report, err := s.ingestor.Ingest(ctx, knowledge.IngestRequest{
		TenantID:     req.TenantID,
		DocumentType: req.DocumentType,
		Content:      req.Content,
	})
	if err != nil {
		return nil, err
	}
	result.Report = report
	return result, nil
}

// Ingest 从文档存储读取字节后入库
func (s *IngestionService) Ingest(ctx context.Context, job kafka.IngestJob) (*knowledge.IngestReport, error) {
	if appErr := checkTenantID(job.TenantID); appErr != nil {
		return nil, appErr
	}
	data, err := s.store.Load(ctx, job.StorageKey)
	if err != nil {
		return nil, err
	}
	return s.ingestor.Ingest(ctx, knowledge.IngestRequest{
		TenantID:     job.TenantID,
		DocumentType: job.DocumentType,
		Content:      data,
	})
}

// HandleIngestEvent Kafka入库消息处理。无法恢复的错误直接确认，其余错误留待重投
func (s *IngestionService) HandleIngestEvent(ctx context.Context, message *sarama.ConsumerMessage) error {
	job, err := kafka.ParseIngestJob(message.Value)
	if err != nil {
		ingestEvents.WithLabelValues("dropped").Inc()
		s.logger.Error("dropping malformed ingest event",
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		return nil
	}

	report, err := s.Ingest(ctx, *job)
	if err != nil {
		if permanent(err) {
			ingestEvents.WithLabelValues("dropped").Inc()
			s.logger.Error("ingest job failed permanently",
				zap.String("job_id", job.JobID),
				zap.String("tenant_id", job.TenantID),
				zap.String("document_type", job.DocumentType),
				zap.Error(err))
			return nil
		}
		ingestEvents.WithLabelValues("retry").Inc()
		return fmt.Errorf("ingest job %s: %w", job.JobID, err)
	}

	ingestEvents.WithLabelValues("ok").Inc()
	s.logger.Info("ingest job completed",
		zap.String("job_id", job.JobID),
		zap.String("tenant_id", job.TenantID),
		zap.Int("chunks", report.ChunkCount))
	return nil
}

// permanent 重投也不会成功的错误
func permanent(err error) bool {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return true
	}
	return apperrors.HasCode(err, apperrors.ErrCodeDocumentParse) ||
		apperrors.HasCode(err, apperrors.ErrCodeResourceNotFound) ||
		apperrors.HasCode(err, apperrors.ErrCodeInvalidInput)
}

// DeleteDocument 删除文档的全部索引行及原始文件
func (s *IngestionService) DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	documentType = strings.TrimSpace(documentType)
	if appErr := checkTenantID(tenantID); appErr != nil {
		return 0, appErr
	}
	if documentType == "" {
		return 0, apperrors.NewInvalidInputError("document_type", "must not be empty")
	}

	deleted, err := s.index.DeleteDocument(ctx, tenantID, documentType)
	if err != nil {
		return 0, indexError("delete_document", tenantID, err).WithDetail("document_type", documentType)
	}
	if err := s.store.Delete(ctx, storage.DocumentKey(tenantID, documentType)); err != nil {
		s.logger.Warn("failed to delete stored document",
			zap.String("tenant_id", tenantID),
			zap.String("document_type", documentType),
			zap.Error(err))
	}

	s.logger.Info("document deleted",
		zap.String("tenant_id", tenantID),
		zap.String("document_type", documentType),
		zap.Int64("chunks", deleted))
	return deleted, nil
}

// PurgeTenant 社区删除时级联清理
func (s *IngestionService) PurgeTenant(ctx context.Context, tenantID string) (int64, error) {
	tenantID = strings.TrimSpace(tenantID)
	if appErr := checkTenantID(tenantID); appErr != nil {
		return 0, appErr
	}

	deleted, err := s.index.DeleteTenant(ctx, tenantID)
	if err != nil {
		return 0, indexError("delete_tenant", tenantID, err)
	}
	files, err := s.store.DeletePrefix(ctx, storage.TenantPrefix(tenantID))
	if err != nil {
		s.logger.Warn("failed to delete stored documents", zap.String("tenant_id", tenantID), zap.Error(err))
	}

	s.logger.Info("tenant purged",
		zap.String("tenant_id", tenantID),
		zap.Int64("chunks", deleted),
		zap.Int("files", files))
	return deleted, nil
}

// checkTenantID 租户ID会成为存储前缀，含路径分隔符时拒绝
func checkTenantID(tenantID string) *apperrors.AppError {
	if tenantID == "" {
		return apperrors.NewInvalidInputError("hoa_code", "must not be empty")
	}
	if err := storage.ValidateTenantID(tenantID); err != nil {
		return apperrors.NewInvalidInputError("hoa_code", "must not contain path separators").WithCause(err)
	}
	return nil
}

func indexError(operation, tenantID string, err error) *apperrors.AppError {
	if appErr, ok := apperrors.AsAppError(err); ok {
		return appErr.WithDetail("tenant_id", tenantID)
	}
	return apperrors.NewIndexUnavailableError(operation, err).WithDetail("tenant_id", tenantID)
}
