package controllers

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"

	beecontext "github.com/beego/beego/v2/server/web/context"
	"go.uber.org/zap"

	"github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/services"
)

const (
	// DefaultMaxUploadSize 单个PDF的默认上限
	DefaultMaxUploadSize int64 = 32 << 20

	multipartMemory   int64 = 32 << 20
	multipartOverhead int64 = 1 << 20
)

// DocumentIngestor 文档入库服务
type DocumentIngestor interface {
	Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error)
	DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error)
	PurgeTenant(ctx context.Context, tenantID string) (int64, error)
}

// DocumentController 文档上传与删除
type DocumentController struct {
	documents     DocumentIngestor
	maxUploadSize int64
	logger        *zap.Logger
}

// NewDocumentController maxUploadSize 不大于0时使用默认值
func NewDocumentController(documents DocumentIngestor, maxUploadSize int64, logger *zap.Logger) *DocumentController {
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentController{
		documents:     documents,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// UploadPDF POST /api/v1/upload/upload_pdf
// multipart 字段: file, hoa_code, document_type
func (c *DocumentController) UploadPDF(ctx *beecontext.Context) {
	r := ctx.Request
	if r.MultipartForm == nil {
		r.Body = http.MaxBytesReader(ctx.ResponseWriter, r.Body, c.maxUploadSize+multipartOverhead)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			JSONError(ctx, c.logger, c.multipartError(err))
			return
		}
	}

	hoaCode := r.FormValue("hoa_code")
	documentType := r.FormValue("document_type")

	file, header, err := r.FormFile("file")
	if err != nil {
		JSONError(ctx, c.logger, errors.NewInvalidInputError("file", "a PDF file is required").WithCause(err))
		return
	}
	defer file.Close()

	if header.Size > c.maxUploadSize {
		JSONError(ctx, c.logger, c.tooLarge(header.Size))
		return
	}

	if err := authorizeTenant(ctx, hoaCode); err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	content, err := io.ReadAll(io.LimitReader(file, c.maxUploadSize+1))
	if err != nil {
		JSONError(ctx, c.logger, errors.NewBusinessError(errors.ErrCodeUploadFailed, "Failed to read uploaded file").WithCause(err))
		return
	}
	if int64(len(content)) > c.maxUploadSize {
		JSONError(ctx, c.logger, c.tooLarge(int64(len(content))))
		return
	}

	result, err := c.documents.Upload(r.Context(), services.UploadRequest{
		TenantID:     hoaCode,
		DocumentType: documentType,
		FileName:     header.Filename,
		Content:      content,
	})
	if err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	if result.Queued {
		JSON(ctx, http.StatusAccepted, map[string]interface{}{
			"message": "File uploaded and queued for processing",
			"path":    result.StorageKey,
			"job_id":  result.JobID,
		})
		return
	}

	body := map[string]interface{}{
		"message": "File uploaded and processed successfully",
		"path":    result.StorageKey,
	}
	if result.Report != nil {
		body["chunk_count"] = result.Report.ChunkCount
		body["avg_chunk_size"] = result.Report.AvgChunkSize
		body["pages"] = result.Report.Pages
		body["replaced"] = result.Report.Replaced
	}
	JSON(ctx, http.StatusOK, body)
}

// DeleteDocument DELETE /api/v1/documents?hoa_code=&document_type=
func (c *DocumentController) DeleteDocument(ctx *beecontext.Context) {
	hoaCode := ctx.Input.Query("hoa_code")
	documentType := ctx.Input.Query("document_type")

	if err := authorizeTenant(ctx, hoaCode); err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	deleted, err := c.documents.DeleteDocument(ctx.Request.Context(), hoaCode, documentType)
	if err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	JSON(ctx, http.StatusOK, map[string]interface{}{
		"message":        "Document deleted",
		"deleted_chunks": deleted,
	})
}

// PurgeCommunity DELETE /api/v1/admin/communities/:hoa_code
func (c *DocumentController) PurgeCommunity(ctx *beecontext.Context) {
	if err := authorizeAdmin(ctx); err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	hoaCode := ctx.Input.Param(":hoa_code")
	deleted, err := c.documents.PurgeTenant(ctx.Request.Context(), hoaCode)
	if err != nil {
		JSONError(ctx, c.logger, err)
		return
	}

	JSON(ctx, http.StatusOK, map[string]interface{}{
		"message":        "Community documents deleted",
		"deleted_chunks": deleted,
	})
}

func (c *DocumentController) multipartError(err error) *errors.AppError {
	var maxBytes *http.MaxBytesError
	if stderrors.As(err, &maxBytes) {
		return c.tooLarge(maxBytes.Limit)
	}
	return errors.NewValidationError("Request must be multipart/form-data").WithCause(err)
}

func (c *DocumentController) tooLarge(size int64) *errors.AppError {
	return errors.NewBusinessError(errors.ErrCodeFileTooLarge, "File exceeds the upload size limit").
		WithDetails(map[string]interface{}{
			"size":     size,
			"max_size": c.maxUploadSize,
		})
}
