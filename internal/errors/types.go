package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误
	ErrCodeInternalServer ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden      ErrorCode = "FORBIDDEN"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"

	// 验证错误
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeMissingRequired  ErrorCode = "MISSING_REQUIRED"

	// 业务逻辑错误
	ErrCodeResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"

	// 外部服务错误
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"

	// 文件处理错误
	ErrCodeFileTooLarge      ErrorCode = "FILE_TOO_LARGE"
	ErrCodeInvalidFileFormat ErrorCode = "INVALID_FILE_FORMAT"
	ErrCodeUploadFailed      ErrorCode = "UPLOAD_FAILED"

	// 检索核心错误
	ErrCodeDocumentParse    ErrorCode = "DOCUMENT_PARSE_ERROR"
	ErrCodeEmbedding        ErrorCode = "EMBEDDING_ERROR"
	ErrCodeIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeGeneration       ErrorCode = "GENERATION_ERROR"
)

// ErrorType 错误类型
type ErrorType int

const (
	ErrorTypeSystem ErrorType = iota
	ErrorTypeBusiness
	ErrorTypeValidation
	ErrorTypeExternal
)

// AppError 应用错误结构体
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Type     ErrorType              `json:"type"`
	HTTPCode int                    `json:"-"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Cause    error                  `json:"-"`
}

// Error 实现error接口
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails 合并错误详情
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail 添加单个详情字段
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	return e.WithDetails(map[string]interface{}{key: value})
}

// WithCause 添加错误原因
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// 错误构造函数

// NewSystemError 创建系统错误
func NewSystemError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeSystem,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewBusinessError 创建业务错误
func NewBusinessError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:     code,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: getHTTPCodeForError(code),
	}
}

// NewValidationError 创建验证错误
func NewValidationError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源未找到错误
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("%s not found", resource),
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusNotFound,
	}
}

// NewInvalidInputError 创建输入无效错误
func NewInvalidInputError(field, reason string) *AppError {
	return &AppError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("Invalid input for field '%s': %s", field, reason),
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusBadRequest,
		Details:  map[string]interface{}{"field": field},
	}
}

// NewUnauthorizedError 创建未认证错误
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Type:     ErrorTypeBusiness,
		HTTPCode: http.StatusUnauthorized,
	}
}

// NewDocumentParseError 文档字节无法解析，不自动重试
func NewDocumentParseError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeDocumentParse,
		Message:  "document could not be parsed",
		Type:     ErrorTypeValidation,
		HTTPCode: http.StatusUnprocessableEntity,
		Cause:    cause,
	}
}

// NewEmbeddingError 上游向量化调用失败，可由调用方退避重试
func NewEmbeddingError(message string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeEmbedding,
		Message:  message,
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// NewIndexUnavailableError 相似度索引不可达或未初始化
func NewIndexUnavailableError(operation string, cause error) *AppError {
	return &AppError{
		Code:     ErrCodeIndexUnavailable,
		Message:  fmt.Sprintf("similarity index unavailable during %s", operation),
		Type:     ErrorTypeSystem,
		HTTPCode: http.StatusServiceUnavailable,
		Details:  map[string]interface{}{"operation": operation},
		Cause:    cause,
	}
}

// NewGenerationError 下游生成模型调用失败
func NewGenerationError(cause error) *AppError {
	return &AppError{
		Code:     ErrCodeGeneration,
		Message:  "answer generation failed",
		Type:     ErrorTypeExternal,
		HTTPCode: http.StatusBadGateway,
		Cause:    cause,
	}
}

// getHTTPCodeForError 根据错误码获取HTTP状态码
func getHTTPCodeForError(code ErrorCode) int {
	switch code {
	case ErrCodeResourceNotFound, ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeAccessDenied, ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeValidationFailed, ErrCodeInvalidInput, ErrCodeMissingRequired,
		ErrCodeBadRequest, ErrCodeInvalidFileFormat:
		return http.StatusBadRequest
	case ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrCodeDocumentParse:
		return http.StatusUnprocessableEntity
	case ErrCodeEmbedding, ErrCodeGeneration, ErrCodeExternalService:
		return http.StatusBadGateway
	case ErrCodeIndexUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError 沿错误链查找AppError
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		appErr, ok := AsAppError(err)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// GetAppError 获取AppError，如果不是则包装为系统错误
func GetAppError(err error) *AppError {
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}
