package errors

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrorTranslator 错误转换器
type ErrorTranslator struct{}

// NewErrorTranslator 创建错误转换器
func NewErrorTranslator() *ErrorTranslator {
	return &ErrorTranslator{}
}

// Translate 将各种类型的错误转换为AppError
func (t *ErrorTranslator) Translate(err error) *AppError {
	if err == nil {
		return nil
	}

	// 如果已经是AppError，直接返回
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}

	var validationErrors validator.ValidationErrors
	if stderrors.As(err, &validationErrors) {
		return t.translateValidationErrors(validationErrors)
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewSystemError(ErrCodeTimeout, "Request timed out").WithCause(err)
	}
	if stderrors.Is(err, context.Canceled) {
		return NewSystemError(ErrCodeBadRequest, "Request canceled").WithCause(err)
	}

	// 默认系统错误
	return NewSystemError(ErrCodeInternalServer, "Internal server error").WithCause(err)
}

// translateValidationErrors 转换验证错误
func (t *ErrorTranslator) translateValidationErrors(validationErrors validator.ValidationErrors) *AppError {
	details := make([]map[string]interface{}, 0, len(validationErrors))

	for _, fieldError := range validationErrors {
		details = append(details, map[string]interface{}{
			"field":   fieldError.Field(),
			"tag":     fieldError.Tag(),
			"message": t.getValidationErrorMessage(fieldError),
		})
	}

	return NewValidationError("Validation failed").
		WithDetails(map[string]interface{}{
			"errors": details,
		}).
		WithCause(validationErrors)
}

// getValidationErrorMessage 获取验证错误消息
func (t *ErrorTranslator) getValidationErrorMessage(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldError.Field())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fieldError.Field(), fieldError.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fieldError.Field(), fieldError.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fieldError.Field(), fieldError.Param())
	case "alphanum":
		return fmt.Sprintf("%s must contain only letters and digits", fieldError.Field())
	default:
		return fmt.Sprintf("%s failed on %s validation", fieldError.Field(), fieldError.Tag())
	}
}
