package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode_WrappedChain(t *testing.T) {
	root := stderrors.New("connection refused")
	err := fmt.Errorf("retrieve: %w", NewIndexUnavailableError("nearest", root))

	assert.True(t, HasCode(err, ErrCodeIndexUnavailable))
	assert.False(t, HasCode(err, ErrCodeEmbedding))
	assert.ErrorIs(t, err, root)
}

func TestHasCode_NestedAppError(t *testing.T) {
	inner := NewEmbeddingError("embedding request failed", stderrors.New("quota"))
	outer := NewSystemError(ErrCodeInternalServer, "ingest failed").WithCause(inner)

	assert.True(t, HasCode(outer, ErrCodeEmbedding))
	assert.True(t, HasCode(outer, ErrCodeInternalServer))
}

func TestConstructors_HTTPCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		code int
	}{
		{NewDocumentParseError(nil), http.StatusUnprocessableEntity},
		{NewEmbeddingError("x", nil), http.StatusBadGateway},
		{NewIndexUnavailableError("insert", nil), http.StatusServiceUnavailable},
		{NewGenerationError(nil), http.StatusBadGateway},
		{NewValidationError("bad"), http.StatusBadRequest},
		{NewNotFoundError("document"), http.StatusNotFound},
		{NewBusinessError(ErrCodeInvalidFileFormat, "pdf only"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.HTTPCode, string(tc.err.Code))
	}
}

func TestWithDetails_Merges(t *testing.T) {
	err := NewIndexUnavailableError("fetch_by_keys", nil).
		WithDetails(map[string]interface{}{"tenant_id": "HOA123456"}).
		WithDetail("keys", 3)

	assert.Equal(t, "fetch_by_keys", err.Details["operation"])
	assert.Equal(t, "HOA123456", err.Details["tenant_id"])
	assert.Equal(t, 3, err.Details["keys"])
}

func TestTranslate_ValidationErrors(t *testing.T) {
	type request struct {
		Query string `validate:"required"`
	}
	verr := validator.New().Struct(request{})
	require.Error(t, verr)

	appErr := NewErrorTranslator().Translate(fmt.Errorf("bind: %w", verr))
	assert.Equal(t, ErrCodeValidationFailed, appErr.Code)
	details, ok := appErr.Details["errors"].([]map[string]interface{})
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "Query", details[0]["field"])
	assert.Equal(t, "Query is required", details[0]["message"])
}

func TestGetAppError_WrapsPlainError(t *testing.T) {
	appErr := GetAppError(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternalServer, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPCode)
}
