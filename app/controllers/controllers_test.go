package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/beego/beego/v2/server/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/neighbr/backend-go/internal/errors"
	"github.com/neighbr/backend-go/internal/knowledge"
	"github.com/neighbr/backend-go/internal/services"
)

type mockAnswerer struct {
	mock.Mock
}

func (m *mockAnswerer) Answer(ctx context.Context, tenantID, query string) (*services.Answer, error) {
	args := m.Called(ctx, tenantID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Answer), args.Error(1)
}

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Upload(ctx context.Context, req services.UploadRequest) (*services.UploadResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.UploadResult), args.Error(1)
}

func (m *mockIngestor) DeleteDocument(ctx context.Context, tenantID, documentType string) (int64, error) {
	args := m.Called(ctx, tenantID, documentType)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockIngestor) PurgeTenant(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func serve(r *web.ControllerRegister, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func pdfUpload(t *testing.T, path, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHealthController_Index(t *testing.T) {
	r := web.NewControllerRegister()
	r.Get("/", NewHealthController("1.0.0").Index)

	rec, body := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, RootMessage, body["message"])
}

func TestHealthController_Degraded(t *testing.T) {
	r := web.NewControllerRegister()
	hc := NewHealthController("1.0.0",
		ReadinessCheck{Name: "index", Ready: func() bool { return true }},
		ReadinessCheck{Name: "embedder", Ready: func() bool { return false }},
	)
	r.Get("/health", hc.Health)

	rec, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, true, components["index"])
	assert.Equal(t, false, components["embedder"])
}

func TestHealthController_Healthy(t *testing.T) {
	r := web.NewControllerRegister()
	r.Get("/health", NewHealthController("1.0.0",
		ReadinessCheck{Name: "index", Ready: func() bool { return true }},
	).Health)

	rec, body := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "1.0.0", body["version"])
}

func TestQueryController_QueryParams(t *testing.T) {
	answerer := new(mockAnswerer)
	answerer.On("Answer", mock.Anything, "HOA123", "When are dues due?").
		Return(&services.Answer{
			Text: "Monthly.",
			Sources: []services.Source{
				{DocumentType: "Bylaws", PageNumber: 1, ChunkIndex: 0, Content: "Dues are due monthly."},
			},
		}, nil)

	r := web.NewControllerRegister()
	r.Post("/query/answer_query", NewQueryController(answerer, nil).AnswerQuery)

	req := httptest.NewRequest(http.MethodPost, "/query/answer_query?query=When+are+dues+due%3F&hoa_code=HOA123", nil)
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Monthly.", body["answer"])
	sources := body["sources"].([]interface{})
	require.Len(t, sources, 1)
	assert.Equal(t, "Bylaws", sources[0].(map[string]interface{})["document_type"])
	answerer.AssertExpectations(t)
}

func TestQueryController_JSONBody(t *testing.T) {
	answerer := new(mockAnswerer)
	answerer.On("Answer", mock.Anything, "HOA123", "Can I park a boat?").
		Return(&services.Answer{Text: "No.", Sources: []services.Source{}}, nil)

	r := web.NewControllerRegister()
	r.Post("/query/answer_query", NewQueryController(answerer, nil).AnswerQuery)

	req := httptest.NewRequest(http.MethodPost, "/query/answer_query",
		strings.NewReader(`{"query":"Can I park a boat?","hoa_code":"HOA123"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "No.", body["answer"])
	answerer.AssertExpectations(t)
}

func TestQueryController_InvalidInput(t *testing.T) {
	answerer := new(mockAnswerer)
	answerer.On("Answer", mock.Anything, "", "anything").
		Return(nil, errors.NewInvalidInputError("hoa_code", "must not be empty"))

	r := web.NewControllerRegister()
	r.Post("/query/answer_query", NewQueryController(answerer, nil).AnswerQuery)

	rec, body := serve(r, httptest.NewRequest(http.MethodPost, "/query/answer_query?query=anything", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, string(errors.ErrCodeInvalidInput), body["code"])
}

func TestQueryController_GenerationErrorKeepsSources(t *testing.T) {
	answerer := new(mockAnswerer)
	answerer.On("Answer", mock.Anything, "HOA123", "dues?").
		Return(&services.Answer{
			Sources: []services.Source{{DocumentType: "Bylaws", PageNumber: 2, ChunkIndex: 1, Content: "Late fees apply."}},
		}, errors.NewGenerationError(stderrors.New("upstream 500")))

	r := web.NewControllerRegister()
	r.Post("/query/answer_query", NewQueryController(answerer, nil).AnswerQuery)

	rec, body := serve(r, httptest.NewRequest(http.MethodPost, "/query/answer_query?query=dues%3F&hoa_code=HOA123", nil))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errors.ErrCodeGeneration), body["code"])
	assert.Len(t, body["sources"], 1)
}

func TestQueryController_IndexUnavailable(t *testing.T) {
	answerer := new(mockAnswerer)
	answerer.On("Answer", mock.Anything, "HOA123", "dues?").
		Return(nil, errors.NewIndexUnavailableError("nearest", stderrors.New("connection refused")))

	r := web.NewControllerRegister()
	r.Post("/query/answer_query", NewQueryController(answerer, nil).AnswerQuery)

	rec, body := serve(r, httptest.NewRequest(http.MethodPost, "/query/answer_query?query=dues%3F&hoa_code=HOA123", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, string(errors.ErrCodeIndexUnavailable), body["code"])
	assert.Nil(t, body["sources"])
}

func TestDocumentController_UploadSync(t *testing.T) {
	ingestor := new(mockIngestor)
	ingestor.On("Upload", mock.Anything, mock.MatchedBy(func(req services.UploadRequest) bool {
		return req.TenantID == "HOA123" &&
			req.DocumentType == "Parking Rules" &&
			req.FileName == "rules.pdf" &&
			string(req.Content) == "%PDF-1.4"
	})).Return(&services.UploadResult{
		StorageKey: "HOA123/docs/parking_rules.pdf",
		Report: &knowledge.IngestReport{
			Pages:        1,
			ChunkCount:   2,
			AvgChunkSize: 120,
			Scheme:       string(knowledge.SchemePage),
		},
	}, nil)

	r := web.NewControllerRegister()
	r.Post("/upload/upload_pdf", NewDocumentController(ingestor, 0, nil).UploadPDF)

	req := pdfUpload(t, "/upload/upload_pdf", "rules.pdf", []byte("%PDF-1.4"), map[string]string{
		"hoa_code":      "HOA123",
		"document_type": "Parking Rules",
	})
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File uploaded and processed successfully", body["message"])
	assert.Equal(t, "HOA123/docs/parking_rules.pdf", body["path"])
	assert.EqualValues(t, 2, body["chunk_count"])
	assert.EqualValues(t, 120, body["avg_chunk_size"])
	ingestor.AssertExpectations(t)
}

func TestDocumentController_UploadAsync(t *testing.T) {
	ingestor := new(mockIngestor)
	ingestor.On("Upload", mock.Anything, mock.Anything).Return(&services.UploadResult{
		StorageKey: "HOA123/docs/bylaws.pdf",
		JobID:      "job-1",
		Queued:     true,
	}, nil)

	r := web.NewControllerRegister()
	r.Post("/upload/upload_pdf", NewDocumentController(ingestor, 0, nil).UploadPDF)

	req := pdfUpload(t, "/upload/upload_pdf", "bylaws.pdf", []byte("%PDF-1.4"), map[string]string{
		"hoa_code":      "HOA123",
		"document_type": "Bylaws",
	})
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "job-1", body["job_id"])
	assert.Nil(t, body["chunk_count"])
}

func TestDocumentController_UploadRejectsNonPDF(t *testing.T) {
	ingestor := new(mockIngestor)
	ingestor.On("Upload", mock.Anything, mock.Anything).
		Return(nil, errors.NewBusinessError(errors.ErrCodeInvalidFileFormat, "Only PDF files are allowed"))

	r := web.NewControllerRegister()
	r.Post("/upload/upload_pdf", NewDocumentController(ingestor, 0, nil).UploadPDF)

	req := pdfUpload(t, "/upload/upload_pdf", "notes.txt", []byte("hello"), map[string]string{
		"hoa_code":      "HOA123",
		"document_type": "Notes",
	})
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Only PDF files are allowed", body["error"])
}

func TestDocumentController_UploadMissingFile(t *testing.T) {
	ingestor := new(mockIngestor)
	r := web.NewControllerRegister()
	r.Post("/upload/upload_pdf", NewDocumentController(ingestor, 0, nil).UploadPDF)

	req := pdfUpload(t, "/upload/upload_pdf", "", nil, map[string]string{"hoa_code": "HOA123"})
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errors.ErrCodeInvalidInput), body["code"])
	ingestor.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestDocumentController_UploadTooLarge(t *testing.T) {
	ingestor := new(mockIngestor)
	r := web.NewControllerRegister()
	r.Post("/upload/upload_pdf", NewDocumentController(ingestor, 8, nil).UploadPDF)

	req := pdfUpload(t, "/upload/upload_pdf", "big.pdf", bytes.Repeat([]byte("x"), 64), map[string]string{
		"hoa_code":      "HOA123",
		"document_type": "Bylaws",
	})
	rec, body := serve(r, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, string(errors.ErrCodeFileTooLarge), body["code"])
	ingestor.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything)
}

func TestDocumentController_DeleteDocument(t *testing.T) {
	ingestor := new(mockIngestor)
	ingestor.On("DeleteDocument", mock.Anything, "HOA123", "Bylaws").Return(int64(4), nil)

	r := web.NewControllerRegister()
	r.Delete("/documents", NewDocumentController(ingestor, 0, nil).DeleteDocument)

	rec, body := serve(r, httptest.NewRequest(http.MethodDelete, "/documents?hoa_code=HOA123&document_type=Bylaws", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["deleted_chunks"])
	ingestor.AssertExpectations(t)
}

func TestDocumentController_PurgeCommunity(t *testing.T) {
	ingestor := new(mockIngestor)
	ingestor.On("PurgeTenant", mock.Anything, "HOA123").Return(int64(9), nil)

	r := web.NewControllerRegister()
	r.Delete("/admin/communities/:hoa_code", NewDocumentController(ingestor, 0, nil).PurgeCommunity)

	rec, body := serve(r, httptest.NewRequest(http.MethodDelete, "/admin/communities/HOA123", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 9, body["deleted_chunks"])
	ingestor.AssertExpectations(t)
}
