package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/api/handlers"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploadURLProvider struct {
	mock.Mock
}

func (m *MockUploadURLProvider) GenerateUploadURL(ctx context.Context, bucket, key, contentType string) (string, error) {
	args := m.Called(ctx, bucket, key, contentType)
	return args.String(0), args.Error(1)
}

type MockDocumentProcessor struct {
	mock.Mock
}

func (m *MockDocumentProcessor) ProcessObject(ctx context.Context, key, language string) (*ingest.IntakeResult, error) {
	args := m.Called(ctx, key, language)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ingest.IntakeResult), args.Error(1)
}

type MockChunkSubmitter struct {
	mock.Mock
}

func (m *MockChunkSubmitter) Submit(ctx context.Context, c domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

type MockTemplateReloader struct {
	mock.Mock
}

func (m *MockTemplateReloader) Reload(ctx context.Context) (domain.PromptTemplate, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.PromptTemplate), args.Error(1)
}

type fixedAnswerer struct {
	events []domain.AnswerEvent
	err    error
}

func (f *fixedAnswerer) Answer(_ context.Context, _ domain.Query, emit query.EmitFunc) error {
	if f.err != nil {
		return f.err
	}
	for _, e := range f.events {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

type routerMocks struct {
	uploads   *MockUploadURLProvider
	processor *MockDocumentProcessor
	pipeline  *MockChunkSubmitter
	templates *MockTemplateReloader
	answerer  *fixedAnswerer
	readiness ReadinessCheck
}

func setupRouter(m *routerMocks) http.Handler {
	cfg := RouterConfig{
		DocumentsHandler: handlers.NewDocumentsHandler(m.uploads, m.processor, "raw-docs"),
		EventsHandler:    handlers.NewEventsHandler(m.pipeline),
		QueryHandler:     handlers.NewQueryHandler(m.answerer),
		PromptsHandler:   handlers.NewPromptsHandler(m.templates),
		Readiness:        m.readiness,
	}
	return NewRouter(cfg)
}

func newRouterMocks() *routerMocks {
	return &routerMocks{
		uploads:   new(MockUploadURLProvider),
		processor: new(MockDocumentProcessor),
		pipeline:  new(MockChunkSubmitter),
		templates: new(MockTemplateReloader),
		answerer:  &fixedAnswerer{},
	}
}

func TestRouter_Healthz(t *testing.T) {
	router := setupRouter(newRouterMocks())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_Readyz(t *testing.T) {
	m := newRouterMocks()
	m.readiness = func(context.Context) error { return nil }
	router := setupRouter(m)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	m.readiness = func(context.Context) error { return errors.New("database unreachable") }
	router = setupRouter(m)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_DocumentUploadRoute(t *testing.T) {
	m := newRouterMocks()
	m.uploads.On("GenerateUploadURL", mock.Anything, "raw-docs", "a.txt", "text/plain").
		Return("https://storage.example/presigned", nil)
	router := setupRouter(m)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewBufferString(`{"filename":"a.txt"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	m.uploads.AssertExpectations(t)
}

func TestRouter_EventsRoute(t *testing.T) {
	m := newRouterMocks()
	m.pipeline.On("Submit", mock.Anything, mock.Anything).Return(nil)
	router := setupRouter(m)

	body := `{"docId":"doc-1","chunkId":"doc-1_0","sourceUri":"s3://raw-docs/a.txt","text":"body","language":"en","chunkIndex":0,"totalChunks":1}`
	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	m.pipeline.AssertExpectations(t)
}

func TestRouter_QueryRouteStreams(t *testing.T) {
	m := newRouterMocks()
	m.answerer.events = []domain.AnswerEvent{
		{Fragment: "hello"},
		{Done: true, Sources: []domain.Source{}, PromptVersion: "1.0.0"},
	}
	router := setupRouter(m)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"hi"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "data: "))
}

func TestRouter_PromptsReloadRoute(t *testing.T) {
	m := newRouterMocks()
	m.templates.On("Reload", mock.Anything).
		Return(domain.PromptTemplate{Version: "1.0.0", Template: "{context} {question}"}, nil)
	router := setupRouter(m)

	req := httptest.NewRequest(http.MethodPost, "/prompts/reload", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	m.templates.AssertExpectations(t)
}

func TestRouter_BodyLimit(t *testing.T) {
	router := setupRouter(newRouterMocks())

	req := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBuffer(make([]byte, 6*1024*1024)))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
