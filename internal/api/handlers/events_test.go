package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChunkSubmitter is a mock implementation of ChunkSubmitter
type MockChunkSubmitter struct {
	mock.Mock
}

func (m *MockChunkSubmitter) Submit(ctx context.Context, c domain.Chunk) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func validEventBody(t *testing.T) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(domain.Chunk{
		DocID:       "doc-1",
		ChunkID:     "doc-1_0",
		SourceURI:   "s3://raw-docs/a.txt",
		Text:        "chunk body",
		Language:    "en",
		ChunkIndex:  0,
		TotalChunks: 1,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestEventsHandler_Receive_AcksWith204(t *testing.T) {
	pipeline := new(MockChunkSubmitter)
	pipeline.On("Submit", mock.Anything, mock.MatchedBy(func(c domain.Chunk) bool {
		return c.ChunkID == "doc-1_0" && c.Text == "chunk body"
	})).Return(nil)

	handler := NewEventsHandler(pipeline)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/events", validEventBody(t))

	handler.Receive(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	pipeline.AssertExpectations(t)
}

func TestEventsHandler_Receive_MalformedEvent(t *testing.T) {
	pipeline := new(MockChunkSubmitter)
	pipeline.On("Submit", mock.Anything, mock.Anything).Return(domain.ErrMalformedChunkEvent)

	handler := NewEventsHandler(pipeline)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString(`{"docId":"doc-1"}`))

	handler.Receive(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEventsHandler_Receive_InvalidJSON(t *testing.T) {
	pipeline := new(MockChunkSubmitter)

	handler := NewEventsHandler(pipeline)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/events", bytes.NewBufferString("not json"))

	handler.Receive(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	pipeline.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestEventsHandler_Receive_PipelineClosed(t *testing.T) {
	pipeline := new(MockChunkSubmitter)
	pipeline.On("Submit", mock.Anything, mock.Anything).Return(domain.ErrAccumulatorClosed)

	handler := NewEventsHandler(pipeline)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/events", validEventBody(t))

	handler.Receive(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
