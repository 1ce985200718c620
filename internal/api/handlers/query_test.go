package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedAnswerer emits a fixed event sequence, or fails before the
// first event.
type scriptedAnswerer struct {
	events []domain.AnswerEvent
	err    error

	received domain.Query
}

func (s *scriptedAnswerer) Answer(_ context.Context, q domain.Query, emit query.EmitFunc) error {
	s.received = q
	if s.err != nil {
		return s.err
	}
	for _, e := range s.events {
		if err := emit(e); err != nil {
			return err
		}
	}
	return nil
}

func decodeSSE(t *testing.T, body string) []domain.AnswerEvent {
	t.Helper()
	var events []domain.AnswerEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e domain.AnswerEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e))
		events = append(events, e)
	}
	return events
}

func TestQueryHandler_Ask_StreamsEvents(t *testing.T) {
	answerer := &scriptedAnswerer{events: []domain.AnswerEvent{
		{Fragment: "The answer"},
		{Fragment: " is 42."},
		{Done: true, Sources: []domain.Source{{URI: "s3://docs/a.txt", Score: 0.9}}, PromptVersion: "1.0.0"},
	}}

	handler := NewQueryHandler(answerer)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query",
		bytes.NewBufferString(`{"question":"What is the answer?","max_results":3,"temperature":0.2}`))

	handler.Ask(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := decodeSSE(t, w.Body.String())
	require.Len(t, events, 3)
	assert.Equal(t, "The answer", events[0].Fragment)
	assert.True(t, events[2].Done)
	assert.Equal(t, "1.0.0", events[2].PromptVersion)
	require.Len(t, events[2].Sources, 1)
	assert.Equal(t, "s3://docs/a.txt", events[2].Sources[0].URI)

	assert.Equal(t, "What is the answer?", answerer.received.Question)
	assert.Equal(t, 3, answerer.received.MaxResults)
	assert.InDelta(t, 0.2, answerer.received.Temperature, 0.001)
}

func TestQueryHandler_Ask_PreStreamErrorIsJSON(t *testing.T) {
	answerer := &scriptedAnswerer{err: domain.ErrEmptyQuestion}

	handler := NewQueryHandler(answerer)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":""}`))

	handler.Ask(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "question")
}

func TestQueryHandler_Ask_OracleDownPreStream(t *testing.T) {
	answerer := &scriptedAnswerer{err: domain.NewDomainError(domain.ErrCodeTransientOracle, "embedding failed")}

	handler := NewQueryHandler(answerer)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString(`{"question":"hi"}`))

	handler.Ask(w, r)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestQueryHandler_Ask_InvalidBody(t *testing.T) {
	handler := NewQueryHandler(&scriptedAnswerer{})
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/query", bytes.NewBufferString("not json"))

	handler.Ask(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
