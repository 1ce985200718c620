package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/domain"
	"github.com/quarrylabs/quarry/internal/query"
)

// Answerer runs the retrieval and generation pipeline for one question.
type Answerer interface {
	Answer(ctx context.Context, q domain.Query, emit query.EmitFunc) error
}

type QueryHandler struct {
	orchestrator Answerer
}

func NewQueryHandler(orchestrator Answerer) *QueryHandler {
	return &QueryHandler{orchestrator: orchestrator}
}

type QueryRequest struct {
	Question    string  `json:"question"`
	MaxResults  int     `json:"max_results,omitempty"`
	Temperature float32 `json:"temperature,omitempty"`
}

// Ask handles POST /query, streaming the answer as server-sent events.
// Headers are written lazily on the first event, so a failure before
// generation starts still gets a proper JSON error status.
func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	q := domain.Query{
		Question:    req.Question,
		MaxResults:  req.MaxResults,
		Temperature: req.Temperature,
	}

	stream := &sseStream{w: w, flusher: flusher}
	if err := h.orchestrator.Answer(r.Context(), q, stream.emit); err != nil {
		if !stream.started {
			api.HandleError(w, err)
		}
		return
	}
}

// sseStream writes answer events in text/event-stream framing.
type sseStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseStream) emit(e domain.AnswerEvent) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
