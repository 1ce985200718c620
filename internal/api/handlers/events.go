package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/domain"
)

// ChunkSubmitter accepts chunk events into the ingestion pipeline.
type ChunkSubmitter interface {
	Submit(ctx context.Context, c domain.Chunk) error
}

// EventsHandler is the push delivery surface for chunk-processing
// events. A 204 is the acknowledgment; anything else leaves the event
// unacknowledged at the sender.
type EventsHandler struct {
	pipeline ChunkSubmitter
}

func NewEventsHandler(pipeline ChunkSubmitter) *EventsHandler {
	return &EventsHandler{pipeline: pipeline}
}

// Receive handles POST /events
func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var c domain.Chunk
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid event body")
		return
	}

	if err := h.pipeline.Submit(r.Context(), c); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
