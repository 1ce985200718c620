package handlers

import (
	"context"
	"net/http"

	"github.com/quarrylabs/quarry/internal/api"
	"github.com/quarrylabs/quarry/internal/domain"
)

// TemplateReloader forces a fresh fetch of the prompt template.
type TemplateReloader interface {
	Reload(ctx context.Context) (domain.PromptTemplate, error)
}

type PromptsHandler struct {
	templates TemplateReloader
}

func NewPromptsHandler(templates TemplateReloader) *PromptsHandler {
	return &PromptsHandler{templates: templates}
}

type ReloadResponse struct {
	Version string `json:"version"`
}

// Reload handles POST /prompts/reload
func (h *PromptsHandler) Reload(w http.ResponseWriter, r *http.Request) {
	template, err := h.templates.Reload(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ReloadResponse{Version: template.Version})
}
