package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/models"
	"github.com/ternarybob/libris/internal/services/structure"
)

// StructureHandler serves synchronous outline extraction. Small documents do
// not need the task queue round trip.
type StructureHandler struct {
	logger arbor.ILogger
}

// NewStructureHandler creates the structure handler
func NewStructureHandler(logger arbor.ILogger) *StructureHandler {
	return &StructureHandler{logger: logger}
}

// ExtractHandler parses markdown into a heading outline.
// POST /api/structure
func (h *StructureHandler) ExtractHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req struct {
		Markdown string `json:"markdown"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Markdown == "" {
		WriteError(w, http.StatusBadRequest, "markdown is required")
		return
	}

	forest := structure.Extract(req.Markdown)
	if forest == nil {
		forest = []*models.OutlineNode{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"structure": forest,
	})
}
