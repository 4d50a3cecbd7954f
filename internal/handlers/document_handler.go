package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
)

// DocumentHandler serves stored processing outputs
type DocumentHandler struct {
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// NewDocumentHandler creates the document handler
func NewDocumentHandler(documents interfaces.DocumentStorage, logger arbor.ILogger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger,
	}
}

// ListHandler returns documents filtered by task, product code, or kind.
// GET /api/documents?task_id=&product_code=&kind=&limit=&offset=
func (h *DocumentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := &interfaces.DocumentListOptions{
		TaskID:      r.URL.Query().Get("task_id"),
		ProductCode: r.URL.Query().Get("product_code"),
		Kind:        r.URL.Query().Get("kind"),
		Limit:       queryInt(r, "limit", 50),
		Offset:      queryInt(r, "offset", 0),
	}

	docs, err := h.documents.ListDocuments(r.Context(), opts)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"count":     len(docs),
	})
}

// GetHandler returns a single document by id.
// GET /api/documents/{id}
func (h *DocumentHandler) GetHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	docID := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if docID == "" {
		WriteError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := h.documents.GetDocument(r.Context(), docID)
	if err != nil {
		WriteStoreError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, doc)
}
