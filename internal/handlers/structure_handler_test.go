package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/models"
)

func postStructure(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()

	handler := NewStructureHandler(arbor.NewLogger())
	req := httptest.NewRequest("POST", "/api/structure", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ExtractHandler(rec, req)
	return rec
}

func TestExtractHandlerReturnsForest(t *testing.T) {
	rec := postStructure(t, `{"markdown":"# A\ntext1\n## B\ntext2\n# C\ntext3"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Structure []*models.OutlineNode `json:"structure"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	require.Len(t, response.Structure, 2)
	assert.Equal(t, "A", response.Structure[0].Title)
	assert.Equal(t, "text1", response.Structure[0].Content)
	require.Len(t, response.Structure[0].Children, 1)
	assert.Equal(t, "B", response.Structure[0].Children[0].Title)
	assert.Equal(t, "C", response.Structure[1].Title)
}

func TestExtractHandlerRejectsMissingMarkdown(t *testing.T) {
	rec := postStructure(t, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postStructure(t, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractHandlerRequiresPost(t *testing.T) {
	handler := NewStructureHandler(arbor.NewLogger())
	req := httptest.NewRequest("GET", "/api/structure", nil)
	rec := httptest.NewRecorder()
	handler.ExtractHandler(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
