package keywords

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

type memDocs struct {
	docs map[string]*models.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]*models.Document)}
}

func (m *memDocs) SaveDocument(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = "doc_test"
	}
	m.docs[doc.ID] = doc
	return nil
}

func (m *memDocs) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	doc, ok := m.docs[docID]
	if !ok {
		return nil, interfaces.ErrDocumentNotFound
	}
	return doc, nil
}

func (m *memDocs) ListDocuments(ctx context.Context, opts *interfaces.DocumentListOptions) ([]*models.Document, error) {
	return nil, nil
}

func (m *memDocs) DeleteDocument(ctx context.Context, docID string) error {
	delete(m.docs, docID)
	return nil
}

func TestProcessorValidate(t *testing.T) {
	p := NewProcessor(newMemDocs(), arbor.NewLogger())

	assert.NoError(t, p.Validate(json.RawMessage(`{"text":"some text"}`)))
	assert.NoError(t, p.Validate(json.RawMessage(`{"document_id":"doc_1"}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{"text":"x","top_k":-1}`)))
	assert.Error(t, p.Validate(json.RawMessage(`not json`)))
}

func TestProcessorExtractsFromInlineText(t *testing.T) {
	p := NewProcessor(newMemDocs(), arbor.NewLogger())

	payload := json.RawMessage(`{"text":"badger storage badger index storage badger","top_k":3}`)
	task := models.NewTask("task_1", models.TaskTypeKeywords, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Keywords)
	assert.LessOrEqual(t, len(result.Keywords), 3)
	assert.Equal(t, "badger", result.Keywords[0].Word)
}

func TestProcessorStripsMarkdownSyntax(t *testing.T) {
	p := NewProcessor(newMemDocs(), arbor.NewLogger())

	payload := json.RawMessage(`{"text":"# Heading\n\nSome [linked](http://example.com) words about indexing and indexing again."}`)
	task := models.NewTask("task_1", models.TaskTypeKeywords, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	for _, kw := range result.Keywords {
		assert.NotContains(t, kw.Word, "http", "markdown link targets should not rank")
	}
}

func TestProcessorReadsStoredDocument(t *testing.T) {
	docs := newMemDocs()
	require.NoError(t, docs.SaveDocument(t.Context(), &models.Document{
		ID:          "doc_1",
		ProductCode: "123456-01",
		Kind:        models.DocumentKindMarkdown,
		Content:     "compaction merges sorted runs, compaction reclaims space, sorted runs",
	}))

	p := NewProcessor(docs, arbor.NewLogger())
	payload := json.RawMessage(`{"document_id":"doc_1"}`)
	task := models.NewTask("task_1", models.TaskTypeKeywords, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	require.NotEmpty(t, result.Keywords)

	// Results for a known product code are persisted alongside the source
	var saved *models.Document
	for _, doc := range docs.docs {
		if doc.Kind == models.DocumentKindKeywords {
			saved = doc
		}
	}
	require.NotNil(t, saved, "keywords document should be persisted")
	assert.Equal(t, "123456-01", saved.ProductCode)
}

func TestProcessorMissingDocument(t *testing.T) {
	p := NewProcessor(newMemDocs(), arbor.NewLogger())

	payload := json.RawMessage(`{"document_id":"doc_missing"}`)
	task := models.NewTask("task_1", models.TaskTypeKeywords, payload, 3)

	_, err := p.Execute(t.Context(), task)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}
