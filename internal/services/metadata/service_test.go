package metadata

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

type memDocs struct {
	docs []*models.Document
}

func (m *memDocs) SaveDocument(ctx context.Context, doc *models.Document) error {
	m.docs = append(m.docs, doc)
	return nil
}

func (m *memDocs) GetDocument(ctx context.Context, docID string) (*models.Document, error) {
	return nil, interfaces.ErrDocumentNotFound
}

func (m *memDocs) ListDocuments(ctx context.Context, opts *interfaces.DocumentListOptions) ([]*models.Document, error) {
	return m.docs, nil
}

func (m *memDocs) DeleteDocument(ctx context.Context, docID string) error { return nil }

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestProcessorValidate(t *testing.T) {
	p := NewProcessor(&memDocs{}, arbor.NewLogger())

	assert.NoError(t, p.Validate(json.RawMessage(`{"path":"books.csv"}`)))
	assert.NoError(t, p.Validate(json.RawMessage(`{"path":"books.csv","delimiter":";"}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{"path":"books.csv","delimiter":";;"}`)))
}

func TestProcessorImportsCatalog(t *testing.T) {
	path := writeCatalog(t, `product_code,title,author,publisher,isbn,series
123456-01,First Book,Jane Doe,Acme Press,978-1-11111-111-1,Foundations
123456-02,Second Book,John Roe,Acme Press,978-1-11111-112-8,Foundations
`)

	docs := &memDocs{}
	p := NewProcessor(docs, arbor.NewLogger())

	payload, _ := json.Marshal(Payload{Path: path})
	task := models.NewTask("task_1", models.TaskTypeMetadata, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 2, result.Count)
	assert.Equal(t, []string{"123456-01", "123456-02"}, result.ProductCodes)

	require.Len(t, docs.docs, 2)
	var book models.BookMeta
	require.NoError(t, json.Unmarshal([]byte(docs.docs[0].Content), &book))
	assert.Equal(t, "123456-01", book.ProductCode)
	assert.Equal(t, "First Book", book.Title)
	assert.Equal(t, "Jane Doe", book.Author)
	assert.Equal(t, "Foundations", book.Fields["series"])
	assert.Equal(t, models.DocumentKindMetadata, docs.docs[0].Kind)
}

func TestProcessorSkipsRowsWithoutProductCode(t *testing.T) {
	path := writeCatalog(t, `product_code,title
123456-01,Kept
,Skipped
`)

	docs := &memDocs{}
	p := NewProcessor(docs, arbor.NewLogger())

	payload, _ := json.Marshal(Payload{Path: path})
	task := models.NewTask("task_1", models.TaskTypeMetadata, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 1, result.Count)
}

func TestProcessorCustomDelimiter(t *testing.T) {
	path := writeCatalog(t, "product_code;title\n123456-01;Semicolons\n")

	docs := &memDocs{}
	p := NewProcessor(docs, arbor.NewLogger())

	payload, _ := json.Marshal(Payload{Path: path, Delimiter: ";"})
	task := models.NewTask("task_1", models.TaskTypeMetadata, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, "Semicolons", docs.docs[0].Title)
}

func TestProcessorMissingFile(t *testing.T) {
	p := NewProcessor(&memDocs{}, arbor.NewLogger())

	payload, _ := json.Marshal(Payload{Path: filepath.Join(t.TempDir(), "nope.csv")})
	task := models.NewTask("task_1", models.TaskTypeMetadata, payload, 3)

	_, err := p.Execute(t.Context(), task)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}
