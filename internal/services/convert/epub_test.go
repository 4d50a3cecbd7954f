package convert

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
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
	if doc.ID == "" {
		doc.ID = "doc_test"
	}
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

// writeTestEpub builds a minimal two-chapter EPUB archive
func writeTestEpub(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	files := map[string]string{
		"META-INF/container.xml": `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`,
		"OEBPS/content.opf": `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0">
  <manifest>
    <item id="ch1" href="chapter1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="chapter2.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`,
		"OEBPS/chapter1.xhtml": `<html><body><h1>Chapter One</h1><p>Opening words.</p></body></html>`,
		"OEBPS/chapter2.xhtml": `<html><body><h1>Chapter Two</h1><p>Closing words.</p></body></html>`,
		"OEBPS/images/cover.jpg": "not-really-a-jpeg",
	}
	for entryName, content := range files {
		entry, err := w.Create(entryName)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return path
}

func TestProductCodeFromFilename(t *testing.T) {
	assert.Equal(t, "123456-01", ProductCodeFromFilename("123456-01_some_title.epub"))
	assert.Equal(t, "654321-99", ProductCodeFromFilename("654321-99.epub"))
	assert.Equal(t, "", ProductCodeFromFilename("no_code_here.epub"))
	assert.Equal(t, "", ProductCodeFromFilename("12345-01_short.epub"))
}

func TestEpubProcessorValidate(t *testing.T) {
	p := NewEpubProcessor(&memDocs{}, arbor.NewLogger())

	assert.NoError(t, p.Validate(json.RawMessage(`{"path":"/books/123456-01.epub"}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{"path":"/books/file.txt"}`)))
	assert.Error(t, p.Validate(json.RawMessage(`not json`)))
}

func TestEpubProcessorConverts(t *testing.T) {
	path := writeTestEpub(t, "123456-01_title.epub")

	docs := &memDocs{}
	p := NewEpubProcessor(docs, arbor.NewLogger())

	payload, _ := json.Marshal(EpubPayload{Path: path})
	task := models.NewTask("task_1", models.TaskTypeConvert, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result EpubResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "123456-01", result.ProductCode)
	assert.Equal(t, 2, result.Chapters)
	assert.Equal(t, []string{"OEBPS/images/cover.jpg"}, result.Images)

	require.Len(t, docs.docs, 1)
	saved := docs.docs[0]
	assert.Equal(t, models.DocumentKindMarkdown, saved.Kind)
	assert.Equal(t, "123456-01", saved.ProductCode)
	assert.Contains(t, saved.Content, "Chapter One")
	assert.Contains(t, saved.Content, "Opening words.")
	assert.Contains(t, saved.Content, "Chapter Two")

	// Spine order is reading order
	assert.Less(t,
		strings.Index(saved.Content, "Chapter One"),
		strings.Index(saved.Content, "Chapter Two"))
}

func TestEpubProcessorExplicitProductCode(t *testing.T) {
	path := writeTestEpub(t, "untagged.epub")

	docs := &memDocs{}
	p := NewEpubProcessor(docs, arbor.NewLogger())

	payload, _ := json.Marshal(EpubPayload{Path: path, ProductCode: "999999-01"})
	task := models.NewTask("task_1", models.TaskTypeConvert, payload, 3)

	raw, err := p.Execute(t.Context(), task)
	require.NoError(t, err)

	var result EpubResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "999999-01", result.ProductCode)
}

func TestEpubProcessorMissingArchive(t *testing.T) {
	p := NewEpubProcessor(&memDocs{}, arbor.NewLogger())

	payload, _ := json.Marshal(EpubPayload{Path: filepath.Join(t.TempDir(), "nope.epub")})
	task := models.NewTask("task_1", models.TaskTypeConvert, payload, 3)

	_, err := p.Execute(t.Context(), task)
	require.Error(t, err)

	var perr *models.ProcessingError
	require.ErrorAs(t, err, &perr)
	assert.False(t, perr.Retryable)
}

func TestPDFProcessorValidate(t *testing.T) {
	p := NewPDFProcessor(&memDocs{}, arbor.NewLogger())

	assert.NoError(t, p.Validate(json.RawMessage(`{"path":"/books/123456-01.pdf"}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{}`)))
	assert.Error(t, p.Validate(json.RawMessage(`{"path":"/books/file.epub"}`)))
}
