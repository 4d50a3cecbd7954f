// -----------------------------------------------------------------------
// PDF Converter - extracts PDF text into markdown documents
// -----------------------------------------------------------------------

package convert

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

// PDFPayload is the pdf task request
type PDFPayload struct {
	Path        string `json:"path"`
	ProductCode string `json:"product_code,omitempty"`
}

// PDFResult summarizes a completed extraction
type PDFResult struct {
	ProductCode string `json:"product_code,omitempty"`
	DocumentID  string `json:"document_id"`
	Pages       int    `json:"pages"`
}

// PDFProcessor extracts text from PDF files into markdown documents
type PDFProcessor struct {
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
	tempDir   string
}

// NewPDFProcessor creates the pdf processor
func NewPDFProcessor(documents interfaces.DocumentStorage, logger arbor.ILogger) *PDFProcessor {
	return &PDFProcessor{
		documents: documents,
		logger:    logger,
		tempDir:   filepath.Join(os.TempDir(), "libris-pdf"),
	}
}

func (p *PDFProcessor) Type() string {
	return models.TaskTypePDF
}

func (p *PDFProcessor) Validate(payload json.RawMessage) error {
	var req PDFPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	if req.Path == "" {
		return models.NewValidationError("path", "pdf path is required")
	}
	if !strings.HasSuffix(strings.ToLower(req.Path), ".pdf") {
		return models.NewValidationError("path", "file must have .pdf extension")
	}
	return nil
}

func (p *PDFProcessor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	var req PDFPayload
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}

	productCode := req.ProductCode
	if productCode == "" {
		productCode = ProductCodeFromFilename(path.Base(req.Path))
	}

	text, pageCount, err := p.extractText(req.Path)
	if err != nil {
		return nil, err
	}

	doc := &models.Document{
		TaskID:      task.ID,
		ProductCode: productCode,
		Kind:        models.DocumentKindMarkdown,
		Title:       path.Base(req.Path),
		Content:     text,
		ContentType: "text/markdown",
	}
	if err := p.documents.SaveDocument(ctx, doc); err != nil {
		return nil, models.NewProcessingError("failed to persist pdf document", true, err)
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Str("product_code", productCode).
		Int("pages", pageCount).
		Msg("PDF extracted")

	return json.Marshal(&PDFResult{
		ProductCode: productCode,
		DocumentID:  doc.ID,
		Pages:       pageCount,
	})
}

// extractText pulls per-page content out of the PDF and joins it with page
// markers, oldest page first
func (p *PDFProcessor) extractText(pdfPath string) (string, int, error) {
	pdfCtx, err := api.ReadContextFile(pdfPath)
	if err != nil {
		return "", 0, models.NewProcessingError("failed to read pdf", false, err)
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(p.tempDir, uuid.New().String())
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", 0, models.NewProcessingError("failed to create extraction dir", true, err)
	}
	defer os.RemoveAll(outDir)

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(pdfPath, outDir, nil, conf); err != nil {
		return "", 0, models.NewProcessingError("failed to extract pdf content", false, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", 0, models.NewProcessingError("failed to read extraction dir", true, err)
	}

	type pageContent struct {
		page int
		text string
	}
	var pages []pageContent

	for _, entry := range entries {
		var pageNum int
		if _, err := fmt.Sscanf(entry.Name(), "Content_page_%d", &pageNum); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			p.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to read extracted page, skipping")
			continue
		}
		if text := strings.TrimSpace(string(data)); text != "" {
			pages = append(pages, pageContent{page: pageNum, text: text})
		}
	}

	sort.Slice(pages, func(i, j int) bool { return pages[i].page < pages[j].page })

	var sb strings.Builder
	for i, pc := range pages {
		if i > 0 {
			sb.WriteString(fmt.Sprintf("\n\n--- Page %d ---\n\n", pc.page))
		}
		sb.WriteString(pc.text)
	}

	return sb.String(), pageCount, nil
}
