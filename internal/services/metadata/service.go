// -----------------------------------------------------------------------
// Metadata Processor - imports book metadata from catalog exports
// -----------------------------------------------------------------------

package metadata

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

// Payload is the metadata task request
type Payload struct {
	Path      string `json:"path"`
	Delimiter string `json:"delimiter,omitempty"`
}

// Result summarizes a completed import
type Result struct {
	Count        int      `json:"count"`
	ProductCodes []string `json:"product_codes"`
}

// columnAliases maps well-known headers onto BookMeta fields
var columnAliases = map[string]string{
	"product_code": "product_code",
	"code":         "product_code",
	"产品编码":         "product_code",
	"title":        "title",
	"书名":           "title",
	"author":       "author",
	"作者":           "author",
	"publisher":    "publisher",
	"出版社":          "publisher",
	"isbn":         "isbn",
}

// Processor imports delimited catalog exports into metadata documents
type Processor struct {
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// NewProcessor creates the metadata processor
func NewProcessor(documents interfaces.DocumentStorage, logger arbor.ILogger) *Processor {
	return &Processor{
		documents: documents,
		logger:    logger,
	}
}

func (p *Processor) Type() string {
	return models.TaskTypeMetadata
}

func (p *Processor) Validate(payload json.RawMessage) error {
	var req Payload
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	if req.Path == "" {
		return models.NewValidationError("path", "catalog path is required")
	}
	if len(req.Delimiter) > 1 {
		return models.NewValidationError("delimiter", "delimiter must be a single character")
	}
	return nil
}

func (p *Processor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	var req Payload
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}

	books, err := p.parseCatalog(req.Path, req.Delimiter)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(books))
	for _, book := range books {
		content, err := json.Marshal(book)
		if err != nil {
			return nil, models.NewProcessingError("failed to encode book metadata", false, err)
		}
		doc := &models.Document{
			TaskID:      task.ID,
			ProductCode: book.ProductCode,
			Kind:        models.DocumentKindMetadata,
			Title:       book.Title,
			Content:     string(content),
			ContentType: "application/json",
		}
		if err := p.documents.SaveDocument(ctx, doc); err != nil {
			return nil, models.NewProcessingError("failed to persist book metadata", true, err)
		}
		codes = append(codes, book.ProductCode)
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Int("books", len(books)).
		Msg("Catalog imported")

	return json.Marshal(&Result{Count: len(books), ProductCodes: codes})
}

// parseCatalog reads the delimited export into book records. Rows without a
// product code are skipped, extra columns land in Fields.
func (p *Processor) parseCatalog(path, delimiter string) ([]*models.BookMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.NewProcessingError("failed to open catalog", false, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if delimiter != "" {
		reader.Comma = rune(delimiter[0])
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, models.NewProcessingError("failed to parse catalog", false, err)
	}
	if len(rows) < 2 {
		return nil, models.NewProcessingError("catalog has no data rows", false, nil)
	}

	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))
	}

	var books []*models.BookMeta
	for _, row := range rows[1:] {
		book := &models.BookMeta{Fields: make(map[string]string)}
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			value := strings.TrimSpace(cell)
			if value == "" {
				continue
			}
			switch columnAliases[header[i]] {
			case "product_code":
				book.ProductCode = value
			case "title":
				book.Title = value
			case "author":
				book.Author = value
			case "publisher":
				book.Publisher = value
			case "isbn":
				book.ISBN = value
			default:
				book.Fields[header[i]] = value
			}
		}
		if book.ProductCode == "" {
			p.logger.Warn().Msg("Catalog row missing product code, skipping")
			continue
		}
		books = append(books, book)
	}

	return books, nil
}
