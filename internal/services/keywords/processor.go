// -----------------------------------------------------------------------
// Keywords Processor - ranks keywords for markdown or plain text
// -----------------------------------------------------------------------

package keywords

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const defaultTopK = 10

// Payload is the keywords task request. Either inline text or a stored
// document id must be provided.
type Payload struct {
	Text        string `json:"text,omitempty"`
	DocumentID  string `json:"document_id,omitempty"`
	ProductCode string `json:"product_code,omitempty"`
	TopK        int    `json:"top_k,omitempty"`
}

// Result holds the ranked keywords
type Result struct {
	Keywords []models.Keyword `json:"keywords"`
}

// Processor extracts ranked keywords from text
type Processor struct {
	documents interfaces.DocumentStorage
	markdown  goldmark.Markdown
	logger    arbor.ILogger
}

// NewProcessor creates the keywords processor
func NewProcessor(documents interfaces.DocumentStorage, logger arbor.ILogger) *Processor {
	return &Processor{
		documents: documents,
		markdown:  goldmark.New(),
		logger:    logger,
	}
}

func (p *Processor) Type() string {
	return models.TaskTypeKeywords
}

func (p *Processor) Validate(payload json.RawMessage) error {
	var req Payload
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	if req.Text == "" && req.DocumentID == "" {
		return models.NewValidationError("text", "either text or document_id is required")
	}
	if req.TopK < 0 {
		return models.NewValidationError("top_k", "top_k must not be negative")
	}
	return nil
}

func (p *Processor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	var req Payload
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}

	input := req.Text
	productCode := req.ProductCode
	if input == "" {
		doc, err := p.documents.GetDocument(ctx, req.DocumentID)
		if err != nil {
			return nil, models.NewProcessingError(fmt.Sprintf("document %s not found", req.DocumentID), false, err)
		}
		input = doc.Content
		if productCode == "" {
			productCode = doc.ProductCode
		}
	}

	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}

	plain := p.stripMarkdown(input)
	ranked := Rank(plain, topK)

	resultJSON, err := json.Marshal(&Result{Keywords: ranked})
	if err != nil {
		return nil, models.NewProcessingError("failed to encode keywords", false, err)
	}

	if p.documents != nil && productCode != "" {
		doc := &models.Document{
			TaskID:      task.ID,
			ProductCode: productCode,
			Kind:        models.DocumentKindKeywords,
			Title:       fmt.Sprintf("%s keywords", productCode),
			Content:     string(resultJSON),
			ContentType: "application/json",
		}
		if err := p.documents.SaveDocument(ctx, doc); err != nil {
			return nil, models.NewProcessingError("failed to persist keywords", true, err)
		}
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Int("keywords", len(ranked)).
		Msg("Keywords extracted")

	return resultJSON, nil
}

// stripMarkdown walks the parsed document and collects only text content,
// so heading markers, links, and code fences do not pollute the graph
func (p *Processor) stripMarkdown(source string) string {
	src := []byte(source)
	root := p.markdown.Parser().Parse(text.NewReader(src))

	var out []byte
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			out = append(out, node.Segment.Value(src)...)
			out = append(out, ' ')
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return string(out)
}
