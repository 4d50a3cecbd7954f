package structure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
)

// Payload is the structure extraction request. A bare JSON string is also
// accepted and treated as the markdown body.
type Payload struct {
	Markdown    string `json:"markdown"`
	ProductCode string `json:"product_code,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Result is the structure extraction response envelope
type Result struct {
	Structure []*models.OutlineNode `json:"structure"`
}

// Processor runs structure extraction as a registered task type
type Processor struct {
	documents interfaces.DocumentStorage
	logger    arbor.ILogger
}

// NewProcessor creates a structure extraction processor. Document storage is
// optional; when present the outline is persisted for later retrieval.
func NewProcessor(documents interfaces.DocumentStorage, logger arbor.ILogger) *Processor {
	return &Processor{
		documents: documents,
		logger:    logger,
	}
}

func (p *Processor) Type() string {
	return models.TaskTypeStructure
}

func (p *Processor) Validate(payload json.RawMessage) error {
	req, err := DecodePayload(payload)
	if err != nil {
		return err
	}
	if req.Markdown == "" {
		return models.NewValidationError("markdown", "markdown content is required")
	}
	return nil
}

func (p *Processor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	req, err := DecodePayload(task.Payload)
	if err != nil {
		return nil, err
	}

	forest := Extract(req.Markdown)
	if forest == nil {
		forest = []*models.OutlineNode{}
	}

	result, err := json.Marshal(&Result{Structure: forest})
	if err != nil {
		return nil, models.NewProcessingError("failed to encode outline", false, err)
	}

	if p.documents != nil {
		doc := &models.Document{
			TaskID:      task.ID,
			ProductCode: req.ProductCode,
			Kind:        models.DocumentKindOutline,
			Title:       req.Title,
			Content:     string(result),
			ContentType: "application/json",
		}
		if err := p.documents.SaveDocument(ctx, doc); err != nil {
			return nil, models.NewProcessingError("failed to persist outline document", true, err)
		}
	}

	return result, nil
}

// DecodePayload accepts either the structured request object or a bare JSON
// string carrying the markdown body
func DecodePayload(payload json.RawMessage) (*Payload, error) {
	if len(payload) == 0 {
		return nil, models.NewValidationError("payload", "payload is required")
	}

	var raw string
	if err := json.Unmarshal(payload, &raw); err == nil {
		return &Payload{Markdown: raw}, nil
	}

	var req Payload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	return &req, nil
}
