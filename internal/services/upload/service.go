// -----------------------------------------------------------------------
// Upload Processor - pushes files and documents to object storage
// -----------------------------------------------------------------------

package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/libris/internal/common"
	"github.com/ternarybob/libris/internal/interfaces"
	"github.com/ternarybob/libris/internal/models"
	"golang.org/x/time/rate"
)

// Payload is the upload task request. Either a local file path or a stored
// document id must be provided.
type Payload struct {
	Path       string `json:"path,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
}

// Result reports where the object landed
type Result struct {
	ObjectKey string `json:"object_key"`
	Bucket    string `json:"bucket"`
}

// Processor uploads content to the configured OSS bucket
type Processor struct {
	config    common.OSSConfig
	documents interfaces.DocumentStorage
	limiter   *rate.Limiter
	logger    arbor.ILogger
}

// NewProcessor creates the upload processor. Uploads are throttled to the
// configured rate so bulk imports do not saturate the bucket.
func NewProcessor(config common.OSSConfig, documents interfaces.DocumentStorage, logger arbor.ILogger) *Processor {
	perSecond := config.UploadsPerSecond
	if perSecond <= 0 {
		perSecond = 5
	}
	return &Processor{
		config:    config,
		documents: documents,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:    logger,
	}
}

func (p *Processor) Type() string {
	return models.TaskTypeUpload
}

func (p *Processor) Validate(payload json.RawMessage) error {
	var req Payload
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}
	if req.Path == "" && req.DocumentID == "" {
		return models.NewValidationError("path", "either path or document_id is required")
	}
	if req.Path != "" && req.DocumentID != "" {
		return models.NewValidationError("path", "path and document_id are mutually exclusive")
	}
	if p.config.Endpoint == "" || p.config.Bucket == "" {
		return models.NewValidationError("payload", "object storage is not configured")
	}
	return nil
}

func (p *Processor) Execute(ctx context.Context, task *models.Task) (json.RawMessage, error) {
	var req Payload
	if err := json.Unmarshal(task.Payload, &req); err != nil {
		return nil, models.NewValidationError("payload", fmt.Sprintf("malformed payload: %v", err))
	}

	client, err := oss.New(p.config.Endpoint, p.config.AccessKeyID, p.config.AccessKeySecret)
	if err != nil {
		return nil, models.NewProcessingError("failed to create oss client", true, err)
	}
	bucket, err := client.Bucket(p.config.Bucket)
	if err != nil {
		return nil, models.NewProcessingError("failed to open oss bucket", true, err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, models.NewProcessingError("upload cancelled", false, err)
	}

	objectKey := req.ObjectKey
	if req.Path != "" {
		if objectKey == "" {
			objectKey = path.Base(req.Path)
		}
		objectKey = p.qualify(objectKey)
		if err := bucket.PutObjectFromFile(objectKey, req.Path); err != nil {
			return nil, models.NewProcessingError("oss upload failed", true, err)
		}
	} else {
		doc, gerr := p.documents.GetDocument(ctx, req.DocumentID)
		if gerr != nil {
			return nil, models.NewProcessingError(fmt.Sprintf("document %s not found", req.DocumentID), false, gerr)
		}
		if objectKey == "" {
			objectKey = fmt.Sprintf("%s/%s.%s", doc.ProductCode, doc.ID, extensionFor(doc.Kind))
		}
		objectKey = p.qualify(objectKey)
		if err := bucket.PutObject(objectKey, strings.NewReader(doc.Content)); err != nil {
			return nil, models.NewProcessingError("oss upload failed", true, err)
		}
	}

	p.logger.Info().
		Str("task_id", task.ID).
		Str("object_key", objectKey).
		Str("bucket", p.config.Bucket).
		Msg("Object uploaded")

	return json.Marshal(&Result{ObjectKey: objectKey, Bucket: p.config.Bucket})
}

// qualify anchors object keys under the configured base path
func (p *Processor) qualify(objectKey string) string {
	objectKey = strings.TrimPrefix(objectKey, "/")
	if p.config.BasePath == "" {
		return objectKey
	}
	base := strings.Trim(p.config.BasePath, "/")
	if !strings.HasPrefix(objectKey, base+"/") && objectKey != base {
		return base + "/" + objectKey
	}
	return objectKey
}

func extensionFor(kind string) string {
	switch kind {
	case models.DocumentKindMarkdown:
		return "md"
	default:
		return "json"
	}
}
