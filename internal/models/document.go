package models

import (
	"time"
)

// Document kinds persisted by processors
const (
	DocumentKindMarkdown = "markdown"
	DocumentKindOutline  = "outline"
	DocumentKindMetadata = "metadata"
	DocumentKindKeywords = "keywords"
)

// Document is a processor output persisted alongside the task record.
// Documents outlive their originating task, so results remain fetchable
// after the task record is evicted.
type Document struct {
	ID          string    `json:"id" badgerhold:"key"`
	TaskID      string    `json:"task_id" badgerhold:"index"`
	ProductCode string    `json:"product_code,omitempty" badgerhold:"index"`
	Kind        string    `json:"kind" badgerhold:"index"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	CreatedAt   time.Time `json:"created_at"`
}
