package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a file stored in S3 and attached to a scheme.
type Document struct {
	ID          uuid.UUID  `json:"id"`
	SchemeID    uuid.UUID  `json:"scheme_id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	FileName    string     `json:"file_name"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	S3Key       string     `json:"-"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
