package image

import (
	"time"

	"github.com/google/uuid"
)

// UploadForm holds the non-file multipart fields of POST /
type UploadForm struct {
	Alt string `form:"alt" validate:"max=500"`
}

// UploadInput is what the handler hands the upload orchestrator
type UploadInput struct {
	Data         []byte
	ContentType  string
	OriginalName string
	Alt          string
}

// RecordResponse represents a record in API responses
type RecordResponse struct {
	ID         uuid.UUID   `json:"id"`
	URL        string      `json:"url"`
	Alt        string      `json:"alt"`
	Filename   string      `json:"filename"`
	UploadedAt time.Time   `json:"uploadedAt"`
	FileSize   int64       `json:"fileSize"`
	MimeType   string      `json:"mimeType"`
	Dimensions *Dimensions `json:"dimensions"`
	IsActive   bool        `json:"isActive"`
	Order      int         `json:"order"`
}

// RecordResponseFromEntity converts entity to response DTO
func RecordResponseFromEntity(r *Record) *RecordResponse {
	return &RecordResponse{
		ID:         r.ID,
		URL:        r.URL,
		Alt:        r.Alt,
		Filename:   r.Filename,
		UploadedAt: r.UploadedAt,
		FileSize:   r.FileSize,
		MimeType:   r.MimeType,
		Dimensions: r.Dimensions(),
		IsActive:   r.IsActive(),
		Order:      r.SortOrder,
	}
}

// UsageResponse is the storage meter of a catalog
type UsageResponse struct {
	UsedBytes    int64   `json:"usedBytes"`
	QuotaBytes   int64   `json:"quotaBytes"`
	MaxFileBytes int64   `json:"maxFileBytes"`
	Percent      float64 `json:"percent"`
}

// Event is pushed to websocket subscribers after a catalog change
type Event struct {
	Type    string          `json:"type"`
	Catalog string          `json:"catalog"`
	ID      uuid.UUID       `json:"id"`
	Record  *RecordResponse `json:"record,omitempty"`
}

// Event types
const (
	EventCreated = "image.created"
	EventDeleted = "image.deleted"
)
