package image

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a record
type Status string

const (
	// StatusPending rows hold a quota reservation while the blob is written
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Record is one uploaded image (metadata only, bytes live in the bucket)
type Record struct {
	ID            uuid.UUID     `db:"id"`
	Filename      string        `db:"filename"` // bucket object key
	URL           string        `db:"url"`
	Alt           string        `db:"alt"`
	FileSize      int64         `db:"file_size"`
	MimeType      string        `db:"mime_type"`
	Width         sql.NullInt32 `db:"width"`
	Height        sql.NullInt32 `db:"height"`
	Status        Status        `db:"status"`
	SortOrder     int           `db:"sort_order"`
	UploadedAt    time.Time     `db:"uploaded_at"`
	ConfirmedAt   sql.NullTime  `db:"confirmed_at"`
	DeactivatedAt sql.NullTime  `db:"deactivated_at"`
}

// Dimensions is the pixel size of an image
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsActive reports whether the record is visible in listings
func (r *Record) IsActive() bool {
	return r.Status == StatusActive
}

// Dimensions returns nil when the image could not be probed
func (r *Record) Dimensions() *Dimensions {
	if !r.Width.Valid || !r.Height.Valid {
		return nil
	}
	return &Dimensions{Width: int(r.Width.Int32), Height: int(r.Height.Int32)}
}

// SetDimensions stores probed dimensions; nil clears them
func (r *Record) SetDimensions(d *Dimensions) {
	if d == nil {
		r.Width = sql.NullInt32{}
		r.Height = sql.NullInt32{}
		return
	}
	r.Width = sql.NullInt32{Int32: int32(d.Width), Valid: true}
	r.Height = sql.NullInt32{Int32: int32(d.Height), Valid: true}
}
