package image

import "github.com/mural/mural-api/internal/pkg/storage"

// Policy decides what deleting a record does
type Policy string

const (
	// PolicySoftDeactivate hides the record but keeps the row
	PolicySoftDeactivate Policy = "soft_deactivate"
	// PolicyHardDelete removes the row permanently
	PolicyHardDelete Policy = "hard_delete"
)

// Catalog is one collection of image records sharing a bucket and a table
type Catalog struct {
	Name         string
	Table        string
	Prefix       string // filename prefix, "<prefix>-<epochMillis>.<ext>"
	Bucket       string
	Policy       Policy
	MaxFileSize  int64
	Quota        int64
	AllowedTypes []string
}

// MuralCatalog is the general gallery; deletes are soft
func MuralCatalog(bucket string, maxFileSize, quota int64) Catalog {
	return Catalog{
		Name:         "mural",
		Table:        "images",
		Prefix:       "mural",
		Bucket:       bucket,
		Policy:       PolicySoftDeactivate,
		MaxFileSize:  maxFileSize,
		Quota:        quota,
		AllowedTypes: storage.SupportedImageTypes,
	}
}

// FoodCatalog holds food photos; deletes are permanent
func FoodCatalog(bucket string, maxFileSize, quota int64) Catalog {
	return Catalog{
		Name:         "food",
		Table:        "food_images",
		Prefix:       "food",
		Bucket:       bucket,
		Policy:       PolicyHardDelete,
		MaxFileSize:  maxFileSize,
		Quota:        quota,
		AllowedTypes: storage.SupportedImageTypes,
	}
}

// MaxFileSizeMB is the per-file limit in whole mebibytes, as shown to users
func (c Catalog) MaxFileSizeMB() int64 {
	return c.MaxFileSize / (1024 * 1024)
}
