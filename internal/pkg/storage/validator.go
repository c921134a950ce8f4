package storage

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SupportedImageTypes is the default allow-list of image content types
var SupportedImageTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/webp",
	"image/avif",
}

// NormalizeContentType lower-cases a content type and strips parameters
// ("image/jpeg; charset=binary" -> "image/jpeg")
func NormalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// DetectContentType returns the declared type when there is one, otherwise
// sniffs the magic bytes.
func DetectContentType(declared string, data []byte) string {
	declared = NormalizeContentType(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return NormalizeContentType(mimetype.Detect(data).String())
}

// IsAllowedType reports whether contentType is in allowed
func IsAllowedType(contentType string, allowed []string) bool {
	contentType = NormalizeContentType(contentType)
	for _, t := range allowed {
		if t == contentType {
			return true
		}
	}
	return false
}

// GetExtensionForMime returns the file extension for a MIME type
func GetExtensionForMime(mimeType string) string {
	switch NormalizeContentType(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	case "image/gif":
		return ".gif"
	default:
		return ""
	}
}

// mimeExtensions lists the extensions accepted for each image type
var mimeExtensions = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/jpg":  {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/webp": {".webp"},
	"image/avif": {".avif"},
	"image/gif":  {".gif"},
}

// ExtensionFor keeps the extension of the original file name when it matches
// mimeType, otherwise derives one from mimeType. The result is always one of
// the known image extensions (or empty for an unknown type).
func ExtensionFor(originalName, mimeType string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	for _, allowed := range mimeExtensions[NormalizeContentType(mimeType)] {
		if ext == allowed {
			return ext
		}
	}
	return GetExtensionForMime(mimeType)
}
