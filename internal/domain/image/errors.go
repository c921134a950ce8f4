package image

import (
	"errors"
	"fmt"
)

// Validation error codes
const (
	CodeMissingFile     = "MISSING_FILE"
	CodeFileTooLarge    = "FILE_TOO_LARGE"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeQuotaExceeded   = "QUOTA_EXCEEDED"
)

// ValidationError is a rejected upload. Two values are errors.Is-equal when
// their codes match, so the sentinels below work regardless of message.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*ValidationError)
	return ok && t.Code == e.Code
}

var (
	ErrMissingFile     = &ValidationError{Code: CodeMissingFile, Message: "No file provided"}
	ErrFileTooLarge    = &ValidationError{Code: CodeFileTooLarge, Message: "File too large"}
	ErrUnsupportedType = &ValidationError{Code: CodeUnsupportedType, Message: "Unsupported file type. Please use JPEG, PNG, WebP, or AVIF"}
	ErrQuotaExceeded   = &ValidationError{Code: CodeQuotaExceeded, Message: "Storage limit reached. Please delete some images first."}

	ErrImageNotFound = errors.New("image not found")

	// ErrFilenameTaken is returned by the repository on a filename collision
	ErrFilenameTaken = errors.New("filename already exists")
)

// NewFileTooLarge builds the size error with the limit users see
func NewFileTooLarge(maxMB int64) *ValidationError {
	return &ValidationError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("File too large. Maximum size is %dMB", maxMB),
	}
}

// StorageError is a failed bucket call
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// PersistenceError is a failed database call
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
