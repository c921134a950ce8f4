package image

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mural/mural-api/internal/pkg/errorhandler"
	"github.com/mural/mural-api/internal/pkg/response"
	"github.com/mural/mural-api/internal/pkg/validator"
)

// multipartOverhead is allowed on top of the file limit for form fields
const multipartOverhead = 1 << 20

// Handler handles image HTTP requests for one catalog
type Handler struct {
	service *Service
}

// NewHandler creates image handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// List handles GET /
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to fetch images", err)
		return
	}
	response.OK(w, items)
}

// Upload handles POST / (multipart: file, alt)
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	catalog := h.service.Catalog()
	limit := catalog.MaxFileSize + multipartOverhead
	if r.ContentLength > limit {
		h.writeError(w, r, NewFileTooLarge(catalog.MaxFileSizeMB()))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, r, NewFileTooLarge(catalog.MaxFileSizeMB()))
			return
		}
		if errors.Is(err, http.ErrNotMultipart) {
			h.writeError(w, r, ErrMissingFile)
			return
		}
		response.BadRequest(w, "INVALID_FORM", "Invalid multipart form")
		return
	}

	form := UploadForm{Alt: r.FormValue("alt")}
	if errs := validator.Validate(&form); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	var in *UploadInput
	file, header, err := r.FormFile("file")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// in stays nil, the service answers with MISSING_FILE
	case err != nil:
		response.BadRequest(w, "INVALID_FORM", "Invalid file field")
		return
	default:
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			errorhandler.HandleError(r.Context(), w, http.StatusBadRequest, "INVALID_FORM", "Failed to read file", err)
			return
		}
		in = &UploadInput{
			Data:         data,
			ContentType:  header.Header.Get("Content-Type"),
			OriginalName: header.Filename,
			Alt:          form.Alt,
		}
	}

	rec, err := h.service.Upload(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response.OK(w, RecordResponseFromEntity(rec))
}

// Get handles GET /{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.NotFound(w, "Image not found")
		return
	}

	rec, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, RecordResponseFromEntity(rec))
}

// Delete handles DELETE /{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		response.NotFound(w, "Image not found")
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Success(w)
}

// Usage handles GET /usage
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.Usage(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, usage)
}

func parseID(r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "id")
	if err := validator.ValidateVar(raw, "required,uuid"); err != nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	return id, err == nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr  *ValidationError
		storageErr     *StorageError
		persistenceErr *PersistenceError
	)

	switch {
	case errors.As(err, &validationErr):
		response.BadRequest(w, validationErr.Code, validationErr.Message)
	case errors.Is(err, ErrImageNotFound):
		response.NotFound(w, "Image not found")
	case errors.As(err, &storageErr):
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to upload image to storage", err)
	case errors.As(err, &persistenceErr):
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "DATABASE_ERROR", persistenceMessage(r.Method), err)
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", err)
	}
}

func persistenceMessage(method string) string {
	switch method {
	case http.MethodPost:
		return "Failed to upload image"
	case http.MethodDelete:
		return "Failed to delete image"
	default:
		return "Failed to fetch images"
	}
}
