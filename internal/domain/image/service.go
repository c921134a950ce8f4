package image

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mural/mural-api/internal/pkg/errorhandler"
	"github.com/mural/mural-api/internal/pkg/logger"
	"github.com/mural/mural-api/internal/pkg/storage"
)

// filenameAttempts bounds retries on a millisecond filename collision
const filenameAttempts = 3

// Prober extracts pixel dimensions from encoded bytes
type Prober interface {
	Probe(data []byte) (width, height int, err error)
}

// EventPublisher fans catalog changes out to live subscribers
type EventPublisher interface {
	Publish(room string, payload interface{})
}

// ListCache caches the active listing of one catalog
type ListCache interface {
	Get(ctx context.Context) ([]*RecordResponse, bool)
	Set(ctx context.Context, records []*RecordResponse)
	Invalidate(ctx context.Context)
}

// Service orchestrates uploads and deletions for one catalog
type Service struct {
	catalog Catalog
	repo    Repository
	storage storage.Storage
	prober  Prober
	cache   ListCache
	events  EventPublisher
	now     func() time.Time
}

// NewService creates image service
func NewService(catalog Catalog, repo Repository, st storage.Storage, prober Prober) *Service {
	return &Service{
		catalog: catalog,
		repo:    repo,
		storage: st,
		prober:  prober,
		now:     time.Now,
	}
}

// SetListCache enables caching of active listings
func (s *Service) SetListCache(cache ListCache) {
	s.cache = cache
}

// SetEventPublisher enables live change notifications
func (s *Service) SetEventPublisher(events EventPublisher) {
	s.events = events
}

// Catalog returns the catalog this service manages
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Upload validates the file, reserves quota, writes the blob and returns the
// active record. A failure after the reservation leaves no visible record.
func (s *Service) Upload(ctx context.Context, in *UploadInput) (*Record, error) {
	log := logger.FromContext(ctx).With().Str("catalog", s.catalog.Name).Logger()

	if in == nil || len(in.Data) == 0 {
		return nil, ErrMissingFile
	}

	size := int64(len(in.Data))
	if size > s.catalog.MaxFileSize {
		return nil, NewFileTooLarge(s.catalog.MaxFileSizeMB())
	}

	mimeType := storage.DetectContentType(in.ContentType, in.Data)
	if !storage.IsAllowedType(mimeType, s.catalog.AllowedTypes) {
		return nil, ErrUnsupportedType
	}

	ext := storage.ExtensionFor(in.OriginalName, mimeType)
	uploadedAt := s.now().UTC()

	rec := &Record{
		ID:         uuid.New(),
		FileSize:   size,
		MimeType:   mimeType,
		SortOrder:  0,
		UploadedAt: uploadedAt,
	}

	var err error
	millis := uploadedAt.UnixMilli()
	for attempt := 0; attempt < filenameAttempts; attempt++ {
		rec.Filename = fmt.Sprintf("%s-%d%s", s.catalog.Prefix, millis+int64(attempt), ext)
		rec.Alt = strings.TrimSpace(in.Alt)
		if rec.Alt == "" {
			rec.Alt = strings.TrimSuffix(rec.Filename, ext)
		}

		err = s.repo.Insert(ctx, rec, s.catalog.Quota)
		if !errors.Is(err, ErrFilenameTaken) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			return nil, ErrQuotaExceeded
		}
		return nil, &PersistenceError{Op: "insert", Err: err}
	}

	url, err := s.storage.Put(ctx, rec.Filename, bytes.NewReader(in.Data), size, mimeType)
	if err != nil {
		if derr := s.repo.DiscardPending(ctx, rec.ID); derr != nil {
			log.Error().Err(derr).Str("id", rec.ID.String()).Msg("Failed to discard pending record")
		}
		return nil, &StorageError{Op: "put", Key: rec.Filename, Err: err}
	}

	var dims *Dimensions
	if w, h, perr := s.prober.Probe(in.Data); perr != nil {
		log.Warn().Err(perr).Str("filename", rec.Filename).Msg("Could not get image dimensions")
	} else {
		dims = &Dimensions{Width: w, Height: h}
	}

	activated, err := s.repo.Activate(ctx, rec.ID, url, dims, s.now().UTC())
	if err != nil {
		if derr := s.storage.Delete(ctx, rec.Filename); derr != nil {
			log.Error().Err(derr).Str("filename", rec.Filename).Msg("Failed to remove blob after activation failure")
		}
		if derr := s.repo.DiscardPending(ctx, rec.ID); derr != nil {
			log.Error().Err(derr).Str("id", rec.ID.String()).Msg("Failed to discard pending record")
		}
		return nil, &PersistenceError{Op: "activate", Err: err}
	}

	log.Info().
		Str("id", activated.ID.String()).
		Str("filename", activated.Filename).
		Int64("file_size", activated.FileSize).
		Msg("Image uploaded")

	s.changed(ctx, Event{Type: EventCreated, ID: activated.ID, Record: RecordResponseFromEntity(activated)})
	return activated, nil
}

// Delete removes a record according to the catalog's policy. A failed blob
// removal is logged and does not stop the catalog update.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	log := logger.FromContext(ctx).With().Str("catalog", s.catalog.Name).Str("id", id.String()).Logger()

	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return &PersistenceError{Op: "find", Err: err}
	}
	if rec == nil {
		return ErrImageNotFound
	}

	if rec.Status == StatusInactive && s.catalog.Policy == PolicySoftDeactivate {
		return nil
	}

	if err := s.storage.Delete(ctx, rec.Filename); err != nil {
		errorhandler.LogExternalServiceError(ctx, "storage", "delete "+rec.Filename, err)
	}

	switch s.catalog.Policy {
	case PolicyHardDelete:
		deleted, err := s.repo.HardDelete(ctx, id)
		if err != nil {
			return &PersistenceError{Op: "hard_delete", Err: err}
		}
		if !deleted {
			return ErrImageNotFound
		}
	default:
		if _, err := s.repo.SoftDeactivate(ctx, id, s.now().UTC()); err != nil {
			return &PersistenceError{Op: "soft_deactivate", Err: err}
		}
	}

	log.Info().Str("filename", rec.Filename).Str("policy", string(s.catalog.Policy)).Msg("Image deleted")

	s.changed(ctx, Event{Type: EventDeleted, ID: id})
	return nil
}

// List returns the active records of the catalog
func (s *Service) List(ctx context.Context) ([]*RecordResponse, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	records, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	items := make([]*RecordResponse, len(records))
	for i, rec := range records {
		items[i] = RecordResponseFromEntity(rec)
	}

	if s.cache != nil {
		s.cache.Set(ctx, items)
	}
	return items, nil
}

// Get returns a record in any non-pending state
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, &PersistenceError{Op: "find", Err: err}
	}
	if rec == nil {
		return nil, ErrImageNotFound
	}
	return rec, nil
}

// Usage reports active bytes against the catalog quota
func (s *Service) Usage(ctx context.Context) (*UsageResponse, error) {
	used, err := s.repo.SumActiveFileSize(ctx)
	if err != nil {
		return nil, &PersistenceError{Op: "sum", Err: err}
	}

	var percent float64
	if s.catalog.Quota > 0 {
		percent = float64(used) / float64(s.catalog.Quota) * 100
	}

	return &UsageResponse{
		UsedBytes:    used,
		QuotaBytes:   s.catalog.Quota,
		MaxFileBytes: s.catalog.MaxFileSize,
		Percent:      percent,
	}, nil
}

func (s *Service) changed(ctx context.Context, event Event) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.events != nil {
		event.Catalog = s.catalog.Name
		s.events.Publish(s.catalog.Name, event)
	}
}
