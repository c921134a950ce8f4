package image

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mural/mural-api/internal/pkg/storage"
)

const mib = 1024 * 1024

var errBoom = errors.New("boom")

type repoStub struct {
	mu      sync.Mutex
	records map[uuid.UUID]*Record
	used    int64

	insertConflicts int
	insertErr       error
	activateErr     error
	findErr         error
	listErr         error
}

func newRepoStub() *repoStub {
	return &repoStub{records: make(map[uuid.UUID]*Record)}
}

func (r *repoStub) add(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
	if rec.Status != StatusInactive {
		r.used += rec.FileSize
	}
}

func (r *repoStub) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func (r *repoStub) usedBytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

func (r *repoStub) ListActive(ctx context.Context) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*Record
	for _, rec := range r.records {
		if rec.Status == StatusActive {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (r *repoStub) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	rec, ok := r.records[id]
	if !ok || rec.Status == StatusPending {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *repoStub) Insert(ctx context.Context, rec *Record, quota int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if r.insertConflicts > 0 {
		r.insertConflicts--
		return ErrFilenameTaken
	}
	for _, existing := range r.records {
		if existing.Filename == rec.Filename {
			return ErrFilenameTaken
		}
	}
	if r.used+rec.FileSize > quota {
		return ErrQuotaExceeded
	}
	r.used += rec.FileSize
	rec.Status = StatusPending
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *repoStub) Activate(ctx context.Context, id uuid.UUID, url string, dims *Dimensions, at time.Time) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.activateErr != nil {
		return nil, r.activateErr
	}
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusPending {
		return nil, errors.New("record is no longer pending")
	}
	rec.Status = StatusActive
	rec.URL = url
	rec.SetDimensions(dims)
	rec.ConfirmedAt.Time, rec.ConfirmedAt.Valid = at, true
	cp := *rec
	return &cp, nil
}

func (r *repoStub) DiscardPending(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusPending {
		return nil
	}
	delete(r.records, id)
	r.used -= rec.FileSize
	return nil
}

func (r *repoStub) SumActiveFileSize(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, rec := range r.records {
		if rec.Status == StatusActive {
			sum += rec.FileSize
		}
	}
	return sum, nil
}

func (r *repoStub) SoftDeactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status != StatusActive {
		return false, nil
	}
	rec.Status = StatusInactive
	rec.DeactivatedAt.Time, rec.DeactivatedAt.Valid = at, true
	r.used -= rec.FileSize
	return true, nil
}

func (r *repoStub) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.Status == StatusPending {
		return false, nil
	}
	delete(r.records, id)
	if rec.Status == StatusActive {
		r.used -= rec.FileSize
	}
	return true, nil
}

func (r *repoStub) ListStalePending(ctx context.Context, before time.Time) ([]*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Record
	for _, rec := range r.records {
		if rec.Status == StatusPending && rec.UploadedAt.Before(before) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *repoStub) ListFilenames(ctx context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.records))
	for _, rec := range r.records {
		names = append(names, rec.Filename)
	}
	return names, nil
}

func (r *repoStub) RecountUsage(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var used int64
	for _, rec := range r.records {
		if rec.Status != StatusInactive {
			used += rec.FileSize
		}
	}
	r.used = used
	return used, nil
}

type storageStub struct {
	mu      sync.Mutex
	objects map[string]storage.ObjectInfo
	puts    int
	deleted []string

	putErr    error
	deleteErr error
}

func newStorageStub() *storageStub {
	return &storageStub{objects: make(map[string]storage.ObjectInfo)}
}

func (s *storageStub) put(key string, size int64, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storage.ObjectInfo{Key: key, Size: size, LastModified: modified}
}

func (s *storageStub) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *storageStub) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", err
	}
	s.puts++
	s.objects[key] = storage.ObjectInfo{Key: key, Size: int64(buf.Len()), LastModified: time.Now()}
	return s.GetURL(key), nil
}

func (s *storageStub) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, key)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, key)
	return nil
}

func (s *storageStub) GetURL(key string) string {
	return "https://cdn.test/bucket/" + key
}

func (s *storageStub) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.ObjectInfo
	for key, obj := range s.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, obj)
		}
	}
	return out, nil
}

type proberStub struct {
	width, height int
	err           error
}

func (p proberStub) Probe(data []byte) (int, int, error) {
	return p.width, p.height, p.err
}

type publisherStub struct {
	mu     sync.Mutex
	rooms  []string
	events []Event
}

func (p *publisherStub) Publish(room string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rooms = append(p.rooms, room)
	if ev, ok := payload.(Event); ok {
		p.events = append(p.events, ev)
	}
}

type cacheStub struct {
	items       []*RecordResponse
	hit         bool
	sets        int
	invalidated int
}

func (c *cacheStub) Get(ctx context.Context) ([]*RecordResponse, bool) {
	return c.items, c.hit
}

func (c *cacheStub) Set(ctx context.Context, items []*RecordResponse) {
	c.items = items
	c.hit = true
	c.sets++
}

func (c *cacheStub) Invalidate(ctx context.Context) {
	c.items = nil
	c.hit = false
	c.invalidated++
}

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestService(catalog Catalog) (*Service, *repoStub, *storageStub) {
	repo := newRepoStub()
	st := newStorageStub()
	svc := NewService(catalog, repo, st, proberStub{width: 800, height: 600})
	svc.now = func() time.Time { return fixedNow }
	return svc, repo, st
}

func muralTestCatalog() Catalog {
	return MuralCatalog("mural-images", 50*mib, 1024*mib)
}

func foodTestCatalog() Catalog {
	return FoodCatalog("food-images", 50*mib, 1024*mib)
}
