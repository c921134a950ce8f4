package image

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mural/mural-api/internal/pkg/storage"
)

// SweepReport summarizes one reconciliation pass
type SweepReport struct {
	Catalog        string   `json:"catalog"`
	DryRun         bool     `json:"dryRun"`
	StalePending   int      `json:"stalePending"`
	DiscardedRows  int      `json:"discardedRows"`
	OrphanBlobs    []string `json:"orphanBlobs"`
	RemovedBlobs   int      `json:"removedBlobs"`
	FailedRemovals int      `json:"failedRemovals"`
	FailedDiscards int      `json:"failedDiscards"`
	UsedBytes      int64    `json:"usedBytes"`
}

// Sweeper reclaims what interrupted uploads leave behind: pending rows that
// were never activated and blobs with no row at all.
type Sweeper struct {
	catalog Catalog
	repo    Repository
	storage storage.Storage
	grace   time.Duration
	dryRun  bool
	now     func() time.Time
}

// NewSweeper creates a sweeper for one catalog
func NewSweeper(catalog Catalog, repo Repository, st storage.Storage, grace time.Duration, dryRun bool) *Sweeper {
	return &Sweeper{
		catalog: catalog,
		repo:    repo,
		storage: st,
		grace:   grace,
		dryRun:  dryRun,
		now:     time.Now,
	}
}

// Sweep runs one reconciliation pass
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	cutoff := s.now().UTC().Add(-s.grace)
	report := &SweepReport{Catalog: s.catalog.Name, DryRun: s.dryRun}
	logger := log.With().Str("catalog", s.catalog.Name).Bool("dry_run", s.dryRun).Logger()

	stale, err := s.repo.ListStalePending(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending records: %w", err)
	}
	report.StalePending = len(stale)

	for _, rec := range stale {
		logger.Info().Str("id", rec.ID.String()).Str("filename", rec.Filename).Msg("Stale pending record")
		if s.dryRun {
			continue
		}
		if err := s.storage.Delete(ctx, rec.Filename); err != nil {
			report.FailedRemovals++
			logger.Warn().Err(err).Str("filename", rec.Filename).Msg("Failed to remove blob of stale record")
			continue
		}
		if err := s.repo.DiscardPending(ctx, rec.ID); err != nil {
			report.FailedDiscards++
			logger.Warn().Err(err).Str("id", rec.ID.String()).Msg("Failed to discard stale record")
			continue
		}
		report.DiscardedRows++
	}

	filenames, err := s.repo.ListFilenames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list filenames: %w", err)
	}
	known := make(map[string]struct{}, len(filenames))
	for _, name := range filenames {
		known[name] = struct{}{}
	}

	objects, err := s.storage.List(ctx, s.catalog.Prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to list bucket objects: %w", err)
	}

	for _, obj := range objects {
		if _, ok := known[obj.Key]; ok {
			continue
		}
		// Young objects may belong to an upload that is still in flight
		if obj.LastModified.After(cutoff) || strings.HasSuffix(obj.Key, "/") {
			continue
		}
		report.OrphanBlobs = append(report.OrphanBlobs, obj.Key)
		logger.Info().Str("key", obj.Key).Int64("size", obj.Size).Msg("Orphan blob")
		if s.dryRun {
			continue
		}
		if err := s.storage.Delete(ctx, obj.Key); err != nil {
			report.FailedRemovals++
			logger.Warn().Err(err).Str("key", obj.Key).Msg("Failed to remove orphan blob")
			continue
		}
		report.RemovedBlobs++
	}

	if !s.dryRun {
		used, err := s.repo.RecountUsage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to recount usage: %w", err)
		}
		report.UsedBytes = used
	}

	logger.Info().
		Int("stale_pending", report.StalePending).
		Int("discarded_rows", report.DiscardedRows).
		Int("orphan_blobs", len(report.OrphanBlobs)).
		Int("removed_blobs", report.RemovedBlobs).
		Msg("Sweep finished")

	return report, nil
}
