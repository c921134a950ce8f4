package image

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL error code for a unique constraint
const uniqueViolation = "23505"

// Repository is the catalog store for a single catalog
type Repository interface {
	// ListActive returns active records ordered by sort_order, then upload time.
	ListActive(ctx context.Context) ([]*Record, error)
	// FindByID returns nil, nil when the id is unknown or still pending.
	FindByID(ctx context.Context, id uuid.UUID) (*Record, error)
	// Insert reserves quota bytes and stores rec as pending in one transaction.
	// Returns ErrQuotaExceeded when the reservation does not fit.
	Insert(ctx context.Context, rec *Record, quota int64) error
	// Activate confirms a pending record once its blob is stored.
	Activate(ctx context.Context, id uuid.UUID, url string, dims *Dimensions, at time.Time) (*Record, error)
	// DiscardPending removes a pending record and releases its reservation.
	DiscardPending(ctx context.Context, id uuid.UUID) error
	SumActiveFileSize(ctx context.Context) (int64, error)
	// SoftDeactivate flips an active record to inactive. False if nothing changed.
	SoftDeactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	// HardDelete removes a non-pending record. False if nothing was deleted.
	HardDelete(ctx context.Context, id uuid.UUID) (bool, error)
	ListStalePending(ctx context.Context, before time.Time) ([]*Record, error)
	ListFilenames(ctx context.Context) ([]string, error)
	// RecountUsage rebuilds the quota counter from active and pending rows.
	RecountUsage(ctx context.Context) (int64, error)
}

// CatalogRepository implements Repository on PostgreSQL
type CatalogRepository struct {
	db      *sqlx.DB
	catalog string
	table   string
}

// NewRepository creates a repository bound to one catalog's table
func NewRepository(db *sqlx.DB, catalog Catalog) *CatalogRepository {
	return &CatalogRepository{db: db, catalog: catalog.Name, table: catalog.Table}
}

// q substitutes the catalog table into a query
func (r *CatalogRepository) q(query string) string {
	return strings.ReplaceAll(query, "{table}", r.table)
}

const recordColumns = `id, filename, url, alt, file_size, mime_type, width, height, status, sort_order, uploaded_at, confirmed_at, deactivated_at`

func (r *CatalogRepository) ListActive(ctx context.Context) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := r.q(`SELECT ` + recordColumns + ` FROM {table} WHERE status = 'active' ORDER BY sort_order ASC, uploaded_at ASC`)
	var records []*Record
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	return records, nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, id uuid.UUID) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := r.q(`SELECT ` + recordColumns + ` FROM {table} WHERE id = $1 AND status <> 'pending'`)
	var rec Record
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find by id: %w", err)
	}
	return &rec, nil
}

func (r *CatalogRepository) Insert(ctx context.Context, rec *Record, quota int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Row lock on the counter serializes concurrent reservations
	result, err := tx.ExecContext(ctx, `
		UPDATE catalog_usage
		SET used_bytes = used_bytes + $2
		WHERE catalog = $1 AND used_bytes + $2 <= $3
	`, r.catalog, rec.FileSize, quota)
	if err != nil {
		return fmt.Errorf("reserve quota: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrQuotaExceeded
	}

	_, err = tx.ExecContext(ctx, r.q(`
		INSERT INTO {table} (id, filename, url, alt, file_size, mime_type, status, sort_order, uploaded_at)
		VALUES ($1, $2, '', $3, $4, $5, 'pending', $6, $7)
	`), rec.ID, rec.Filename, rec.Alt, rec.FileSize, rec.MimeType, rec.SortOrder, rec.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrFilenameTaken
		}
		return fmt.Errorf("insert pending: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	rec.Status = StatusPending
	return nil
}

func (r *CatalogRepository) Activate(ctx context.Context, id uuid.UUID, url string, dims *Dimensions, at time.Time) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var width, height sql.NullInt32
	if dims != nil {
		width = sql.NullInt32{Int32: int32(dims.Width), Valid: true}
		height = sql.NullInt32{Int32: int32(dims.Height), Valid: true}
	}

	query := r.q(`
		UPDATE {table}
		SET status = 'active', url = $2, width = $3, height = $4, confirmed_at = $5
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + recordColumns)

	var rec Record
	if err := r.db.GetContext(ctx, &rec, query, id, url, width, height, at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activate %s: record is no longer pending", id)
		}
		return nil, fmt.Errorf("activate: %w", err)
	}
	return &rec, nil
}

func (r *CatalogRepository) DiscardPending(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var size int64
	err = tx.GetContext(ctx, &size, r.q(`DELETE FROM {table} WHERE id = $1 AND status = 'pending' RETURNING file_size`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("delete pending: %w", err)
	}

	if err := r.release(ctx, tx, size); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *CatalogRepository) SumActiveFileSize(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var sum int64
	err := r.db.GetContext(ctx, &sum, r.q(`SELECT COALESCE(SUM(file_size), 0) FROM {table} WHERE status = 'active'`))
	if err != nil {
		return 0, fmt.Errorf("sum active file size: %w", err)
	}
	return sum, nil
}

func (r *CatalogRepository) SoftDeactivate(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var size int64
	err = tx.GetContext(ctx, &size, r.q(`
		UPDATE {table}
		SET status = 'inactive', deactivated_at = $2
		WHERE id = $1 AND status = 'active'
		RETURNING file_size
	`), id, at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("soft deactivate: %w", err)
	}

	if err := r.release(ctx, tx, size); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (r *CatalogRepository) HardDelete(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var deleted struct {
		FileSize int64  `db:"file_size"`
		Status   Status `db:"status"`
	}
	err = tx.GetContext(ctx, &deleted, r.q(`DELETE FROM {table} WHERE id = $1 AND status <> 'pending' RETURNING file_size, status`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("hard delete: %w", err)
	}

	// Inactive rows already gave their bytes back
	if deleted.Status == StatusActive {
		if err := r.release(ctx, tx, deleted.FileSize); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return true, nil
}

func (r *CatalogRepository) ListStalePending(ctx context.Context, before time.Time) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := r.q(`SELECT ` + recordColumns + ` FROM {table} WHERE status = 'pending' AND uploaded_at < $1 ORDER BY uploaded_at`)
	var records []*Record
	if err := r.db.SelectContext(ctx, &records, query, before); err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	return records, nil
}

func (r *CatalogRepository) ListFilenames(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var names []string
	if err := r.db.SelectContext(ctx, &names, r.q(`SELECT filename FROM {table}`)); err != nil {
		return nil, fmt.Errorf("list filenames: %w", err)
	}
	return names, nil
}

// RecountUsage resets the quota counter to the bytes held by pending and
// active rows. The counter row is locked before summing, so reservations and
// releases in flight either finish before the sum or wait for the reset.
func (r *CatalogRepository) RecountUsage(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_usage (catalog, used_bytes) VALUES ($1, 0)
		ON CONFLICT (catalog) DO NOTHING
	`, r.catalog)
	if err != nil {
		return 0, fmt.Errorf("seed usage: %w", err)
	}

	var current int64
	if err := tx.GetContext(ctx, &current, `SELECT used_bytes FROM catalog_usage WHERE catalog = $1 FOR UPDATE`, r.catalog); err != nil {
		return 0, fmt.Errorf("lock usage: %w", err)
	}

	var used int64
	err = tx.GetContext(ctx, &used, r.q(`SELECT COALESCE(SUM(file_size), 0) FROM {table} WHERE status IN ('pending', 'active')`))
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}

	if used != current {
		if _, err := tx.ExecContext(ctx, `UPDATE catalog_usage SET used_bytes = $2 WHERE catalog = $1`, r.catalog, used); err != nil {
			return 0, fmt.Errorf("recount usage: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return used, nil
}

func (r *CatalogRepository) release(ctx context.Context, tx *sqlx.Tx, size int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE catalog_usage
		SET used_bytes = GREATEST(used_bytes - $2, 0)
		WHERE catalog = $1
	`, r.catalog, size)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
