package database

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

const usageSchema = `
CREATE TABLE IF NOT EXISTS catalog_usage (
	catalog    TEXT PRIMARY KEY,
	used_bytes BIGINT NOT NULL DEFAULT 0 CHECK (used_bytes >= 0)
)`

const imageTableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
	id             UUID PRIMARY KEY,
	filename       TEXT NOT NULL,
	url            TEXT NOT NULL DEFAULT '',
	alt            TEXT NOT NULL DEFAULT '',
	file_size      BIGINT NOT NULL CHECK (file_size >= 0),
	mime_type      TEXT NOT NULL,
	width          INTEGER,
	height         INTEGER,
	status         TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'active', 'inactive')),
	sort_order     INTEGER NOT NULL DEFAULT 0,
	uploaded_at    TIMESTAMPTZ NOT NULL,
	confirmed_at   TIMESTAMPTZ,
	deactivated_at TIMESTAMPTZ,
	CONSTRAINT %[1]s_filename_key UNIQUE (filename)
);
CREATE INDEX IF NOT EXISTS %[1]s_status_order_idx ON %[1]s (status, sort_order, uploaded_at)`

// CatalogTable names a catalog and the table holding its records
type CatalogTable struct {
	Catalog string
	Table   string
}

// EnsureSchema creates the usage table plus one image table per catalog and
// seeds a zero usage row for each catalog.
func EnsureSchema(ctx context.Context, db *sqlx.DB, catalogs []CatalogTable) error {
	if _, err := db.ExecContext(ctx, usageSchema); err != nil {
		return fmt.Errorf("failed to create catalog_usage: %w", err)
	}

	for _, c := range catalogs {
		if !tableName.MatchString(c.Table) {
			return fmt.Errorf("invalid table name %q", c.Table)
		}
		if _, err := db.ExecContext(ctx, fmt.Sprintf(imageTableSchema, c.Table)); err != nil {
			return fmt.Errorf("failed to create %s: %w", c.Table, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO catalog_usage (catalog, used_bytes) VALUES ($1, 0) ON CONFLICT (catalog) DO NOTHING`,
			c.Catalog,
		); err != nil {
			return fmt.Errorf("failed to seed usage for %s: %w", c.Catalog, err)
		}
		log.Debug().Str("catalog", c.Catalog).Str("table", c.Table).Msg("Schema ready")
	}
	return nil
}
