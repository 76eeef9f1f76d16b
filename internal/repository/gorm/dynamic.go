package gormrepository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm/clause"
)

// Dynamic destination tables: one tenant-partitioned table per entity type,
// keyed by (tenant_id, qb_id), with a column set that grows as upstream adds
// fields. Table names reach this file only through the entity whitelist; all
// identifiers are still quoted before they touch DDL.

func (s *Store) EnsureEntityTable(ctx context.Context, table string) error {
	if s == nil || s.db == nil {
		return nil
	}
	qt := quoteIdent(table)
	ddl := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			tenant_id bigint NOT NULL,
			qb_id text NOT NULL,
			synced_at timestamptz NOT NULL DEFAULT now()
		)`, qt)
	if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
		return err
	}
	idx := fmt.Sprintf(
		`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (tenant_id, qb_id)`,
		quoteIdent(table+"_tenant_qb_key"), qt)
	return s.db.WithContext(ctx).Exec(idx).Error
}

func (s *Store) TableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var names []string
	err := s.db.WithContext(ctx).Raw(
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = current_schema() AND table_name = ?`, table,
	).Scan(&names).Error
	if err != nil {
		return nil, err
	}
	cols := make(map[string]struct{}, len(names))
	for _, n := range names {
		cols[n] = struct{}{}
	}
	return cols, nil
}

// AddTextColumn is idempotent: adding a column that already exists is a
// no-op, which is what resolves concurrent schema-extension races.
func (s *Store) AddTextColumn(ctx context.Context, table, column string) error {
	if s == nil || s.db == nil {
		return nil
	}
	ddl := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s text`,
		quoteIdent(table), quoteIdent(column))
	return s.db.WithContext(ctx).Exec(ddl).Error
}

// MergeEntityRow upserts one record keyed by (tenant_id, qb_id), overwriting
// every provided field on conflict. The single statement keeps the merge
// atomic per record.
func (s *Store) MergeEntityRow(ctx context.Context, table string, tenantID uint, qbID string, fields map[string]*string) error {
	if s == nil || s.db == nil {
		return nil
	}
	now := time.Now().UTC()
	row := make(map[string]any, len(fields)+3)
	assignments := make(map[string]any, len(fields)+1)
	for col, val := range fields {
		row[col] = val
		assignments[col] = val
	}
	// synced_at always moves, so the conflict branch never has an empty SET.
	row["synced_at"] = now
	assignments["synced_at"] = now
	row["tenant_id"] = tenantID
	row["qb_id"] = qbID

	return s.db.WithContext(ctx).Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "qb_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(row).Error
}

func (s *Store) TenantHasRows(ctx context.Context, table string, tenantID uint) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var one int
	err := s.db.WithContext(ctx).Table(table).
		Select("1").
		Where("tenant_id = ?", tenantID).
		Limit(1).
		Scan(&one).Error
	if err != nil {
		return false, err
	}
	return one == 1, nil
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
