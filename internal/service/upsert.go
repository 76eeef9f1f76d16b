package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"qbsync/internal/models"
	"qbsync/internal/repository"
)

// UpsertPipeline merges heterogeneous upstream records into the entity's
// destination table, extending the table's column set on the fly. Only scalar
// fields survive; the upstream Id becomes the merge key and records without
// one are dropped.
type UpsertPipeline struct {
	Store  repository.Repository
	Logger *zap.Logger
}

type UpsertStats struct {
	Upserted int
	Dropped  int
	Failed   int
}

func (p *UpsertPipeline) Upsert(ctx context.Context, entity string, tenantID uint, records []map[string]any) (UpsertStats, error) {
	table, ok := models.EntityTableFor(entity)
	if !ok {
		return UpsertStats{}, fmt.Errorf("unknown entity type %q", entity)
	}
	if len(records) == 0 {
		return UpsertStats{}, nil
	}

	type flatRecord struct {
		qbID   string
		fields map[string]*string
	}
	var stats UpsertStats
	flat := make([]flatRecord, 0, len(records))
	union := make(map[string]struct{})
	for _, rec := range records {
		fields := flattenScalars(rec)
		id, ok := fields["Id"]
		if !ok || id == nil || *id == "" {
			stats.Dropped++
			continue
		}
		delete(fields, "Id")
		for col := range fields {
			union[col] = struct{}{}
		}
		flat = append(flat, flatRecord{qbID: *id, fields: fields})
	}
	if len(flat) == 0 {
		return stats, nil
	}

	if err := p.reconcileColumns(ctx, table, union); err != nil {
		return stats, err
	}

	for _, rec := range flat {
		if err := p.Store.MergeEntityRow(ctx, table, tenantID, rec.qbID, rec.fields); err != nil {
			stats.Failed++
			if p.Logger != nil {
				p.Logger.Warn("record merge failed",
					zap.String("table", table),
					zap.Uint("tenant_id", tenantID),
					zap.String("qb_id", rec.qbID),
					zap.Error(err),
				)
			}
			continue
		}
		stats.Upserted++
	}
	return stats, nil
}

// reconcileColumns makes every field name a column of table before any write.
// A failed add is retried once against a fresh column snapshot: if a
// concurrent writer added the column first, the re-check treats it as done.
func (p *UpsertPipeline) reconcileColumns(ctx context.Context, table string, fieldCols map[string]struct{}) error {
	existing, err := p.Store.TableColumns(ctx, table)
	if err != nil {
		return err
	}
	missing := make([]string, 0)
	for col := range fieldCols {
		if _, ok := existing[col]; !ok {
			missing = append(missing, col)
		}
	}
	sort.Strings(missing)
	for _, col := range missing {
		if err := p.Store.AddTextColumn(ctx, table, col); err == nil {
			continue
		}
		fresh, ferr := p.Store.TableColumns(ctx, table)
		if ferr != nil {
			return ferr
		}
		if _, ok := fresh[col]; ok {
			continue
		}
		if err := p.Store.AddTextColumn(ctx, table, col); err != nil {
			return fmt.Errorf("add column %s.%s: %w", table, col, err)
		}
	}
	return nil
}

// reservedColumns are owned by the merge itself; an upstream field with one
// of these names must not shadow the row key.
var reservedColumns = map[string]struct{}{
	"tenant_id": {},
	"qb_id":     {},
	"synced_at": {},
}

// flattenScalars keeps only scalar fields, rendered as nullable text under a
// sanitized column name. Nested objects and arrays are discarded.
func flattenScalars(rec map[string]any) map[string]*string {
	out := make(map[string]*string, len(rec))
	for name, raw := range rec {
		col := sanitizeColumn(name)
		if col == "" {
			continue
		}
		if _, reserved := reservedColumns[col]; reserved {
			continue
		}
		switch v := raw.(type) {
		case nil:
			out[col] = nil
		case string:
			s := v
			out[col] = &s
		case bool:
			s := strconv.FormatBool(v)
			out[col] = &s
		case json.Number:
			s := renderNumber(v)
			out[col] = &s
		case float64:
			s := decimal.NewFromFloat(v).String()
			out[col] = &s
		case int, int64:
			s := fmt.Sprintf("%d", v)
			out[col] = &s
		default:
			// nested object/array: not persisted
		}
	}
	return out
}

// renderNumber goes through decimal so amounts never pick up float exponent
// formatting on the way into a text column.
func renderNumber(n json.Number) string {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return n.String()
	}
	return d.String()
}

// sanitizeColumn reduces an upstream field name to a safe identifier:
// [A-Za-z0-9_] only, starting with a letter or underscore. Names with nothing
// left are rejected.
func sanitizeColumn(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			out = append(out, r)
		case r >= '0' && r <= '9':
			if len(out) == 0 {
				out = append(out, '_')
			}
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return ""
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return string(out)
}
