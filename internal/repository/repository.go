package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"qbsync/internal/models"
)

type ListSyncRunParams struct {
	TenantID *uint
	Outcome  string
	Limit    int
	Offset   int
}

// Repository is the narrow store contract the sync engine runs against.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Credential store. Only rows with active=true are ever visible to the
	// refresh and sync paths.
	ListActiveTenants(ctx context.Context) ([]models.TenantCredential, error)
	GetTenantByID(ctx context.Context, id uint) (*models.TenantCredential, error)
	UpdateTenantTokens(ctx context.Context, id uint, accessEnc, refreshEnc string, expiry, refreshedAt time.Time) error
	UpdateTenantLastSync(ctx context.Context, id uint, at time.Time) error

	// Audit trail, append-only.
	AppendSyncRunRecord(ctx context.Context, rec *models.SyncRunRecord) error
	ListSyncRunRecords(ctx context.Context, params ListSyncRunParams) ([]models.SyncRunRecord, error)

	// Scheduler bookkeeping.
	GetJobState(ctx context.Context, jobID string) (*models.JobState, error)
	SaveJobState(ctx context.Context, state *models.JobState) error

	// Dynamic destination tables. Table names must come from the entity
	// whitelist; column names are sanitized by the caller.
	EnsureEntityTable(ctx context.Context, table string) error
	TableColumns(ctx context.Context, table string) (map[string]struct{}, error)
	AddTextColumn(ctx context.Context, table, column string) error
	MergeEntityRow(ctx context.Context, table string, tenantID uint, qbID string, fields map[string]*string) error
	TenantHasRows(ctx context.Context, table string, tenantID uint) (bool, error)
}
