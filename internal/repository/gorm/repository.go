package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qbsync/internal/models"
	"qbsync/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- Credential store -------------------------------------------------------

func (s *Store) ListActiveTenants(ctx context.Context) ([]models.TenantCredential, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TenantCredential
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetTenantByID(ctx context.Context, id uint) (*models.TenantCredential, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TenantCredential
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateTenantTokens(ctx context.Context, id uint, accessEnc, refreshEnc string, expiry, refreshedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.TenantCredential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token_enc":  accessEnc,
			"refresh_token_enc": refreshEnc,
			"token_expiry":      expiry,
			"last_refresh_at":   refreshedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) UpdateTenantLastSync(ctx context.Context, id uint, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TenantCredential{}).
		Where("id = ?", id).
		Update("last_sync_at", at).Error
}

// --- Audit trail ------------------------------------------------------------

func (s *Store) AppendSyncRunRecord(ctx context.Context, rec *models.SyncRunRecord) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Create(rec).Error
}

func (s *Store) ListSyncRunRecords(ctx context.Context, params repository.ListSyncRunParams) ([]models.SyncRunRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SyncRunRecord{})
	if params.TenantID != nil {
		query = query.Where("tenant_id = ?", *params.TenantID)
	}
	if strings.TrimSpace(params.Outcome) != "" {
		query = query.Where("outcome = ?", strings.TrimSpace(params.Outcome))
	}
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	offset := params.Offset
	if offset < 0 {
		offset = 0
	}
	var items []models.SyncRunRecord
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- Scheduler bookkeeping --------------------------------------------------

func (s *Store) GetJobState(ctx context.Context, jobID string) (*models.JobState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.JobState
	err := s.db.WithContext(ctx).Where("job_id = ?", jobID).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveJobState(ctx context.Context, state *models.JobState) error {
	if s == nil || s.db == nil || state == nil {
		return nil
	}
	if strings.TrimSpace(state.JobID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "job_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"last_fire_at", "last_success_at", "last_error", "stats_json",
		}),
	}).Create(state).Error
}
