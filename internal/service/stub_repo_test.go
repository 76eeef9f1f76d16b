package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"qbsync/internal/models"
	"qbsync/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// Dynamic entity tables are modeled as column sets plus merged rows keyed
// (tenant_id, qb_id).
type stubRepo struct {
	mu sync.Mutex

	tenants []models.TenantCredential
	runLog  []models.SyncRunRecord
	states  map[string]models.JobState

	columns map[string]map[string]struct{}          // table -> columns
	rows    map[string]map[string]map[string]string // table -> tenant/qb key -> fields

	failUpdateTokens bool
	failMergeQBIDs   map[string]bool
	addColumnErr     error
	addColumnCalls   int
}

func newStubRepo(tenants ...models.TenantCredential) *stubRepo {
	return &stubRepo{
		tenants: tenants,
		states:  map[string]models.JobState{},
		columns: map[string]map[string]struct{}{},
		rows:    map[string]map[string]map[string]string{},
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func (s *stubRepo) ListActiveTenants(ctx context.Context) ([]models.TenantCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TenantCredential, 0, len(s.tenants))
	for _, t := range s.tenants {
		if t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubRepo) GetTenantByID(ctx context.Context, id uint) (*models.TenantCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tenants {
		if s.tenants[i].ID == id {
			t := s.tenants[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) UpdateTenantTokens(ctx context.Context, id uint, accessEnc, refreshEnc string, expiry, refreshedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdateTokens {
		return errors.New("stub: update tokens refused")
	}
	for i := range s.tenants {
		if s.tenants[i].ID == id {
			s.tenants[i].AccessTokenEnc = accessEnc
			s.tenants[i].RefreshTokenEnc = refreshEnc
			e := expiry
			r := refreshedAt
			s.tenants[i].TokenExpiry = &e
			s.tenants[i].LastRefreshAt = &r
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubRepo) UpdateTenantLastSync(ctx context.Context, id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tenants {
		if s.tenants[i].ID == id {
			t := at
			s.tenants[i].LastSyncAt = &t
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (s *stubRepo) AppendSyncRunRecord(ctx context.Context, rec *models.SyncRunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runLog = append(s.runLog, *rec)
	return nil
}

func (s *stubRepo) ListSyncRunRecords(ctx context.Context, params repository.ListSyncRunParams) ([]models.SyncRunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.SyncRunRecord, 0, len(s.runLog))
	for _, rec := range s.runLog {
		if params.TenantID != nil && rec.TenantID != *params.TenantID {
			continue
		}
		if params.Outcome != "" && rec.Outcome != params.Outcome {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *stubRepo) GetJobState(ctx context.Context, jobID string) (*models.JobState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[jobID]; ok {
		cp := st
		return &cp, nil
	}
	return nil, nil
}

func (s *stubRepo) SaveJobState(ctx context.Context, state *models.JobState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.JobID] = *state
	return nil
}

func (s *stubRepo) EnsureEntityTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTableLocked(table)
	return nil
}

func (s *stubRepo) ensureTableLocked(table string) {
	if _, ok := s.columns[table]; !ok {
		s.columns[table] = map[string]struct{}{
			"tenant_id": {}, "qb_id": {}, "synced_at": {},
		}
	}
	if _, ok := s.rows[table]; !ok {
		s.rows[table] = map[string]map[string]string{}
	}
}

func (s *stubRepo) TableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureTableLocked(table)
	out := make(map[string]struct{}, len(s.columns[table]))
	for c := range s.columns[table] {
		out[c] = struct{}{}
	}
	return out, nil
}

func (s *stubRepo) AddTextColumn(ctx context.Context, table, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addColumnCalls++
	if s.addColumnErr != nil {
		err := s.addColumnErr
		s.addColumnErr = nil // fail once, then recover
		return err
	}
	s.ensureTableLocked(table)
	s.columns[table][column] = struct{}{}
	return nil
}

func (s *stubRepo) MergeEntityRow(ctx context.Context, table string, tenantID uint, qbID string, fields map[string]*string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMergeQBIDs[qbID] {
		return errors.New("stub: merge refused")
	}
	s.ensureTableLocked(table)
	key := mergeKey(tenantID, qbID)
	row, ok := s.rows[table][key]
	if !ok {
		row = map[string]string{}
		s.rows[table][key] = row
	}
	for col, val := range fields {
		if val == nil {
			delete(row, col)
			continue
		}
		row[col] = *val
	}
	return nil
}

func (s *stubRepo) TenantHasRows(ctx context.Context, table string, tenantID uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := mergeKey(tenantID, "")
	for key := range s.rows[table] {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			return true, nil
		}
	}
	return false, nil
}

func mergeKey(tenantID uint, qbID string) string {
	return fmt.Sprintf("%d\x00%s", tenantID, qbID)
}

var _ repository.Repository = (*stubRepo)(nil)
