package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"qbsync/internal/client/quickbooks"
	"qbsync/internal/crypto"
	"qbsync/internal/models"
	"qbsync/internal/repository"
)

// SyncService pulls entity data for every active tenant. Failures are
// contained at the narrowest scope that keeps the run moving: per record in
// the pipeline, per entity within a tenant, per tenant within the run.
type SyncService struct {
	Store    repository.Repository
	QB       QuickBooksAPI
	Cipher   *crypto.TokenCipher
	Pipeline *UpsertPipeline
	Locks    *TenantLocks
	Reporter Reporter
	Logger   *zap.Logger

	// DailyEntities is the fixed incremental set; OnboardingEntities the
	// wider backfill set (transactions plus reference data). Entity types are
	// processed in list order.
	DailyEntities      []string
	OnboardingEntities []string
	OnboardingStart    time.Time
	CallTimeout        time.Duration
}

// RunDailySync performs the incremental pull for all active tenants, each
// scoped to records updated since that tenant's last successful sync.
func (s *SyncService) RunDailySync(ctx context.Context) (RunSummary, error) {
	started := time.Now().UTC()
	summary := RunSummary{Job: "daily_sync", StartedAt: started}

	tenants, err := s.Store.ListActiveTenants(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active tenants: %w", err)
	}

	for _, tenant := range tenants {
		since := s.OnboardingStart
		if tenant.LastSyncAt != nil {
			since = *tenant.LastSyncAt
		}
		summary.Outcomes = append(summary.Outcomes, s.syncTenant(ctx, tenant, s.DailyEntities, since)...)
	}
	summary.Elapsed = time.Since(started)
	s.report(ctx, summary)
	return summary, nil
}

// RunOnboardingSync performs the one-time full historical load for a newly
// connected tenant: wider entity set, fixed lookback start.
func (s *SyncService) RunOnboardingSync(ctx context.Context, tenantID uint) (RunSummary, error) {
	started := time.Now().UTC()
	summary := RunSummary{Job: fmt.Sprintf("onboarding_sync_%d", tenantID), StartedAt: started}

	tenant, err := s.Store.GetTenantByID(ctx, tenantID)
	if err != nil {
		return summary, fmt.Errorf("load tenant %d: %w", tenantID, err)
	}
	if tenant == nil || !tenant.Active {
		return summary, fmt.Errorf("tenant %d not found or inactive", tenantID)
	}

	summary.Outcomes = s.syncTenant(ctx, *tenant, s.OnboardingEntities, s.OnboardingStart)
	summary.Elapsed = time.Since(started)
	s.report(ctx, summary)
	return summary, nil
}

func (s *SyncService) syncTenant(ctx context.Context, tenant models.TenantCredential, entities []string, since time.Time) []SyncOutcome {
	if s.Locks != nil {
		if !s.Locks.TryAcquire(tenant.ID) {
			return []SyncOutcome{{
				TenantID:    tenant.ID,
				CompanyName: tenant.CompanyName,
				Realm:       tenant.RealmID,
				EntityType:  "Sync",
				Outcome:     models.OutcomeSkipped,
				Message:     "tenant busy (sync or refresh in flight)",
			}}
		}
		defer s.Locks.Release(tenant.ID)
	}

	accessToken, err := s.Cipher.Decrypt(tenant.AccessTokenEnc)
	if err != nil {
		msg := fmt.Sprintf("access token decrypt failed: %v", err)
		return []SyncOutcome{s.record(ctx, tenant, "Credentials", models.OutcomeFailed, msg, 0)}
	}

	callCtx, cancel := s.callContext(ctx)
	status, err := s.QB.VerifyRealm(callCtx, tenant.RealmID, accessToken)
	cancel()
	if err != nil {
		msg := fmt.Sprintf("realm verification failed: %v", err)
		return []SyncOutcome{s.record(ctx, tenant, "CompanyInfo", models.OutcomeFailed, msg, 0)}
	}
	if status != quickbooks.RealmOK {
		msg := fmt.Sprintf("realm %s not recognized, tenant skipped", tenant.RealmID)
		return []SyncOutcome{s.record(ctx, tenant, "CompanyInfo", models.OutcomeSkipped, msg, 0)}
	}

	outcomes := make([]SyncOutcome, 0, len(entities))
	for _, entity := range entities {
		outcomes = append(outcomes, s.syncEntity(ctx, tenant, accessToken, entity, since))
	}

	if err := s.Store.UpdateTenantLastSync(ctx, tenant.ID, time.Now().UTC()); err != nil && s.Logger != nil {
		s.Logger.Warn("update last sync failed", zap.Uint("tenant_id", tenant.ID), zap.Error(err))
	}
	return outcomes
}

func (s *SyncService) syncEntity(ctx context.Context, tenant models.TenantCredential, accessToken, entity string, since time.Time) SyncOutcome {
	start := time.Now()

	callCtx, cancel := s.callContext(ctx)
	records, err := s.QB.QueryAll(callCtx, tenant.RealmID, accessToken, entity, &since)
	cancel()
	if err != nil {
		msg := fmt.Sprintf("%s fetch failed: %v", entity, err)
		return s.record(ctx, tenant, entity, models.OutcomeFailed, msg, time.Since(start).Seconds())
	}

	stats, err := s.Pipeline.Upsert(ctx, entity, tenant.ID, FlattenForUpsert(entity, records))
	elapsed := time.Since(start).Seconds()
	if err != nil {
		msg := fmt.Sprintf("%s upsert failed after %d rows: %v", entity, stats.Upserted, err)
		return s.record(ctx, tenant, entity, models.OutcomeFailed, msg, elapsed)
	}

	msg := fmt.Sprintf("%s sync completed: %d upserted, %d dropped, %d failed",
		entity, stats.Upserted, stats.Dropped, stats.Failed)
	return s.record(ctx, tenant, entity, models.OutcomeSucceeded, msg, elapsed)
}

// record appends one audit row and returns the matching summary outcome. An
// audit write failure is logged; it never fails the entity.
func (s *SyncService) record(ctx context.Context, tenant models.TenantCredential, entity, outcome, message string, elapsed float64) SyncOutcome {
	rec := &models.SyncRunRecord{
		TenantID:       tenant.ID,
		CompanyName:    tenant.CompanyName,
		EntityType:     entity,
		Outcome:        outcome,
		Message:        message,
		ElapsedSeconds: elapsed,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Store.AppendSyncRunRecord(ctx, rec); err != nil && s.Logger != nil {
		s.Logger.Warn("sync run record append failed",
			zap.Uint("tenant_id", tenant.ID),
			zap.String("entity", entity),
			zap.Error(err),
		)
	}
	if s.Logger != nil {
		s.Logger.Info("entity outcome",
			zap.Uint("tenant_id", tenant.ID),
			zap.String("entity", entity),
			zap.String("outcome", outcome),
			zap.String("message", message),
		)
	}
	return SyncOutcome{
		TenantID:    tenant.ID,
		CompanyName: tenant.CompanyName,
		Realm:       tenant.RealmID,
		EntityType:  entity,
		Outcome:     outcome,
		Message:     message,
		ElapsedSecs: elapsed,
	}
}

func (s *SyncService) report(ctx context.Context, summary RunSummary) {
	if s.Reporter == nil {
		return
	}
	s.Reporter.Report(ctx, summary)
}

func (s *SyncService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.CallTimeout)
	}
	return context.WithCancel(ctx)
}
