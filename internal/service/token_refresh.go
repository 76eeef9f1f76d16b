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

// QuickBooksAPI is the slice of the upstream client the services consume.
type QuickBooksAPI interface {
	VerifyRealm(ctx context.Context, realmID, accessToken string) (quickbooks.RealmStatus, error)
	RefreshToken(ctx context.Context, refreshToken string) (quickbooks.TokenResponse, error)
	QueryAll(ctx context.Context, realmID, accessToken, entity string, since *time.Time) ([]map[string]any, error)
}

// TokenRefreshService rotates every active tenant's token pair. One tenant's
// failure never blocks the rest; transient failures are retried by the
// scheduler's backoff wrapper, not here.
type TokenRefreshService struct {
	Store       repository.Repository
	QB          QuickBooksAPI
	Cipher      *crypto.TokenCipher
	Locks       *TenantLocks
	Logger      *zap.Logger
	CallTimeout time.Duration
}

func (s *TokenRefreshService) RefreshAll(ctx context.Context) (RunSummary, error) {
	started := time.Now().UTC()
	summary := RunSummary{Job: "token_refresh", StartedAt: started}

	tenants, err := s.Store.ListActiveTenants(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active tenants: %w", err)
	}

	for _, tenant := range tenants {
		summary.add(s.refreshTenant(ctx, tenant))
	}
	summary.Elapsed = time.Since(started)
	return summary, nil
}

func (s *TokenRefreshService) refreshTenant(ctx context.Context, tenant models.TenantCredential) SyncOutcome {
	outcome := SyncOutcome{
		TenantID:    tenant.ID,
		CompanyName: tenant.CompanyName,
		Realm:       tenant.RealmID,
		EntityType:  "TokenRefresh",
	}
	start := time.Now()

	if s.Locks != nil && !s.Locks.TryAcquire(tenant.ID) {
		outcome.Outcome = models.OutcomeSkipped
		outcome.Message = "tenant busy (sync or refresh in flight)"
		return outcome
	}
	if s.Locks != nil {
		defer s.Locks.Release(tenant.ID)
	}

	refreshToken, err := s.Cipher.Decrypt(tenant.RefreshTokenEnc)
	if err != nil {
		outcome.Outcome = models.OutcomeFailed
		outcome.Message = fmt.Sprintf("refresh token decrypt failed: %v", err)
		s.logTenantError(tenant, "token decrypt failed", err)
		return outcome
	}

	callCtx, cancel := s.callContext(ctx)
	tr, err := s.QB.RefreshToken(callCtx, refreshToken)
	cancel()
	if err != nil {
		outcome.Outcome = models.OutcomeFailed
		outcome.Message = fmt.Sprintf("upstream refresh failed: %v", err)
		s.logTenantError(tenant, "upstream refresh failed", err)
		return outcome
	}

	accessEnc, err := s.Cipher.Encrypt(tr.AccessToken)
	if err == nil {
		var refreshEnc string
		refreshEnc, err = s.Cipher.Encrypt(tr.RefreshToken)
		if err == nil {
			now := time.Now().UTC()
			expiry := now.Add(time.Duration(tr.ExpiresIn) * time.Second)
			err = s.Store.UpdateTenantTokens(ctx, tenant.ID, accessEnc, refreshEnc, expiry, now)
		}
	}
	if err != nil {
		// Upstream already rotated the pair; failing to persist it means the
		// stored refresh token may now be dead. Flag loudly, do not reuse it.
		outcome.Outcome = models.OutcomeFailed
		outcome.Message = fmt.Sprintf("rotated pair not persisted, credential unrecoverable this cycle: %v", err)
		s.logTenantError(tenant, "rotated token pair not persisted", err)
		return outcome
	}

	outcome.Outcome = models.OutcomeSucceeded
	outcome.Message = "token pair rotated"
	outcome.ElapsedSecs = time.Since(start).Seconds()
	if s.Logger != nil {
		s.Logger.Info("token refreshed",
			zap.Uint("tenant_id", tenant.ID),
			zap.String("realm", tenant.RealmID),
		)
	}
	return outcome
}

func (s *TokenRefreshService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.CallTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *TokenRefreshService) logTenantError(tenant models.TenantCredential, msg string, err error) {
	if s.Logger == nil {
		return
	}
	s.Logger.Warn(msg,
		zap.Uint("tenant_id", tenant.ID),
		zap.String("realm", tenant.RealmID),
		zap.Error(err),
	)
}
