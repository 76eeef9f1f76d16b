package service

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"qbsync/internal/models"
	"qbsync/internal/repository"
)

var ErrQueueFull = errors.New("onboarding queue full")

// OnboardingQueue runs one-shot historical backfills on its own bounded
// worker pool, so a burst of new connections never starves the scheduled
// refresh and sync jobs. Submit is fire-and-forget: the webhook that connects
// a tenant must never block on the backfill.
type OnboardingQueue struct {
	Store   repository.Repository
	Sync    *SyncService
	Logger  *zap.Logger
	Workers int

	jobs chan uint
	wg   sync.WaitGroup
	once sync.Once
}

func NewOnboardingQueue(store repository.Repository, sync *SyncService, logger *zap.Logger, workers, queueSize int) *OnboardingQueue {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	return &OnboardingQueue{
		Store:   store,
		Sync:    sync,
		Logger:  logger,
		Workers: workers,
		jobs:    make(chan uint, queueSize),
	}
}

func (q *OnboardingQueue) Start(ctx context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.Workers; i++ {
			q.wg.Add(1)
			go q.worker(ctx)
		}
	})
}

// Stop closes the queue and waits for in-flight backfills to finish.
func (q *OnboardingQueue) Stop() {
	close(q.jobs)
	q.wg.Wait()
}

// Submit enqueues a backfill and returns immediately. A full queue rejects
// the submission; the provider's webhook retry will re-submit and the
// already-onboarded check keeps that safe.
func (q *OnboardingQueue) Submit(tenantID uint) error {
	select {
	case q.jobs <- tenantID:
		if q.Logger != nil {
			q.Logger.Info("onboarding queued", zap.Uint("tenant_id", tenantID))
		}
		return nil
	default:
		if q.Logger != nil {
			q.Logger.Warn("onboarding rejected, queue full", zap.Uint("tenant_id", tenantID))
		}
		return ErrQueueFull
	}
}

func (q *OnboardingQueue) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tenantID, ok := <-q.jobs:
			if !ok {
				return
			}
			q.runBackfill(ctx, tenantID)
		}
	}
}

func (q *OnboardingQueue) runBackfill(ctx context.Context, tenantID uint) {
	onboarded, err := q.alreadyOnboarded(ctx, tenantID)
	if err != nil {
		if q.Logger != nil {
			q.Logger.Warn("onboarded check failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		}
		return
	}
	if onboarded {
		if q.Logger != nil {
			q.Logger.Info("tenant already onboarded, backfill skipped", zap.Uint("tenant_id", tenantID))
		}
		return
	}

	if q.Logger != nil {
		q.Logger.Info("backfill started", zap.Uint("tenant_id", tenantID))
	}
	summary, err := q.Sync.RunOnboardingSync(ctx, tenantID)
	if err != nil {
		if q.Logger != nil {
			q.Logger.Warn("backfill failed", zap.Uint("tenant_id", tenantID), zap.Error(err))
		}
		return
	}
	succeeded, failed, skipped := summary.Counts()
	if q.Logger != nil {
		q.Logger.Info("backfill finished",
			zap.Uint("tenant_id", tenantID),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
		)
	}
}

// alreadyOnboarded reports whether any backfill destination table already
// holds rows for the tenant, which makes a duplicate webhook a no-op.
func (q *OnboardingQueue) alreadyOnboarded(ctx context.Context, tenantID uint) (bool, error) {
	entities := q.Sync.OnboardingEntities
	for _, entity := range entities {
		table, ok := models.EntityTableFor(entity)
		if !ok {
			continue
		}
		has, err := q.Store.TenantHasRows(ctx, table, tenantID)
		if err != nil {
			return false, err
		}
		if has {
			return true, nil
		}
	}
	return false, nil
}
