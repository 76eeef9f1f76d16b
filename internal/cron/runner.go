package cronrunner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"qbsync/internal/models"
	"qbsync/internal/repository"
	"qbsync/internal/retry"
)

// JobFunc is one scheduled job body. The returned stats value (may be nil)
// is persisted as the job's jsonb stats on success.
type JobFunc func(ctx context.Context) (stats any, err error)

type jobEntry struct {
	id       string
	schedule cron.Schedule
	run      func(ctx context.Context)
	inFlight sync.Mutex
}

// Runner dispatches recurring jobs with at-most-one execution per job id, a
// bounded retry-with-backoff around each invocation, and persisted fire
// times so a trigger missed while the process was down fires once, shortly
// after Start, instead of being dropped.
type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context

	store  repository.Repository
	policy retry.Policy
	// CatchupWindow bounds how stale a missed trigger may be and still earn a
	// catch-up run; older misses are dropped as stale.
	catchupWindow time.Duration

	parser cron.Parser
	jobs   []*jobEntry
}

func New(logger *zap.Logger, baseCtx context.Context, store repository.Repository, policy retry.Policy, catchupWindow time.Duration) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:          cron.New(cron.WithSeconds()),
		logger:        logger,
		baseCtx:       baseCtx,
		store:         store,
		policy:        policy,
		catchupWindow: catchupWindow,
		parser:        cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// AddJob registers a recurring job under id with a 6-field cron spec.
func (r *Runner) AddJob(id, spec string, job JobFunc) error {
	schedule, err := r.parser.Parse(spec)
	if err != nil {
		return err
	}
	entry := &jobEntry{id: id, schedule: schedule}
	entry.run = func(ctx context.Context) {
		r.invoke(ctx, entry, job)
	}
	r.cron.Schedule(schedule, cron.FuncJob(func() { entry.run(r.baseCtx) }))
	r.jobs = append(r.jobs, entry)
	return nil
}

// invoke is the wrapper around every firing: single-instance guard, fire-time
// bookkeeping, bounded retry, terminal-failure logging. Giving up never
// deregisters the job; the next trigger fires normally.
func (r *Runner) invoke(ctx context.Context, entry *jobEntry, job JobFunc) {
	if !entry.inFlight.TryLock() {
		if r.logger != nil {
			r.logger.Warn("job still running, trigger skipped", zap.String("job", entry.id))
		}
		return
	}
	defer entry.inFlight.Unlock()

	now := time.Now().UTC()
	state := &models.JobState{JobID: entry.id, LastFireAt: &now}
	r.saveState(ctx, state)

	var stats any
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var runErr error
		stats, runErr = job(ctx)
		if runErr != nil && r.logger != nil {
			r.logger.Warn("job attempt failed", zap.String("job", entry.id), zap.Error(runErr))
		}
		return runErr
	})
	if err != nil {
		if r.logger != nil {
			r.logger.Error("job failed after retries", zap.String("job", entry.id), zap.Error(err))
		}
		msg := err.Error()
		state.LastError = &msg
		r.saveState(ctx, state)
		return
	}

	done := time.Now().UTC()
	state.LastSuccessAt = &done
	if stats != nil {
		if raw, merr := json.Marshal(stats); merr == nil {
			state.StatsJSON = raw
		}
	}
	r.saveState(ctx, state)
}

// Start launches the cron loop and, first, coalesces missed triggers: a job
// whose persisted last fire is more than one schedule period stale (but
// within the catch-up window) runs once in the background.
func (r *Runner) Start() {
	for _, entry := range r.jobs {
		if r.shouldCatchUp(entry, time.Now().UTC()) {
			e := entry
			if r.logger != nil {
				r.logger.Info("missed trigger, running catch-up", zap.String("job", e.id))
			}
			go e.run(r.baseCtx)
		}
	}
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) shouldCatchUp(entry *jobEntry, now time.Time) bool {
	if r.store == nil {
		return false
	}
	state, err := r.store.GetJobState(r.baseCtx, entry.id)
	if err != nil || state == nil || state.LastFireAt == nil {
		// Never fired (or unknowable): first regular trigger handles it.
		return false
	}
	return MissedTrigger(entry.schedule, *state.LastFireAt, now, r.catchupWindow)
}

// MissedTrigger reports whether a trigger due after lastFire was missed and
// is still recent enough, per the grace window, to coalesce into one
// catch-up run.
func MissedTrigger(schedule cron.Schedule, lastFire, now time.Time, window time.Duration) bool {
	due := schedule.Next(lastFire)
	if !due.Before(now) {
		return false
	}
	if window > 0 && now.Sub(due) > window {
		return false
	}
	return true
}

func (r *Runner) saveState(ctx context.Context, state *models.JobState) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveJobState(ctx, state); err != nil && r.logger != nil {
		r.logger.Warn("job state save failed", zap.String("job", state.JobID), zap.Error(err))
	}
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}
