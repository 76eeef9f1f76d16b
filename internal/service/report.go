package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"qbsync/internal/models"
)

// SyncOutcome is one per-(tenant, entity) result inside a run.
type SyncOutcome struct {
	TenantID    uint    `json:"tenant_id"`
	CompanyName string  `json:"company_name"`
	Realm       string  `json:"realm"`
	EntityType  string  `json:"entity_type"`
	Outcome     string  `json:"outcome"`
	Message     string  `json:"message"`
	ElapsedSecs float64 `json:"elapsed_seconds"`
}

// RunSummary aggregates a whole job invocation for the report sink.
type RunSummary struct {
	Job       string        `json:"job"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"-"`
	Outcomes  []SyncOutcome `json:"outcomes"`
}

func (s *RunSummary) add(o SyncOutcome) {
	s.Outcomes = append(s.Outcomes, o)
}

// Counts tallies outcomes by kind.
func (s RunSummary) Counts() (succeeded, failed, skipped int) {
	for _, o := range s.Outcomes {
		switch o.Outcome {
		case models.OutcomeSucceeded:
			succeeded++
		case models.OutcomeFailed:
			failed++
		case models.OutcomeSkipped:
			skipped++
		}
	}
	return
}

// Reporter receives a finished run's summary. Implementations must never
// return an error into the sync path; a failed report is the reporter's
// own problem to log.
type Reporter interface {
	Report(ctx context.Context, summary RunSummary)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, summary RunSummary)

func (f ReporterFunc) Report(ctx context.Context, summary RunSummary) {
	if f != nil {
		f(ctx, summary)
	}
}

// LogReporter writes the summary to the service log.
type LogReporter struct {
	Logger *zap.Logger
}

func (r *LogReporter) Report(_ context.Context, summary RunSummary) {
	if r == nil || r.Logger == nil {
		return
	}
	succeeded, failed, skipped := summary.Counts()
	r.Logger.Info("run summary",
		zap.String("job", summary.Job),
		zap.Time("started_at", summary.StartedAt),
		zap.Duration("elapsed", summary.Elapsed),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", failed),
		zap.Int("skipped", skipped),
	)
}
