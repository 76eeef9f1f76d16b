package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"qbsync/internal/service"
)

// Reporter forwards run summaries to the notification service. Delivery is
// best effort; failures are logged and swallowed so they never touch the
// sync path.
type Reporter struct {
	Client  *Client
	Logger  *zap.Logger
	Timeout time.Duration
}

func (r *Reporter) Report(_ context.Context, summary service.RunSummary) {
	if r == nil || r.Client == nil {
		return
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// Detached from the run's context so a finished or cancelled run can
	// still report itself.
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	succeeded, failed, skipped := summary.Counts()
	outcomes, err := json.Marshal(summary.Outcomes)
	if err != nil {
		outcomes = json.RawMessage("[]")
	}
	req := RunReportRequest{
		Job:       summary.Job,
		StartedAt: summary.StartedAt,
		Succeeded: succeeded,
		Failed:    failed,
		Skipped:   skipped,
		Outcomes:  outcomes,
	}
	if err := r.Client.SendRunReport(ctx, req); err != nil && r.Logger != nil {
		r.Logger.Warn("run report delivery failed",
			zap.String("job", summary.Job),
			zap.Error(err),
		)
	}
}
