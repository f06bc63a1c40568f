package jobs

import (
	"context"
	"log/slog"

	"orderdispatch/internal/core/application/usecases/commands"

	"github.com/robfig/cron/v3"
)

// PendingDispatcher runs the matcher over orders waiting for an agent.
type PendingDispatcher interface {
	Handle(ctx context.Context, cmd commands.DispatchPendingCommand) (commands.DispatchSummary, error)
}

// DispatchRetryJob retries dispatch for orders whose backoff has elapsed.
type DispatchRetryJob struct {
	handler  PendingDispatcher
	schedule string
	batch    int
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewDispatchRetryJob(handler PendingDispatcher, schedule string, batch int, logger *slog.Logger) *DispatchRetryJob {
	return &DispatchRetryJob{
		handler:  handler,
		schedule: schedule,
		batch:    batch,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "dispatch_retry_job"),
	}
}

func (j *DispatchRetryJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.run(context.Background()) }); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Dispatch retry job started", "schedule", j.schedule)
	return nil
}

// Stop waits for a running sweep to finish.
func (j *DispatchRetryJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.InfoContext(context.Background(), "Dispatch retry job stopped")
}

func (j *DispatchRetryJob) run(ctx context.Context) {
	cmd, err := commands.NewDispatchPendingCommand(j.batch, false)
	if err != nil {
		j.logger.ErrorContext(ctx, "Dispatch retry job misconfigured", "error", err)
		return
	}

	summary, err := j.handler.Handle(ctx, cmd)
	if err != nil {
		j.logger.ErrorContext(ctx, "Dispatch retry job failed", "error", err)
		return
	}

	if len(summary) > 0 {
		j.logger.InfoContext(ctx, "Dispatch retry sweep finished",
			"assigned", summary[commands.DispatchAssigned],
			"rescheduled", summary[commands.DispatchRescheduled],
			"failed", summary[commands.DispatchFailed],
			"throttled", summary[commands.DispatchThrottled],
		)
	}
}
