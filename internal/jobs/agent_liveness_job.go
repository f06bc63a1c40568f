package jobs

import (
	"context"
	"log/slog"
	"time"

	"orderdispatch/internal/core/application/usecases/commands"

	"github.com/robfig/cron/v3"
)

type StaleAgentMarker interface {
	Handle(ctx context.Context, cmd commands.MarkStaleAgentsOfflineCommand) (int, error)
}

// AgentLivenessJob takes available agents offline once their last location
// report is older than the TTL.
type AgentLivenessJob struct {
	handler  StaleAgentMarker
	schedule string
	ttl      time.Duration
	batch    int
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewAgentLivenessJob(
	handler StaleAgentMarker,
	schedule string,
	ttl time.Duration,
	batch int,
	logger *slog.Logger,
) *AgentLivenessJob {
	return &AgentLivenessJob{
		handler:  handler,
		schedule: schedule,
		ttl:      ttl,
		batch:    batch,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger.With("component", "agent_liveness_job"),
	}
}

func (j *AgentLivenessJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.run(context.Background()) }); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.InfoContext(context.Background(), "Agent liveness job started", "schedule", j.schedule, "ttl", j.ttl)
	return nil
}

func (j *AgentLivenessJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.InfoContext(context.Background(), "Agent liveness job stopped")
}

func (j *AgentLivenessJob) run(ctx context.Context) {
	cmd, err := commands.NewMarkStaleAgentsOfflineCommand(j.ttl, j.batch)
	if err != nil {
		j.logger.ErrorContext(ctx, "Agent liveness job misconfigured", "error", err)
		return
	}

	marked, err := j.handler.Handle(ctx, cmd)
	if err != nil {
		j.logger.ErrorContext(ctx, "Agent liveness job failed", "error", err)
		return
	}
	if marked > 0 {
		j.logger.InfoContext(ctx, "Stale agents taken offline", "count", marked)
	}
}
