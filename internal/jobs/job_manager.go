package jobs

import (
	"fmt"
)

// JobManager coordinates all scheduled jobs in the application.
type JobManager struct {
	dispatchRetryJob *DispatchRetryJob
	agentLivenessJob *AgentLivenessJob
}

func NewJobManager(dispatchRetryJob *DispatchRetryJob, agentLivenessJob *AgentLivenessJob) *JobManager {
	return &JobManager{
		dispatchRetryJob: dispatchRetryJob,
		agentLivenessJob: agentLivenessJob,
	}
}

// StartAll starts all scheduled jobs. A failed start stops the jobs already
// running.
func (jm *JobManager) StartAll() error {
	if err := jm.dispatchRetryJob.Start(); err != nil {
		return fmt.Errorf("failed to start dispatch retry job: %w", err)
	}

	if err := jm.agentLivenessJob.Start(); err != nil {
		jm.dispatchRetryJob.Stop()
		return fmt.Errorf("failed to start agent liveness job: %w", err)
	}

	return nil
}

// StopAll stops all scheduled jobs and waits for running ones to return.
func (jm *JobManager) StopAll() {
	jm.agentLivenessJob.Stop()
	jm.dispatchRetryJob.Stop()
}
