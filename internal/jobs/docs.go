// Package jobs provides scheduled background tasks built on
// github.com/robfig/cron/v3 with second-resolution schedules.
//
// # Available Jobs
//
//  1. DispatchRetryJob - sweeps ready-for-pickup orders whose dispatch backoff
//     has elapsed and runs the matcher on them, oldest first
//  2. AgentLivenessJob - takes available agents offline when their last
//     location report is older than the configured TTL
//
// # Usage
//
//	retry := jobs.NewDispatchRetryJob(pendingHandler, "*/5 * * * * *", 100, logger)
//	liveness := jobs.NewAgentLivenessJob(staleHandler, "*/30 * * * * *", 5*time.Minute, 500, logger)
//	jobManager := jobs.NewJobManager(retry, liveness)
//
//	if err := jobManager.StartAll(); err != nil {
//		log.Fatal("Failed to start jobs:", err)
//	}
//	defer jobManager.StopAll()
//
// # Error Handling
//
// Jobs never stop on a failed run. Failures are logged and the next tick
// tries again; orders and agents skipped because of a concurrent write are
// picked up on a later run.
package jobs
