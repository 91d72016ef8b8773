// Package jobs runs periodic maintenance on a cron schedule.
//
// Jobs are registered with a standard five field cron spec (or a
// descriptor such as "@every 5m"). A run that is still going when its next
// tick arrives is skipped, and a panic in one job never stops the scheduler.
//
//	s := jobs.NewScheduler(logger, metrics)
//	s.Add(jobs.MenuTreeWarm(menus, "@every 5m"))
//	s.Start(ctx)
//	defer s.Stop()
package jobs
