package app

import (
	"context"
	"time"

	pkgcron "github.com/mocktalk/realtime/internal/pkg/cron"
	"go.uber.org/zap"
)

const backlogPruneInterval = 10 * time.Minute

// registerCronJobs registers the realtime housekeeping jobs.
func registerCronJobs(sched *pkgcron.Scheduler, a *App) {
	rt := a.cfg.Realtime
	cronLogger := a.logger.Named("CronService")

	sched.Register(pkgcron.Job{
		Name:        "realtime_heartbeat",
		Description: "send HEARTBEAT to every open stream",
		Interval:    rt.HeartbeatInterval(),
		Fn: func(ctx context.Context) error {
			sent := a.boards.Heartbeat() + a.users.Heartbeat()
			cronLogger.Debug("heartbeat sent", zap.Int("connections", sent))
			return nil
		},
	})

	sched.Register(pkgcron.Job{
		Name:        "presence_sweep",
		Description: "drop expired presence sessions",
		Interval:    rt.PresenceSweepInterval(),
		Fn: func(ctx context.Context) error {
			n, err := a.tracker.Sweep(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				cronLogger.Debug("presence sessions expired", zap.Int("removed", n))
			}
			return nil
		},
	})

	if rt.ReplayBufferSize > 0 && rt.BacklogRetention() > 0 {
		sched.Register(pkgcron.Job{
			Name:        "backlog_prune",
			Description: "drop resume buffers of idle scopes",
			Interval:    backlogPruneInterval,
			Fn: func(ctx context.Context) error {
				n := a.boards.PruneBacklog(rt.BacklogRetention()) + a.users.PruneBacklog(rt.BacklogRetention())
				if n > 0 {
					cronLogger.Info("resume buffers pruned", zap.Int("scopes", n))
				}
				return nil
			},
		})
	}
}
