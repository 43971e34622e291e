package scheduler

import (
	"time"

	"conductor/app/config"
	"conductor/app/objects"
	"conductor/app/workflow"
	"conductor/pkg/contextx"
	"conductor/pkg/log"
)

const (
	lockName = "delay-scheduler"
	// a lock untouched for this many intervals belongs to a dead scheduler
	staleLockIntervals = 10
)

// Scheduler resumes workflows whose delays ran out. Only one instance in a
// cluster works at a time, guarded by a named lock row.
type Scheduler struct {
	engine   *workflow.Engine
	interval time.Duration
}

func NewScheduler(engine *workflow.Engine, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{engine: engine, interval: cfg.Interval}
}

// Tick reconciles every workflow with an expired delay and returns how many
// were updated. A failing workflow is logged and skipped.
func (s *Scheduler) Tick(ctx *contextx.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-staleLockIntervals * s.interval)
	if _, err := objects.ReleaseStaleLock(ctx, lockName, cutoff); err != nil {
		return 0, err
	}
	updated := 0
	err := objects.WithNamedLock(ctx, lockName, func() error {
		workflows, err := objects.QueryWorkflowsWithExpiredDelays(ctx, s.engine.Now())
		if err != nil {
			return err
		}
		for _, wf := range workflows {
			sysCtx := contextx.NewSystemContext(wf.AccountID)
			sysCtx.SetDB(ctx.GetDB())
			sysCtx.SetWorkflow(wf.ID)
			if err := s.engine.UpdateTasksStatus(sysCtx, wf.ID); err != nil {
				log.Errorf(sysCtx, "update expired delays of workflow %s failed: %s", wf.ID, err.Error())
				continue
			}
			updated++
		}
		return nil
	})
	return updated, err
}

func (s *Scheduler) Run(ctx *contextx.Context) {
	log.Infof(ctx, "delay scheduler started, interval %s", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info(ctx, "delay scheduler stopped")
			return
		case <-ticker.C:
			if n, err := s.Tick(ctx); err != nil {
				log.Warnf(ctx, "delay scheduler tick skipped: %s", err.Error())
			} else if n > 0 {
				log.Infof(ctx, "delay scheduler resumed %d workflows", n)
			}
		}
	}
}
