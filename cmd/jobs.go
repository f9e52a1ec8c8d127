package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"termpool/internal/jobs"
	"termpool/internal/pool"
	"termpool/pkg/logger"
	mysqlstore "termpool/pkg/store/mysql"
	redisstore "termpool/pkg/store/redis"
)

const (
	taskRetentionInterval  = 10 * time.Minute
	auditRetentionInterval = time.Hour
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	manager.Register(newMetricsReportJob(app.config.Pool.MetricsInterval, app.pool))
	manager.Register(newTaskRetentionJob(taskRetentionInterval, app.config.Task.Retention, app.pool))

	if app.terminalRepo != nil {
		manager.Register(newTerminalPublishJob(app.config.Pool.HealthInterval, app.pool, app.terminalRepo))
	}
	if app.mysqlRepo != nil {
		manager.Register(newAuditRetentionJob(auditRetentionInterval, app.config.MySQL.AuditRetention, app.mysqlRepo.AuditEvents))
	}

	app.jobsManager = manager
	return nil
}

// metricsReportJob logs a pool metrics line on interval boundaries.
type metricsReportJob struct {
	interval time.Duration
	pool     *pool.Manager
}

func newMetricsReportJob(interval time.Duration, p *pool.Manager) jobs.Job {
	return &metricsReportJob{interval: interval, pool: p}
}

func (j *metricsReportJob) Name() string { return "pool-metrics-report" }

func (j *metricsReportJob) Interval() time.Duration { return j.interval }

func (j *metricsReportJob) AlignToInterval() bool { return true }

func (j *metricsReportJob) Run(ctx context.Context) error {
	m := j.pool.Metrics()
	logger.Info("pool metrics",
		zap.Int("target_size", m.TargetSize),
		zap.Int("terminals", m.Terminals),
		zap.Int("idle_terminals", m.IdleTerminals),
		zap.Any("terminals_by_state", m.TerminalsByState),
		zap.Int("queue_depth", m.QueueDepth),
		zap.Int("queue_capacity", m.QueueCapacity),
		zap.Int("active_tasks", m.ActiveTasks),
		zap.Int("suspended_tasks", m.SuspendedTasks),
		zap.Int("completed_tasks", m.CompletedTasks),
		zap.Int("escalated_tasks", m.EscalatedTasks),
		zap.Int("cancelled_tasks", m.CancelledTasks),
		zap.Int("retired_terminals", m.RetiredTerminals),
	)
	return nil
}

// taskRetentionJob drops finished tasks from memory after the retention period.
type taskRetentionJob struct {
	interval  time.Duration
	retention time.Duration
	pool      *pool.Manager
}

func newTaskRetentionJob(interval, retention time.Duration, p *pool.Manager) jobs.Job {
	return &taskRetentionJob{interval: interval, retention: retention, pool: p}
}

func (j *taskRetentionJob) Name() string { return "task-retention" }

func (j *taskRetentionJob) Interval() time.Duration { return j.interval }

func (j *taskRetentionJob) Run(ctx context.Context) error {
	if n := j.pool.PruneFinished(j.retention); n > 0 {
		logger.InfoCtx(ctx, "pruned %d finished tasks older than %s", n, j.retention)
	}
	return nil
}

// terminalPublishJob mirrors terminal state into Redis for dashboards and standby instances.
type terminalPublishJob struct {
	interval time.Duration
	pool     *pool.Manager
	repo     *redisstore.TerminalRepository
}

func newTerminalPublishJob(interval time.Duration, p *pool.Manager, repo *redisstore.TerminalRepository) jobs.Job {
	return &terminalPublishJob{interval: interval, pool: p, repo: repo}
}

func (j *terminalPublishJob) Name() string { return "terminal-state-publish" }

func (j *terminalPublishJob) Interval() time.Duration { return j.interval }

func (j *terminalPublishJob) Run(ctx context.Context) error {
	if err := j.repo.Publish(ctx, j.pool.Terminals(), j.pool.RetiredTerminals()); err != nil {
		return fmt.Errorf("publish terminal state: %w", err)
	}
	return nil
}

// auditRetentionJob deletes persisted audit events past retention.
type auditRetentionJob struct {
	interval  time.Duration
	retention time.Duration
	repo      *mysqlstore.AuditEventRepository
}

func newAuditRetentionJob(interval, retention time.Duration, repo *mysqlstore.AuditEventRepository) jobs.Job {
	return &auditRetentionJob{interval: interval, retention: retention, repo: repo}
}

func (j *auditRetentionJob) Name() string { return "audit-retention" }

func (j *auditRetentionJob) Interval() time.Duration { return j.interval }

func (j *auditRetentionJob) AlignToInterval() bool { return true }

func (j *auditRetentionJob) Run(ctx context.Context) error {
	deleted, err := j.repo.DeleteBefore(ctx, time.Now().Add(-j.retention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.InfoCtx(ctx, "deleted %d audit events older than %s", deleted, j.retention)
	}
	return nil
}
