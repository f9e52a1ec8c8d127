package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"termpool/app/handler"
	"termpool/app/router"
	"termpool/internal/pool"
	"termpool/pkg/adapter/process"
	"termpool/pkg/adapter/scripted"
	"termpool/pkg/audit"
	"termpool/pkg/capacity"
	"termpool/pkg/lock"
	"termpool/pkg/logger"
	"termpool/pkg/notification"
	mysqlstore "termpool/pkg/store/mysql"
	redisstore "termpool/pkg/store/redis"
)

const (
	auditSinkBuffer = 4096
	adapterProcess  = "process"
	adapterScripted = "scripted"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	app.config = cfg
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.InitWith(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.InfoCtx(app.ctx, "Logging system has been closed")
		_ = logger.Sync()
	})
	return nil
}

// initRedis connects Redis for the audit stream, the pool lock and terminal publishing
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled {
		logger.InfoCtx(app.ctx, "Redis disabled, running as a single instance without audit stream")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}
	app.redisClient = client
	app.registerCleanup(func() {
		_ = client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})

	app.leaderLock = lock.NewRedisLock(client.GetClient(), app.config.Redis.LockKey)
	app.registerCleanup(func() {
		if err := app.leaderLock.Unlock(app.ctx); err != nil {
			logger.WarnCtx(app.ctx, "Failed to release pool lock: %v", err)
		}
	})

	app.terminalRepo = redisstore.NewTerminalRepository(client, 3*app.config.Pool.HealthInterval)
	return nil
}

// initMySQL connects MySQL for durable audit events and escalation records
func (app *Application) initMySQL() error {
	if !app.config.MySQL.Enabled {
		logger.InfoCtx(app.ctx, "MySQL disabled, audit events and diagnoses are kept in memory only")
		return nil
	}

	repo, err := mysqlstore.NewRepository(app.ctx, app.config.MySQL)
	if err != nil {
		return err
	}
	app.mysqlRepo = repo
	app.registerCleanup(func() {
		_ = repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initAudit builds the audit log with its sinks. Remote sinks are asynchronous
// so a slow store never stalls the pool.
func (app *Application) initAudit() error {
	app.auditLog = audit.New(audit.WithSinks(audit.NewZapSink()))

	if app.redisClient != nil {
		stream := audit.NewRedisStreamSink(app.redisClient.GetClient(), app.config.Redis.AuditStream, app.config.Redis.AuditStreamMaxLen)
		app.addAsyncSink(stream)
	}
	if app.mysqlRepo != nil {
		app.addAsyncSink(app.mysqlRepo.AuditEvents)
	}
	return nil
}

func (app *Application) addAsyncSink(sink audit.Sink) {
	async := audit.NewAsyncSink(sink, auditSinkBuffer)
	app.auditLog.AddSink(async)
	app.registerCleanup(func() {
		async.Close()
		logger.InfoCtx(app.ctx, "Audit sink %s flushed", sink.Name())
	})
}

// initAdapter creates the worker-execution adapter
func (app *Application) initAdapter() error {
	switch app.config.Adapter.Type {
	case adapterProcess:
		a, err := process.NewAdapter(app.config.Adapter)
		if err != nil {
			return err
		}
		app.adapter = a
		app.registerCleanup(func() {
			a.KillAll()
			logger.InfoCtx(app.ctx, "Terminal processes have been stopped")
		})
	case adapterScripted:
		logger.WarnCtx(app.ctx, "Using the scripted adapter: every task completes immediately, no assistant is started")
		app.adapter = scripted.New()
	default:
		return fmt.Errorf("unknown adapter type %q", app.config.Adapter.Type)
	}
	return nil
}

// initPool creates the pool manager with sizing, notifications and escalation records
func (app *Application) initPool() error {
	sizer, err := capacity.NewSizer(app.config.Pool)
	if err != nil {
		return err
	}
	app.sizer = sizer

	notifier := notification.FromConfig(app.config.Notification)
	logger.InfoCtx(app.ctx, "Escalation notifiers configured: %d", notifier.Len())

	app.pool = pool.NewManager(app.config, app.adapter, app.auditLog, notifier)
	app.pool.SetSizer(sizer)
	if app.mysqlRepo != nil {
		app.pool.SetEscalationRecorder(app.mysqlRepo.Escalations)
	}
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.taskHandler = handler.NewTaskHandler(app.pool)
	app.terminalHandler = handler.NewTerminalHandler(app.pool)
	app.poolHandler = handler.NewPoolHandler(app.pool)
	app.eventHandler = handler.NewEventHandler(app.auditLog)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()

	r := router.NewRouter(app.taskHandler, app.terminalHandler, app.poolHandler, app.eventHandler, app.config.Server.APIKey)
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
