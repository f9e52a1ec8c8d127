package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"termpool/app/handler"
	"termpool/internal/jobs"
	"termpool/internal/pool"
	"termpool/pkg/audit"
	"termpool/pkg/capacity"
	"termpool/pkg/config"
	"termpool/pkg/interfaces"
	"termpool/pkg/lock"
	"termpool/pkg/logger"
	mysqlstore "termpool/pkg/store/mysql"
	redisstore "termpool/pkg/store/redis"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config       *config.Config
	mysqlRepo    *mysqlstore.Repository
	redisClient  *redisstore.RedisClient
	leaderLock   *lock.RedisLock
	terminalRepo *redisstore.TerminalRepository

	// Pool
	auditLog *audit.Log
	adapter  interfaces.WorkerAdapter
	sizer    *capacity.Sizer
	pool     *pool.Manager

	// Handler layer
	taskHandler     *handler.TaskHandler
	terminalHandler *handler.TerminalHandler
	poolHandler     *handler.PoolHandler
	eventHandler    *handler.EventHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once

	// Background task cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Redis", app.initRedis},
		{"MySQL", app.initMySQL},
		{"Audit Log", app.initAudit},
		{"Worker Adapter", app.initAdapter},
		{"Terminal Pool", app.initPool},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. One pool per lock key: wait for leadership before launching terminals
	if app.leaderLock != nil {
		logger.InfoCtx(app.ctx, "Waiting for pool lock %s", app.config.Redis.LockKey)
		if err := app.leaderLock.Acquire(app.ctx, 0); err != nil {
			return err
		}
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			select {
			case <-app.leaderLock.Lost():
				logger.ErrorCtx(app.ctx, "pool lock lost, another instance may take over; stopping")
				app.stop()
			case <-app.ctx.Done():
			}
		}()
	}

	// 2. Launch terminals
	if err := app.pool.Start(app.ctx); err != nil {
		return err
	}

	// 3. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
	}

	// 4. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCtx(app.ctx, "HTTP server error: %v", err)
			app.stop()
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Done is closed when the application stops itself (lost lock, listener failure)
func (app *Application) Done() <-chan struct{} {
	return app.done
}

func (app *Application) stop() {
	app.doneOnce.Do(func() { close(app.done) })
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Stop accepting requests
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 2. Stop background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Stopping background tasks...")
		app.jobsManager.Stop()
	}

	// 3. Stop the pool: in-flight tasks end FAILED, terminals are killed
	logger.InfoCtx(app.ctx, "Stopping terminal pool...")
	app.pool.Stop(shutdownCtx)

	app.cancel()

	// 4. Wait for watchers
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 5. Execute all cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.InfoCtx(app.ctx, "Graceful shutdown completed")
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
