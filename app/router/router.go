package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"termpool/app/handler"
	"termpool/app/middleware"
)

// Router Router
type Router struct {
	taskHandler     *handler.TaskHandler
	terminalHandler *handler.TerminalHandler
	poolHandler     *handler.PoolHandler
	eventHandler    *handler.EventHandler
	apiKey          string
}

// NewRouter creates a new Router; an empty apiKey leaves the API open
func NewRouter(taskHandler *handler.TaskHandler, terminalHandler *handler.TerminalHandler, poolHandler *handler.PoolHandler, eventHandler *handler.EventHandler, apiKey string) *Router {
	return &Router{
		taskHandler:     taskHandler,
		terminalHandler: terminalHandler,
		poolHandler:     poolHandler,
		eventHandler:    eventHandler,
		apiKey:          apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	api := engine.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(r.apiKey))
	{
		tasks := api.Group("/tasks")
		{
			tasks.POST("", r.taskHandler.Submit)
			tasks.GET("", r.taskHandler.List)                    // ?status=
			tasks.GET("/:task_id", r.taskHandler.Get)            // task + attempt history
			tasks.POST("/:task_id/cancel", r.taskHandler.Cancel) // queued, assigned, running, suspended
			tasks.GET("/:task_id/events", r.taskHandler.Events)  // audit trail
		}

		terminals := api.Group("/terminals")
		{
			terminals.GET("", r.terminalHandler.List) // ?retired=true
			terminals.GET("/:id", r.terminalHandler.Get)
			terminals.POST("/:id/repair", r.terminalHandler.Repair)
		}

		api.GET("/metrics", r.poolHandler.Metrics)
		api.POST("/pool/resize", r.poolHandler.Resize)

		events := api.Group("/events")
		{
			events.GET("", r.eventHandler.List)
			events.GET("/stream", r.eventHandler.Stream) // WebSocket
		}
	}

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
