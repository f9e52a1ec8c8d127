package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"termpool/internal/pool"
	"termpool/pkg/logger"
	"termpool/pkg/queue"
)

// respondError maps pool and queue errors to HTTP status codes
func respondError(c *gin.Context, err error) {
	var full *queue.QueueFullError
	switch {
	case errors.As(err, &full):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error(), "capacity": full.Capacity})
	case errors.Is(err, queue.ErrQueueFull):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, pool.ErrTaskNotFound), errors.Is(err, pool.ErrTerminalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, pool.ErrNotCancellable), errors.Is(err, pool.ErrTerminalBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, pool.ErrInvalidTask), errors.Is(err, pool.ErrInvalidSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, pool.ErrPoolStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		logger.ErrorCtx(c.Request.Context(), "request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
